package gcode

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/lasaur/driveboard/pkg/marker"
	"github.com/lasaur/driveboard/pkg/proto"
)

// ParseError is returned for a line that does not dispatch (an
// "G-code parse error"). The line is not executed.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

func parseErrorf(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

type token struct {
	letter byte
	value  float64
	raw    string
}

// stripComment removes a trailing ';'-comment and surrounding whitespace.
func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// extractRaster pulls the " D<base64>" raster suffix out of a line, per
// The raster suffix is a trailing " D<base64>" blob appended after the
// command text. It returns the line with the suffix removed and the
// decoded bytes, or an error if the suffix is present but not valid
// base64.
func extractRaster(line string) (rest string, data []byte, err error) {
	idx := strings.Index(line, " D")
	if idx < 0 {
		return line, nil, nil
	}
	encoded := line[idx+2:]
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, parseErrorf("invalid base64 raster payload: %v", err)
	}
	return line[:idx], data, nil
}

func tokenize(line string) ([]token, error) {
	fields := strings.Fields(line)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			return nil, parseErrorf("malformed token %q", f)
		}
		letter := f[0]
		if letter < 'A' || letter > 'Z' {
			if letter >= 'a' && letter <= 'z' {
				letter = letter - 'a' + 'A'
			} else {
				return nil, parseErrorf("malformed token %q", f)
			}
		}
		v, err := strconv.ParseFloat(f[1:], 64)
		if err != nil {
			return nil, parseErrorf("malformed value in token %q: %v", f, err)
		}
		tokens = append(tokens, token{letter: letter, value: v, raw: f})
	}
	return tokens, nil
}

// commandWord builds the dispatch key for a line's first token: the
// letter concatenated with the integer part of its value, so "G00" and
// "G0" are identical.
func commandWord(t token) string {
	return fmt.Sprintf("%c%d", t.letter, int(t.value))
}

func findToken(tokens []token, letter byte) (token, bool) {
	for _, t := range tokens {
		if t.letter == letter {
			return t, true
		}
	}
	return token{}, false
}

// Parse turns one already comment-stripped, raster-extracted line into an
// ordered Primitive sequence, mutating m to reflect the line's effect on
// modal state. It does not touch the engine, the link, or any connection
// state — see Frontend for the full line-processing pipeline of spec
// §4.6.
func Parse(m *Modal, line string, raster []byte) ([]Primitive, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	tokens, err := tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	word := commandWord(tokens[0])
	rest := tokens[1:]

	switch word {
	case "G0", "G1":
		return parseMove(m, word, tokens[0], rest)
	case "G7":
		return parseRasterMove(m, rest, raster)
	case "G10":
		return parseOffset(m, rest)
	case "G54":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdSelOffsetTable))
	case "G55":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdSelOffsetCustom))
	case "G30":
		m.invalidateTarget()
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdHoming))
	case "G90":
		m.Relative = false
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdRefAbsolute))
	case "G91":
		m.Relative = true
		m.invalidateTarget()
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdRefRelative))
	case "M80":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdAirEnable))
	case "M81":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdAirDisable))
	case "M82":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdAux1Enable))
	case "M83":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdAux1Disable))
	case "M84":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdAux2Enable))
	case "M85":
		return consumeAndReturn(rest, nil, cmdPrim(marker.CmdAux2Disable))
	}

	if tokens[0].letter == 'S' {
		return parseIntensityOnly(rest, tokens[0])
	}

	return nil, parseErrorf("unknown gcode command %q", tokens[0].raw)
}

func consumeAndReturn(rest []token, prims []Primitive, cmd Primitive) ([]Primitive, error) {
	if len(rest) != 0 {
		return nil, parseErrorf("unexpected token %q", rest[0].raw)
	}
	return append(prims, cmd), nil
}

func parseMove(m *Modal, word string, head token, rest []token) ([]Primitive, error) {
	var prims []Primitive
	consumed := map[byte]bool{}

	for _, t := range rest {
		switch t.letter {
		case 'X':
			m.X, m.HasTarget = t.value, !m.Relative
			prims = append(prims, paramPrim(marker.ParamTargetX, t.value))
		case 'Y':
			m.Y, m.HasTarget = t.value, !m.Relative
			prims = append(prims, paramPrim(marker.ParamTargetY, t.value))
		case 'Z':
			m.Z, m.HasTarget = t.value, !m.Relative
			prims = append(prims, paramPrim(marker.ParamTargetZ, t.value))
		case 'F':
			if word == "G0" {
				m.Seekrate = t.value
				prims = append(prims, paramPrim(marker.ParamSeekrate, t.value))
			} else {
				m.Feedrate = t.value
				prims = append(prims, paramPrim(marker.ParamFeedrate, t.value))
			}
		case 'S':
			if word != "G1" {
				return nil, parseErrorf("S is only valid on G1")
			}
			freq, dur := IntensityToPulse(t.value)
			prims = append(prims, paramPrim(marker.ParamPulseFrequency, freq))
			prims = append(prims, paramPrim(marker.ParamPulseDuration, float64(dur)))
		default:
			return nil, parseErrorf("unexpected token %q on %s", t.raw, word)
		}
		consumed[t.letter] = true
	}

	if word == "G0" {
		prims = append(prims, cmdPrim(marker.CmdLineSeek))
	} else {
		prims = append(prims, cmdPrim(marker.CmdLineBurn))
	}
	_ = head
	return prims, nil
}

func parseRasterMove(m *Modal, rest []token, raster []byte) ([]Primitive, error) {
	v, ok := findToken(rest, 'V')
	if !ok || v.value != 1 {
		return nil, parseErrorf("G7 requires V1")
	}
	if len(raster) < 1 || len(raster) > proto.RasterBytesMax {
		return nil, parseErrorf("G7 raster payload length %d out of range [1, %d]", len(raster), proto.RasterBytesMax)
	}

	var prims []Primitive
	for _, t := range rest {
		switch t.letter {
		case 'V':
			// consumed above
		case 'X':
			m.X, m.HasTarget = t.value, !m.Relative
			prims = append(prims, paramPrim(marker.ParamTargetX, t.value))
		case 'Y':
			m.Y, m.HasTarget = t.value, !m.Relative
			prims = append(prims, paramPrim(marker.ParamTargetY, t.value))
		case 'Z':
			m.Z, m.HasTarget = t.value, !m.Relative
			prims = append(prims, paramPrim(marker.ParamTargetZ, t.value))
		case 'F':
			m.Feedrate = t.value
			prims = append(prims, paramPrim(marker.ParamFeedrate, t.value))
		default:
			return nil, parseErrorf("unexpected token %q on G7", t.raw)
		}
	}

	prims = append(prims, paramPrim(marker.ParamRasterBytes, float64(len(raster))))
	prims = append(prims, cmdPrim(marker.CmdLineRaster))
	prims = append(prims, rasterPrim(raster))
	return prims, nil
}

func parseOffset(m *Modal, rest []token) ([]Primitive, error) {
	p, hasP := findToken(rest, 'P')
	l, hasL := findToken(rest, 'L')
	if !hasL {
		return nil, parseErrorf("G10 requires an L word")
	}

	switch int(l.value) {
	case 20:
		if !hasP {
			return nil, parseErrorf("G10 L20 requires a P word")
		}
		switch int(p.value) {
		case 0:
			return []Primitive{cmdPrim(marker.CmdSetOffsetTable)}, nil
		case 1:
			return []Primitive{cmdPrim(marker.CmdSetOffsetCustom)}, nil
		default:
			return nil, parseErrorf("G10 L20 P%d is not a valid offset table", int(p.value))
		}
	case 2:
		if !hasP {
			return nil, parseErrorf("G10 L2 requires a P word")
		}
		var xm, ym, zm marker.Marker
		switch int(p.value) {
		case 0:
			xm, ym, zm = marker.ParamOfftableX, marker.ParamOfftableY, marker.ParamOfftableZ
		case 1:
			xm, ym, zm = marker.ParamOffcustomX, marker.ParamOffcustomY, marker.ParamOffcustomZ
		default:
			return nil, parseErrorf("G10 L2 P%d is not a valid offset table", int(p.value))
		}
		var prims []Primitive
		for _, t := range rest {
			switch t.letter {
			case 'X':
				prims = append(prims, paramPrim(xm, t.value))
			case 'Y':
				prims = append(prims, paramPrim(ym, t.value))
			case 'Z':
				prims = append(prims, paramPrim(zm, t.value))
			case 'P', 'L':
				// consumed above
			default:
				return nil, parseErrorf("unexpected token %q on G10 L2", t.raw)
			}
		}
		return prims, nil
	default:
		return nil, parseErrorf("G10 L%d is not supported", int(l.value))
	}
}

func parseIntensityOnly(rest []token, head token) ([]Primitive, error) {
	if len(rest) != 0 {
		return nil, parseErrorf("unexpected token %q after S", rest[0].raw)
	}
	if head.value < 0 || head.value > 255 {
		return nil, parseErrorf("S%v out of range [0, 255]", head.value)
	}
	freq, dur := IntensityToPulse(head.value)
	return []Primitive{
		paramPrim(marker.ParamPulseFrequency, freq),
		paramPrim(marker.ParamPulseDuration, float64(dur)),
	}, nil
}

// IntensityToPulse is the intensity-to-pulse mapping of the glossary:
// S in [0, 255] maps to (frequency_hz, duration_ticks).
func IntensityToPulse(s float64) (frequencyHz float64, durationTicks int) {
	value := s / 255.0
	if value <= 0 {
		return 0, 0
	}
	duration := proto.MinPulseTicks + int(6*value)
	if value > 0.99 {
		duration++
	}
	frequency := 1.0 / (float64(duration) * proto.PulseSeconds / value)
	return frequency, duration
}
