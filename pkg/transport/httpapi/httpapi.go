// Package httpapi exposes the driveboard's G-code front-end over HTTP
// with gin: a streamed G-code POST endpoint and a status GET endpoint,
// the primary transport surface for submitting jobs and polling status.
package httpapi

import (
	"bufio"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Frontend is the narrow surface httpapi needs from a gcode.Frontend;
// mirroring the Frontend's own single public entrypoint keeps this
// package decoupled from the engine wiring behind it.
type Frontend interface {
	ProcessLine(line string) string
}

// Server wires the G-code front-end onto an HTTP mux. A Server only
// ever lets one job stream at a time; a second concurrent POST /gcode
// is rejected with 409 rather than interleaving two jobs' lines.
type Server struct {
	frontend Frontend

	mu      sync.Mutex
	jobBusy bool
}

// New creates a Server bound to a front-end.
func New(frontend Frontend) *Server {
	return &Server{frontend: frontend}
}

// Register mounts the API's routes onto an existing gin.Engine.
func (s *Server) Register(r *gin.Engine) {
	r.POST("/gcode", s.postGcode)
	r.GET("/status", s.getStatus)
	r.GET("/status/:kind", s.getStatus)
}

func (s *Server) postGcode(c *gin.Context) {
	s.mu.Lock()
	if s.jobBusy {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a job is already streaming"})
		return
	}
	s.jobBusy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.jobBusy = false
		s.mu.Unlock()
	}()

	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)

	scanner := bufio.NewScanner(c.Request.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		resp := s.frontend.ProcessLine(scanner.Text())
		if resp == "" {
			continue
		}
		c.Writer.Write([]byte(resp + "\n"))
		c.Writer.Flush()
	}
}

func (s *Server) getStatus(c *gin.Context) {
	kind := c.Param("kind")
	resp := s.frontend.ProcessLine("?" + kind)
	c.String(http.StatusOK, "%s", resp)
}
