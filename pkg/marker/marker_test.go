package marker

import "testing"

func TestLoadValidTableRoundtrips(t *testing.T) {
	tbl, err := Load(`
# comment
CMD_STOP 3
PARAM_TARGET_X 100
INFO_IDLE_YES 40
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, ok := tbl.Lookup("CMD_STOP")
	if !ok || m != 3 {
		t.Fatalf("Lookup(CMD_STOP) = %v, %v; want 3, true", m, ok)
	}
	if got := tbl.Name(3); got != "CMD_STOP" {
		t.Fatalf("Name(3) = %q, want CMD_STOP", got)
	}
	cls, ok := tbl.ClassOf(3)
	if !ok || cls != ClassFlow {
		t.Fatalf("ClassOf(3) = %v, %v; want ClassFlow, true", cls, ok)
	}
	cls, ok = tbl.ClassOf(100)
	if !ok || cls != ClassParam {
		t.Fatalf("ClassOf(100) = %v, %v; want ClassParam, true", cls, ok)
	}
	cls, ok = tbl.ClassOf(40)
	if !ok || cls != ClassFlag {
		t.Fatalf("ClassOf(40) = %v, %v; want ClassFlag, true", cls, ok)
	}
}

func TestLoadRejectsZeroCode(t *testing.T) {
	_, err := Load("CMD_STOP 0\n")
	if err == nil {
		t.Fatal("expected error for zero code")
	}
}

func TestLoadRejectsForbiddenRange(t *testing.T) {
	for _, code := range []string{"91", "95", "123", "127"} {
		_, err := Load("CMD_X " + code + "\n")
		if err == nil {
			t.Fatalf("code %s: expected error, got nil", code)
		}
	}
}

func TestLoadRejectsDuplicateName(t *testing.T) {
	_, err := Load("CMD_STOP 3\nCMD_STOP 4\n")
	if err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestLoadRejectsDuplicateCode(t *testing.T) {
	_, err := Load("CMD_STOP 3\nCMD_RESUME 3\n")
	if err == nil {
		t.Fatal("expected error for duplicate code")
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	_, err := Load("CMD_STOP\n")
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestLookupUnknownNameIsFalse(t *testing.T) {
	tbl, err := Load("CMD_STOP 3\n")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := tbl.Lookup("CMD_NOPE"); ok {
		t.Fatal("expected Lookup to report false for unknown name")
	}
}

func TestMustLookupPanicsOnUnknownName(t *testing.T) {
	tbl, err := Load("CMD_STOP 3\n")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustLookup to panic on unknown name")
		}
	}()
	tbl.MustLookup("CMD_NOPE")
}

func TestDefaultTableResolvesAllConstants(t *testing.T) {
	if Default == nil {
		t.Fatal("Default table is nil")
	}
	if CmdStop == 0 || StatusEnd == 0 || ParamTargetX == 0 {
		t.Fatal("derived constants did not resolve from the embedded markers.def")
	}
}

func TestStopErrorReasonLowercasesAndStripsPrefix(t *testing.T) {
	got := StopErrorReason("STOPERROR_LIMIT_HIT_X1")
	if got != "limit_hit_x1" {
		t.Fatalf("StopErrorReason = %q, want limit_hit_x1", got)
	}
}
