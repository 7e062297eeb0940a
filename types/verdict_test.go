package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestVerdictTransitions(t *testing.T) {
	tests := []struct {
		from  Verdict
		to    Verdict
		legal bool
	}{
		{VerdictPending, VerdictJudging, true},
		{VerdictJudging, VerdictAccepted, true},
		{VerdictJudging, VerdictCompilationError, true},
		{VerdictJudging, VerdictRuntimeError, true},
		{VerdictPending, VerdictAccepted, false},
		{VerdictJudging, VerdictJudging, false},
		{VerdictJudging, VerdictPending, false},
		{VerdictAccepted, VerdictWrongAnswer, false},
		{VerdictAccepted, VerdictAccepted, false},
		{VerdictRuntimeError, VerdictJudging, false},
	}

	for _, tt := range tests {
		got, err := tt.from.Transition(tt.to)
		if tt.legal {
			if err != nil || got != tt.to {
				t.Errorf("%s -> %s: expected legal, got %s, %v", tt.from, tt.to, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", tt.from, tt.to, err)
		}
		if got != tt.from {
			t.Errorf("%s -> %s: rejected transition must keep state, got %s", tt.from, tt.to, got)
		}
	}
}

func TestTerminalVerdicts(t *testing.T) {
	if VerdictPending.IsTerminal() || VerdictJudging.IsTerminal() {
		t.Fatalf("transient verdicts reported terminal")
	}
	for _, v := range TerminalVerdicts {
		if !v.IsTerminal() {
			t.Errorf("%s should be terminal", v)
		}
	}
	if len(TerminalVerdicts) != 6 {
		t.Fatalf("expected 6 terminal verdicts, got %d", len(TerminalVerdicts))
	}
}

func TestFromJudge(t *testing.T) {
	tests := map[string]Verdict{
		"Accepted":              VerdictAccepted,
		"Wrong Answer":          VerdictWrongAnswer,
		"Time Limit Exceeded":   VerdictTimeLimitExceeded,
		"Memory Limit Exceeded": VerdictMemoryLimitExceeded,
		"Runtime Error":         VerdictRuntimeError,
		"Compilation Error":     VerdictCompilationError,
		"wa":                    VerdictWrongAnswer,
		"Presentation Error":    VerdictRuntimeError,
		"Judging":               VerdictRuntimeError,
		"":                      VerdictRuntimeError,
	}
	for in, want := range tests {
		if got := FromJudge(in); got != want {
			t.Errorf("FromJudge(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestVerdictJSON(t *testing.T) {
	data, err := json.Marshal(VerdictTimeLimitExceeded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"TLE"` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(`"Memory Limit Exceeded"`), &v); err != nil {
		t.Fatalf("unmarshal long name: %v", err)
	}
	if v != VerdictMemoryLimitExceeded {
		t.Fatalf("unexpected verdict %s", v)
	}
	if err := json.Unmarshal([]byte(`"Maybe"`), &v); err == nil {
		t.Fatalf("expected error for unknown verdict")
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in        string
		want      Language
		extension string
	}{
		{"c", LanguageC, "c"},
		{"cpp", LanguageCpp, "cpp"},
		{"Java", LanguageJava, "java"},
		{" python ", LanguagePython, "py"},
	}
	for _, tt := range tests {
		got, err := ParseLanguage(tt.in)
		if err != nil {
			t.Fatalf("ParseLanguage(%q): %v", tt.in, err)
		}
		if got != tt.want || got.Extension() != tt.extension {
			t.Fatalf("ParseLanguage(%q) = %v (%s)", tt.in, got, got.Extension())
		}
	}

	for _, bad := range []string{"", "py", "nodejs", "rust"} {
		if _, err := ParseLanguage(bad); !errors.Is(err, ErrUnsupportedLanguage) {
			t.Errorf("ParseLanguage(%q): expected ErrUnsupportedLanguage, got %v", bad, err)
		}
	}
}

func TestPenaltyMinutes(t *testing.T) {
	if got := PenaltyMinutes(1, VerdictAccepted); got != 0 {
		t.Fatalf("first attempt penalty = %d", got)
	}
	if got := PenaltyMinutes(4, VerdictAccepted); got != 60 {
		t.Fatalf("fourth attempt penalty = %d", got)
	}
	if got := PenaltyMinutes(4, VerdictWrongAnswer); got != 0 {
		t.Fatalf("rejected attempt penalty = %d", got)
	}
}
