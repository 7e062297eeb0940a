package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
)

func TestSubmissionWhere(t *testing.T) {
	wrong := types.VerdictWrongAnswer
	tests := []struct {
		name     string
		filter   types.SubmissionFilter
		wantSQL  string
		wantArgs []any
	}{
		{"empty", types.SubmissionFilter{}, "", nil},
		{"practice only", types.SubmissionFilter{UserID: 1, PracticeOnly: true}, " WHERE user_id = $1 AND contest_id IS NULL", []any{1}},
		{"contest", types.SubmissionFilter{ContestID: 4, ProblemID: 2}, " WHERE problem_id = $1 AND contest_id = $2", []any{2, 4}},
		{"verdict", types.SubmissionFilter{UserID: 3, Verdict: &wrong}, " WHERE user_id = $1 AND verdict = $2", []any{3, int(wrong)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := submissionWhere(tt.filter)
			if gotSQL != tt.wantSQL {
				t.Fatalf("expected %q, got %q", tt.wantSQL, gotSQL)
			}
			if !reflect.DeepEqual(gotArgs, tt.wantArgs) {
				t.Fatalf("expected args %v, got %v", tt.wantArgs, gotArgs)
			}
		})
	}
}

func TestDBNowMatchesStoredPrecision(t *testing.T) {
	now := dbNow()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC, got %s", now.Location())
	}
	if now.Nanosecond()%int(time.Microsecond) != 0 {
		t.Fatalf("expected microsecond precision, got %d ns", now.Nanosecond())
	}
}
