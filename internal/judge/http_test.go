package judge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
)

func TestHTTPClientAccepted(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submit" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"verdict": "Accepted",
			"passedTests": 3,
			"totalTests": 3,
			"testResults": [
				{"testCase": 1, "verdict": "Accepted", "executionTime": 12},
				{"testCase": 2, "verdict": "Accepted", "executionTime": 30.4},
				{"testCase": 3, "verdict": "Accepted", "executionTime": 7}
			],
			"executionTime": 0,
			"memoryUsed": 0
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", time.Second)
	req := NewRequest(types.LanguageCpp, "int main(){}", []types.Testcase{
		{Input: "1", Output: "1", Visible: true},
		{Input: "2", Output: "2"},
		{Input: "3", Output: "3"},
	}, 1000, 128)

	result, err := client.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if result.Verdict != types.VerdictAccepted || result.PassedTests != 3 || result.TotalTests != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.ExecutionTime != 30 {
		t.Fatalf("expected max per-test execution time 30, got %d", result.ExecutionTime)
	}
	if got.Extension != "cpp" || got.TimeLimit != 1000 || got.MemoryLimit != 128 || len(got.Testcases) != 3 {
		t.Fatalf("unexpected request payload %+v", got)
	}
}

func TestHTTPClientCompilationErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success": false, "verdict": "Compilation Error", "error": "File creation failed", "details": "main.cpp:1: error", "testResults": []}`))
	}))
	defer srv.Close()

	result, err := NewHTTPClient(srv.URL, time.Second).Judge(context.Background(), Request{Extension: "cpp", Code: "x"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if result.Verdict != types.VerdictCompilationError {
		t.Fatalf("expected CE, got %s", result.Verdict)
	}
	if result.Details != "main.cpp:1: error" || result.Error != "File creation failed" {
		t.Fatalf("unexpected diagnostics %+v", result)
	}
}

func TestHTTPClientFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    error
	}{
		{
			name: "slow judge times out",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
			want:    ErrTimeout,
		},
		{
			name: "missing verdict",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"passedTests": 1}`))
			},
			want: ErrMalformedResponse,
		},
		{
			name: "transient verdict",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"verdict": "Judging"}`))
			},
			want: ErrMalformedResponse,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>bad gateway</html>`))
			},
			want: ErrMalformedResponse,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"success": false, "error": "boom"}`, http.StatusInternalServerError)
			},
			want: ErrUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			_, err := NewHTTPClient(srv.URL, timeout).Judge(context.Background(), Request{Extension: "py", Code: "print(1)"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var judgeErr *Error
			if !errors.As(err, &judgeErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
		})
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second).Judge(context.Background(), Request{Extension: "c", Code: "x"})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
