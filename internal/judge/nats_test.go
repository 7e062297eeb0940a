package judge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func connectEmbeddedNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("start nats server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func TestNATSClientRoundTrip(t *testing.T) {
	conn := connectEmbeddedNATS(t)

	sub, err := conn.Subscribe("judge.submit", func(msg *nats.Msg) {
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		verdict := "Wrong Answer"
		if req.Code == "correct" {
			verdict = "Accepted"
		}
		reply, _ := json.Marshal(map[string]any{
			"verdict":     verdict,
			"passedTests": 1,
			"totalTests":  len(req.Testcases),
		})
		_ = msg.Respond(reply)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	client := NewNATSClient(conn, "judge.submit", time.Second)
	result, err := client.Judge(context.Background(), Request{
		Extension: "java",
		Code:      "correct",
		Testcases: []Testcase{{Input: "1", Output: "1"}, {Input: "2", Output: "2"}},
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if result.Verdict != types.VerdictAccepted || result.TotalTests != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestNATSClientNoResponders(t *testing.T) {
	conn := connectEmbeddedNATS(t)

	_, err := NewNATSClient(conn, "judge.nobody", time.Second).Judge(context.Background(), Request{Extension: "c"})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestNATSClientTimeout(t *testing.T) {
	conn := connectEmbeddedNATS(t)

	sub, err := conn.Subscribe("judge.slow", func(msg *nats.Msg) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	_, err = NewNATSClient(conn, "judge.slow", 50*time.Millisecond).Judge(context.Background(), Request{Extension: "c"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
