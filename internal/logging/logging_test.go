package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jjudge-oj/judgeserver/config"
	"github.com/sirupsen/logrus"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger.WithField("submission_id", 7).Info("resolved")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "resolved" {
		t.Fatalf("unexpected msg: %v", line["msg"])
	}
	if line["submission_id"] != float64(7) {
		t.Fatalf("unexpected submission_id: %v", line["submission_id"])
	}
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := newLogger(config.LogConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := newLogger(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
