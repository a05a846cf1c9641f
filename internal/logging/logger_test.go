package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNew_JSONFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New("warn", WithWriter(&buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "cycle_id", "c1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines=%d\n%s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "kept" || entry["cycle_id"] != "c1" || entry["level"] != "WARN" {
		t.Fatalf("entry=%v", entry)
	}
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := MustNew("debug", WithWriter(&buf), WithFormat("text"))
	logger.Debug("hello", "token", 5)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "token=5") {
		t.Fatalf("out=%q", buf.String())
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := New("info", WithFormat("xml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseLevel_DefaultsToInfo(t *testing.T) {
	t.Parallel()

	if parseLevel("nonsense").Level().String() != "INFO" {
		t.Fatalf("level=%v", parseLevel("nonsense"))
	}
	if parseLevel("WARNING").Level().String() != "WARN" {
		t.Fatalf("level=%v", parseLevel("WARNING"))
	}
}

func TestAttachError(t *testing.T) {
	t.Parallel()

	args := AttachError(nil, "k", "v")
	if len(args) != 2 {
		t.Fatalf("args=%v", args)
	}
	args = AttachError(errors.New("boom"), "k", "v")
	if len(args) != 4 || args[3] != "boom" {
		t.Fatalf("args=%v", args)
	}
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	if OrDiscard(nil) == nil {
		t.Fatalf("nil logger")
	}
}
