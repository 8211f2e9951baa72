package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/querysync"
)

func TestLoggerWritesSortedFields(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})
	l := New(stdslog.New(h), "query")

	l.Debug("fetch started", querysync.Fields{"trigger": "mount", "key": `["menu"]`})

	line := buf.String()
	if !strings.Contains(line, "component=query") {
		t.Fatalf("missing component: %s", line)
	}
	if strings.Index(line, "key=") > strings.Index(line, "trigger=") {
		t.Fatalf("fields not sorted: %s", line)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelWarn})
	l := New(stdslog.New(h), "")

	l.Info("quiet", nil)
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}
	l.Error("loud", nil)
	if !strings.Contains(buf.String(), "loud") {
		t.Fatalf("error not written: %s", buf.String())
	}
}
