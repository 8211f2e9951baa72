package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/querysync"
)

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestFetchStartedIsSampled(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{FetchEvery: 3})

	for i := 0; i < 9; i++ {
		h.FetchStarted(`["orders"]`, querysync.TriggerInterval)
	}
	if n := strings.Count(buf.String(), "querysync.fetch_started"); n != 3 {
		t.Fatalf("logged %d lines, want 3", n)
	}
}

func TestRedactsKeys(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{RedactKeys: true})

	h.FetchFailed(`["order","order-7"]`, errors.New("boom"))
	out := buf.String()
	if strings.Contains(out, "order-7") {
		t.Fatalf("key leaked: %s", out)
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("error missing: %s", out)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	h := New(nil, Options{})
	h.Invalidated("k")
	h.MutationSuperseded("createOrder", 1, 2)
}
