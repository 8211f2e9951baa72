package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/querysync"
)

type Options struct {
	// Sampling to avoid floods from pollers; 0/1 = log all.
	FetchEvery  uint64
	DedupeEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
	// RedactKeys turns redaction on. Query keys may carry ids.
	RedactKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr  atomic.Uint64
	dedupeCtr atomic.Uint64
}

var _ querysync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if !h.opts.RedactKeys {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(key string, trigger querysync.Trigger) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("querysync.fetch_started",
		"key", h.redact(key),
		"trigger", trigger.String())
}

func (h *Hooks) FetchDeduped(key string, trigger querysync.Trigger) {
	if h.l == nil || !sample(h.opts.DedupeEvery, &h.dedupeCtr) {
		return
	}
	h.l.Debug("querysync.fetch_deduped",
		"key", h.redact(key),
		"trigger", trigger.String())
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querysync.fetch_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) StaleCompletion(key string) {
	if h.l == nil {
		return
	}
	h.l.Info("querysync.stale_completion",
		"key", h.redact(key))
}

func (h *Hooks) Invalidated(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querysync.invalidated",
		"key", h.redact(key))
}

func (h *Hooks) MutationSuperseded(name string, seq, latest uint64) {
	if h.l == nil {
		return
	}
	h.l.Info("querysync.mutation_superseded",
		"mutation", name,
		"seq", seq,
		"latest", latest)
}

func (h *Hooks) PollerStopped(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querysync.poller_stopped",
		"key", h.redact(key))
}
