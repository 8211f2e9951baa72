package querysync

// Trigger names what caused a fetch attempt.
type Trigger uint8

const (
	TriggerMount Trigger = iota
	TriggerQuery
	TriggerManual
	TriggerInterval
	TriggerFocus
	TriggerInvalidate
)

func (t Trigger) String() string {
	switch t {
	case TriggerMount:
		return "mount"
	case TriggerQuery:
		return "query"
	case TriggerManual:
		return "manual"
	case TriggerInterval:
		return "interval"
	case TriggerFocus:
		return "focus"
	case TriggerInvalidate:
		return "invalidate"
	default:
		return "unknown"
	}
}

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The client calls them on hot paths, sometimes while holding its lock.
type Hooks interface {
	// A fetch goroutine was started for key.
	FetchStarted(key string, trigger Trigger)

	// A trigger joined the fetch already in flight for key.
	FetchDeduped(key string, trigger Trigger)

	// The fetch for key failed (prior data, if any, is retained).
	FetchFailed(key string, err error)

	// The fetch for key completed after key was invalidated; data was applied
	// but the entry stays invalidated.
	StaleCompletion(key string)

	// key was marked stale by Invalidate.
	Invalidated(key string)

	// A mutation completion lost to a newer invocation on the same mutation.
	MutationSuperseded(name string, seq, latest uint64)

	// The last interval observer for key went away.
	PollerStopped(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(string, Trigger)              {}
func (NopHooks) FetchDeduped(string, Trigger)              {}
func (NopHooks) FetchFailed(string, error)                 {}
func (NopHooks) StaleCompletion(string)                    {}
func (NopHooks) Invalidated(string)                        {}
func (NopHooks) MutationSuperseded(string, uint64, uint64) {}
func (NopHooks) PollerStopped(string)                      {}
