package querysync

import "sync"

// FocusSource reports when the application regains focus (a browser tab
// becoming visible, a terminal user coming back to the prompt).
type FocusSource interface {
	// OnRegainFocus registers fn and returns a func that unregisters it.
	OnRegainFocus(fn func()) (unregister func())
}

// FocusManager is a FocusSource driven by SetFocused. Only a transition from
// unfocused to focused fires the registered funcs. It starts focused.
type FocusManager struct {
	mu      sync.Mutex
	blurred bool
	nextID  uint64
	fns     map[uint64]func()
}

var _ FocusSource = (*FocusManager)(nil)

func NewFocusManager() *FocusManager {
	return &FocusManager{fns: make(map[uint64]func())}
}

func (m *FocusManager) OnRegainFocus(fn func()) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.fns[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.fns, id)
		m.mu.Unlock()
	}
}

// SetFocused records the focus state and fires the registered funcs on regain.
func (m *FocusManager) SetFocused(focused bool) {
	m.mu.Lock()
	regained := focused && m.blurred
	m.blurred = !focused
	var fns []func()
	if regained {
		fns = make([]func(), 0, len(m.fns))
		for _, fn := range m.fns {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Focused reports the current focus state.
func (m *FocusManager) Focused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.blurred
}
