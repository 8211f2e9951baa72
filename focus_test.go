package querysync

import "testing"

func TestFocusManagerFiresOnlyOnRegain(t *testing.T) {
	m := NewFocusManager()
	n := 0
	unregister := m.OnRegainFocus(func() { n++ })

	m.SetFocused(true)
	if n != 0 {
		t.Fatal("fired without a blur")
	}
	m.SetFocused(false)
	m.SetFocused(false)
	if m.Focused() {
		t.Fatal("still focused after blur")
	}
	m.SetFocused(true)
	m.SetFocused(true)
	if n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}

	unregister()
	m.SetFocused(false)
	m.SetFocused(true)
	if n != 1 {
		t.Fatal("fired after unregister")
	}
}
