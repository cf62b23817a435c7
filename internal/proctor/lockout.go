package proctor

import "sync"

// InputEvent is a user input the lockout may intercept.
type InputEvent int

const (
	InputKey InputEvent = iota
	InputContextMenu
	InputCopy
	InputCut
	InputPaste
)

var inputNames = map[InputEvent]string{
	InputKey:         "key",
	InputContextMenu: "context_menu",
	InputCopy:        "copy",
	InputCut:         "cut",
	InputPaste:       "paste",
}

func (e InputEvent) String() string {
	if s, ok := inputNames[e]; ok {
		return s
	}
	return "unknown"
}

// Lockout suppresses context-menu and clipboard events while engaged.
// It is cosmetic: it keeps honest takers from casually copying, nothing more.
type Lockout struct {
	mu      sync.Mutex
	engaged bool
	blocked int
}

// Engage starts suppressing.
func (l *Lockout) Engage() {
	l.mu.Lock()
	l.engaged = true
	l.mu.Unlock()
}

// Release stops suppressing. Idempotent.
func (l *Lockout) Release() {
	l.mu.Lock()
	l.engaged = false
	l.mu.Unlock()
}

// Intercept reports whether ev must have its default behavior suppressed.
func (l *Lockout) Intercept(ev InputEvent) bool {
	switch ev {
	case InputContextMenu, InputCopy, InputCut, InputPaste:
	default:
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.engaged {
		return false
	}
	l.blocked++
	return true
}

// Blocked returns how many events were suppressed.
func (l *Lockout) Blocked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocked
}
