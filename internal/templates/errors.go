package templates

import (
	"errors"
	"fmt"
	"sync"
)

// RenderErrorKind categorizes render failures so callers can format them
// appropriately.
type RenderErrorKind int

const (
	// KindNotFound means the requested template name is absent from the
	// current compiled set.
	KindNotFound RenderErrorKind = iota
	// KindSyntax means a template source failed to parse.
	KindSyntax
	// KindRuntime means a template compiled but failed during evaluation,
	// e.g. a filter applied to a value of the wrong type.
	KindRuntime
)

// String returns the string representation of the kind
func (k RenderErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindSyntax:
		return "syntax"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// RenderError is a categorized failure from looking up or evaluating a
// single template.
type RenderError struct {
	Kind RenderErrorKind
	Name string
	Err  error
}

// Error implements the error interface
func (e *RenderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("template %q: %s", e.Name, e.Kind)
	}
	return fmt.Sprintf("template %q: %s: %v", e.Name, e.Kind, e.Err)
}

// Unwrap returns the underlying engine error
func (e *RenderError) Unwrap() error {
	return e.Err
}

// Is matches render errors by kind
func (e *RenderError) Is(target error) bool {
	var t *RenderError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newNotFoundError(name string) *RenderError {
	return &RenderError{Kind: KindNotFound, Name: name}
}

func newSyntaxError(name string, err error) *RenderError {
	return &RenderError{Kind: KindSyntax, Name: name, Err: err}
}

func newRuntimeError(name string, err error) *RenderError {
	return &RenderError{Kind: KindRuntime, Name: name, Err: err}
}

// InitError reports that the initial compile of the template set failed.
// The store falls back to an empty usable set so that a later successful
// reload can recover.
type InitError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *InitError) Error() string {
	return fmt.Sprintf("initializing templates from %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying compile error
func (e *InitError) Unwrap() error {
	return e.Err
}

// ReloadError reports that a recompile failed. The previously committed
// set stays live.
type ReloadError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *ReloadError) Error() string {
	return fmt.Sprintf("reloading templates from %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying compile error
func (e *ReloadError) Unwrap() error {
	return e.Err
}

// ErrorState tracks the most recent initialization or reload failure,
// independent of the store's committed set. A broken or absent set still
// lets renders surface a diagnostic instead of failing.
//
// It is deliberately its own lock, never held together with the store's.
type ErrorState struct {
	mu  sync.RWMutex
	msg string
	set bool
}

// NewErrorState creates an empty tracker
func NewErrorState() *ErrorState {
	return &ErrorState{}
}

// Set records a failure message, overwriting any previous one
func (e *ErrorState) Set(msg string) {
	e.mu.Lock()
	e.msg = msg
	e.set = true
	e.mu.Unlock()
}

// Clear resets the tracker to healthy
func (e *ErrorState) Clear() {
	e.mu.Lock()
	e.msg = ""
	e.set = false
	e.mu.Unlock()
}

// Get returns the tracked message and whether one is present
func (e *ErrorState) Get() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.msg, e.set
}
