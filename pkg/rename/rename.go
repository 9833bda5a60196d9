// Package rename tags downloaded archive filenames with the correlation token
// of the work item currently being exported.
//
// The Policy holds the single process-wide active-token slot. The page
// processor activates a token when it starts on an item and deactivates it on
// every exit path; download handlers call Rename for each filename the browser
// proposes.
package rename

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultExtension is the archive extension produced by the "save all" action.
const DefaultExtension = ".zip"

var (
	// ErrTokenActive is returned when a token is activated while another one is still active.
	ErrTokenActive = errors.New("correlation token already active")

	// ErrEmptyToken is returned when activating an empty token.
	ErrEmptyToken = errors.New("correlation token is empty")
)

// Policy rewrites archive filenames while a correlation token is active.
type Policy struct {
	mu        sync.RWMutex
	active    string
	extension string
}

// NewPolicy creates a policy for the given archive extension.
// An empty extension selects DefaultExtension.
func NewPolicy(extension string) *Policy {
	if extension == "" {
		extension = DefaultExtension
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return &Policy{extension: strings.ToLower(extension)}
}

// Activate sets the active token. Exactly one token may be active at a time.
func (p *Policy) Activate(token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != "" && p.active != token {
		err := fmt.Errorf("%w: %s (requested %s)", ErrTokenActive, p.active, token)
		assertSingleToken(err)
		return err
	}
	p.active = token
	return nil
}

// Deactivate clears the active token. Safe to call when none is active.
func (p *Policy) Deactivate() {
	p.mu.Lock()
	p.active = ""
	p.mu.Unlock()
}

// Active returns the active token, or "" when idle.
func (p *Policy) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Extension returns the archive extension the policy matches.
func (p *Policy) Extension() string {
	return p.extension
}

// Rename applies the policy to filename using the currently active token.
func (p *Policy) Rename(filename string) string {
	return Tag(filename, p.Active(), p.extension)
}

// Tag inserts "_<token>" before ext in filename.
//
// The filename passes through unchanged when token is empty, when it does not
// end in ext (case-insensitive), or when it already contains token. One
// trailing underscore is stripped from the stem before tagging, so
// "Report_.zip" becomes "Report_<token>.zip".
func Tag(filename, token, ext string) string {
	if token == "" || filename == "" || ext == "" {
		return filename
	}
	if !strings.HasSuffix(strings.ToLower(filename), strings.ToLower(ext)) {
		return filename
	}
	if strings.Contains(filename, token) {
		return filename
	}

	stem := filename[:len(filename)-len(ext)]
	stem = strings.TrimSuffix(stem, "_")
	return stem + "_" + token + filename[len(filename)-len(ext):]
}
