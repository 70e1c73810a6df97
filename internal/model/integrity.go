package model

import "time"

// IntegrityKind enumerates recorded proctoring signals.
type IntegrityKind string

const (
	IntegrityTabBlur             IntegrityKind = "TAB_BLUR"
	IntegrityFullscreenExit      IntegrityKind = "FULLSCREEN_EXIT"
	IntegrityCameraLost          IntegrityKind = "CAMERA_LOST"
	IntegrityBrowserIncompatible IntegrityKind = "BROWSER_INCOMPATIBLE"
)

// ValidIntegrityKind reports whether k is a recognized signal kind.
func ValidIntegrityKind(k IntegrityKind) bool {
	switch k {
	case IntegrityTabBlur, IntegrityFullscreenExit, IntegrityCameraLost, IntegrityBrowserIncompatible:
		return true
	}
	return false
}

// IntegrityEvent is one entry of the append-only proctoring log. Entries are
// never mutated or deleted once recorded; the log is attached to the
// submitted result for later human review.
type IntegrityEvent struct {
	At   time.Time     `json:"at"`
	Kind IntegrityKind `json:"kind"`
}
