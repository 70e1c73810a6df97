package websocket

import "github.com/oddiant-techlabs/assessment-engine/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionNavigate  Action = "navigate"
	ActionIntegrity Action = "integrity"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload is the single client message shape. Fields beyond Action
// are read per-action; extras are ignored.
type RequestPayload struct {
	Action   Action       `json:"action"`
	QID      string       `json:"q_id,omitempty"`
	Answer   model.Answer `json:"ans,omitempty"`
	Kind     string       `json:"kind,omitempty"`
	Section  int          `json:"section,omitempty"`
	Question int          `json:"question,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventRecorded  Event = "recorded"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event    Event `json:"event"`
	Progress int   `json:"progress"`
}

type RecordedResponse struct {
	Event       Event `json:"event"`
	TabSwitches int   `json:"tab_switches"`
}

// SubmittedResponse acknowledges submission. It carries no score: results
// stay invisible until staff declare them.
type SubmittedResponse struct {
	Event Event       `json:"event"`
	Phase model.Phase `json:"phase"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
