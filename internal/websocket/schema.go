package websocket

import "github.com/learnframe/learnframe-backend/internal/quiz"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionRefresh Action = "refresh"
	ActionStart   Action = "start"
	ActionSelect  Action = "select"
	ActionSubmit  Action = "submit"
	ActionPing    Action = "ping"
)

// Request carries any client action. Index and Answer are only read for
// ActionSelect.
type Request struct {
	Action Action `json:"action"`
	Index  *int   `json:"index,omitempty"`
	Answer string `json:"ans,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventError    Event = "error"
	EventResult   Event = "result"
	EventRedirect Event = "redirect"
	EventPong     Event = "pong"
)

// StateResponse is pushed on every controller transition and tick.
type StateResponse struct {
	Event Event         `json:"event"`
	Data  quiz.Snapshot `json:"data"`
}

// ResultResponse is pushed once when a submission is accepted.
type ResultResponse struct {
	Event  Event            `json:"event"`
	Result quiz.ScoreResult `json:"result"`
}

// RedirectResponse counts down to the return to the start screen.
type RedirectResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type ErrorResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
