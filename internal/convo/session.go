// Package convo implements the conversation controller for complaint intake:
// per-session state, free-text entity extraction, and the turn-by-turn state
// machine that routes incoming messages between solving, escalation,
// missing-field collection, status lookups, and manual resolution.
//
// The controller deliberately keeps all per-turn branching in one place
// (Controller.Step) so the precedence between branches is explicit and
// testable. External collaborators (the LLM, the complaint store, and the
// notifier) are injected behind small interfaces.
package convo

import "github.com/tbourn/go-complaint-backend/internal/llm"

// State is the conversation phase of a session's active complaint.
type State string

// Session states. A session starts in StateIdle and returns to it on topic
// change or an explicit clear.
const (
	StateIdle              State = "idle"
	StateAwaitingInfo      State = "awaiting_info"
	StateOpen              State = "open"
	StateEscalationPending State = "escalation_pending"
	StateResolved          State = "resolved"
)

// UserInfo holds progressively collected contact fields. Fields are filled by
// the entity extractor and never overwritten once set; no validation is
// applied to any of them.
type UserInfo struct {
	Name    string `json:"name,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Address string `json:"address,omitempty"`
}

// Complete reports whether all three contact fields are populated.
func (u UserInfo) Complete() bool {
	return u.Name != "" && u.Mobile != "" && u.Address != ""
}

// Missing returns the human-readable names of the unfilled fields, in a fixed
// order, for the consolidated missing-info prompt.
func (u UserInfo) Missing() []string {
	var out []string
	if u.Name == "" {
		out = append(out, "name")
	}
	if u.Mobile == "" {
		out = append(out, "mobile number")
	}
	if u.Address == "" {
		out = append(out, "address")
	}
	return out
}

// Session is one user's in-memory conversation context. It is distinct from
// persisted Complaint records: the session is mutated on every turn and
// cleared on an explicit clear action, while complaints outlive it.
//
// A session serializes its turns; callers must not invoke Step concurrently
// for the same session (the service layer guards this with a per-session
// mutex).
type Session struct {
	// Log is the ordered message log; order implies time.
	Log []llm.Message `json:"log"`

	// CurrentComplaintID references the active complaint in the store, if any.
	CurrentComplaintID string `json:"current_complaint_id,omitempty"`

	// Info holds the contact fields collected so far.
	Info UserInfo `json:"user_info"`

	// State is the conversation phase.
	State State `json:"state"`

	// LastComplaintMessage anchors the active complaint: the user message
	// treated as its subject.
	LastComplaintMessage string `json:"last_complaint_message,omitempty"`

	// ClarificationTurns counts clarification rounds since the last topic
	// change or escalation. The controller caps it at one round before
	// forcing an escalation.
	ClarificationTurns int `json:"clarification_turns"`
}

// NewSession returns an empty session in the idle state.
func NewSession() *Session {
	return &Session{State: StateIdle}
}

// Reset clears all fields back to their initial values (the explicit "clear"
// action). The persisted complaints referenced by the session are untouched.
func (s *Session) Reset() {
	*s = Session{State: StateIdle}
}

// append records one utterance in the session log.
func (s *Session) append(role, content string) {
	s.Log = append(s.Log, llm.Message{Role: role, Content: content})
}
