package convo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/llm"
)

// Store is the durable keyed storage for complaints and their message logs,
// as seen by the controller. The repo package provides the GORM-backed
// implementation via a shim in the service layer; tests substitute an
// in-memory fake.
type Store interface {
	// CreateComplaint registers a complaint and its opening user/bot pair,
	// returning the generated COMP id.
	CreateComplaint(ctx context.Context, description, initialResponse string) (string, error)
	// GetComplaint fetches a complaint record, or repo.ErrNotFound.
	GetComplaint(ctx context.Context, id string) (*domain.Complaint, error)
	// UpdateStatus sets status and, when non-empty, a resolution note.
	UpdateStatus(ctx context.Context, id, status, resolution string) error
	// AppendMessage appends one utterance to a complaint's log.
	AppendMessage(ctx context.Context, id, role, content string) error
	// ListMessages returns log entries; a negative limit means the most
	// recent -limit entries in chronological order.
	ListMessages(ctx context.Context, id string, limit int) ([]domain.ConversationEntry, error)
}

// ErrComplaintNotFound is returned by Store implementations when the
// requested complaint id does not exist.
var ErrComplaintNotFound = errors.New("complaint not found")

func isNotFound(err error) bool { return errors.Is(err, ErrComplaintNotFound) }

// Notifier delivers the escalation notification to the support team.
// Delivery is best-effort: the controller fires it asynchronously and only
// logs failures.
type Notifier interface {
	Send(ctx context.Context, name, mobile, address, complaintText, complaintID string) error
}

// Controller owns the per-turn state machine. One message in, one reply out;
// callers serialize turns per session.
type Controller struct {
	LLM      llm.Client
	Store    Store
	Notifier Notifier

	// HistoryWindow bounds how many prior turns are included in generation
	// prompts. Zero means the whole session log.
	HistoryWindow int
}

// Fixed reply fragments. The off-topic redirect and the error prefix are part
// of the observable contract; tests match on them.
const (
	offTopicRedirect = "I can only help with complaints and service issues. " +
		"Please describe your problem, or use \"check status <complaint id>\" to look up an existing complaint."
	errReplyPrefix = "An error occurred: "
)

var (
	complaintIDRE = regexp.MustCompile(`COMP-\d{8}-[0-9a-zA-Z]{4}`)

	// resolutionPhrases confirm the user considers the issue closed.
	resolutionPhrases = []string{
		"is resolved", "issue resolved", "complaint resolved", "resolved now",
		"has been resolved", "is solved", "solved now", "is fixed", "fixed now",
	}

	// clarificationPhrases mark a solver reply that asks the user for more
	// detail instead of answering.
	clarificationPhrases = []string{
		"could you clarify", "can you clarify", "could you provide",
		"can you provide", "please provide", "please share", "could you share",
		"more details", "what exactly", "which one",
	}

	nameCaser = cases.Title(language.English)
)

// Step routes one incoming message through the state machine and returns the
// reply. The user message and the reply are both appended to the session log
// before returning. External-call failures surface as a generic error reply
// and leave the session state otherwise unchanged.
func (c *Controller) Step(ctx context.Context, s *Session, msg string) string {
	tr := otel.Tracer("convo/Controller")
	ctx, span := tr.Start(ctx, "Step",
		trace.WithAttributes(attribute.String("session.state", string(s.State))),
	)
	defer span.End()

	msg = strings.TrimSpace(msg)
	s.append("user", msg)

	reply, err := c.route(ctx, s, msg)
	if err != nil {
		reply = errReplyPrefix + err.Error()
	}
	s.append("bot", reply)
	span.SetAttributes(attribute.String("session.state.after", string(s.State)))
	return reply
}

// route evaluates the branch precedence. The ordering of checks is part of
// the contract: a message matching both a resolution phrase and an
// active-complaint state is routed by whichever earlier branch claims it,
// so reordering changes observable behavior (known fragility, kept as is).
func (c *Controller) route(ctx context.Context, s *Session, msg string) (string, error) {
	// 1. Topic change resets the session before anything else looks at it.
	if isTopicChange(msg, s.LastComplaintMessage) {
		s.State = StateIdle
		s.Info = UserInfo{}
		s.LastComplaintMessage = ""
		s.ClarificationTurns = 0
	}

	// Branch preconditions read the anchor as it stood when the turn began
	// (post-reset): a message anchored this turn is solved on the next one.
	entryAnchor := s.LastComplaintMessage

	// Harvest contact fields from every message.
	s.Info = Extract(msg, s.Info)

	// 2. Anchor a new complaint unless the message is purely info-supplying.
	if s.LastComplaintMessage == "" && !isInfoSupplying(msg) {
		s.LastComplaintMessage = msg
	}

	// 3. Solution attempt on the anchored complaint.
	if entryAnchor != "" && (s.State == StateIdle || s.State == StateOpen || s.State == StateAwaitingInfo) {
		reply, handled, err := c.attemptSolution(ctx, s, entryAnchor)
		if err != nil {
			return "", err
		}
		if handled {
			return reply, nil
		}
		// Solver escalated; fall through to registration or info collection.
	}

	// 4. Auto-escalate once the contact info is complete.
	if s.Info.Complete() && s.LastComplaintMessage != "" && s.State == StateEscalationPending {
		return c.registerEscalation(ctx, s)
	}

	// 5. Consolidated missing-info prompt.
	if s.State == StateEscalationPending && !s.Info.Complete() {
		return missingInfoPrompt(s.Info), nil
	}

	// 6. Mid-complaint state re-evaluation.
	if s.State == StateAwaitingInfo || s.State == StateOpen || s.State == StateEscalationPending {
		return c.reevaluateState(ctx, s, msg)
	}

	// 7. Manual resolution phrase.
	if containsAnyFold(msg, resolutionPhrases) {
		return c.manualResolve(ctx, s, msg)
	}

	// 8. Status check phrase.
	if containsAnyFold(msg, []string{"check status", "complaint status"}) {
		return c.statusReport(ctx, s, msg)
	}

	// 9. Cold start: nothing anchored and no active complaint.
	if entryAnchor == "" && s.CurrentComplaintID == "" {
		return c.coldStart(ctx, s, msg)
	}

	// 10. Default continuation.
	return c.continueConversation(ctx, s, msg)
}

// attemptSolution runs the solver prompt. handled is false when the solver
// escalated and the turn should continue with branches 4/5.
func (c *Controller) attemptSolution(ctx context.Context, s *Session, anchor string) (reply string, handled bool, err error) {
	out, err := c.LLM.Generate(ctx, llm.SolverPrompt(anchor, c.window(s)))
	if err != nil {
		return "", false, err
	}

	if out == llm.LabelEscalate {
		s.State = StateEscalationPending
		s.ClarificationTurns = 0
		return "", false, nil
	}

	if containsAnyFold(out, clarificationPhrases) {
		s.ClarificationTurns++
		if s.ClarificationTurns > 1 {
			// Forced-escalation cap: at most one clarification round.
			s.State = StateEscalationPending
			s.ClarificationTurns = 0
			return escalationSummary(s.Info), true, nil
		}
		s.State = StateOpen
		return out, true, nil
	}

	s.State = StateOpen
	s.ClarificationTurns = 0
	return out, true, nil
}

// registerEscalation stores the complaint, fires the notifier without waiting
// on it, and confirms with the id and the collected fields.
func (c *Controller) registerEscalation(ctx context.Context, s *Session) (string, error) {
	id, err := c.Store.CreateComplaint(ctx, s.LastComplaintMessage, "Escalated to support team")
	if err != nil {
		return "", err
	}
	reply := fmt.Sprintf(
		"Your complaint has been escalated to our support team.\n"+
			"Complaint ID: %s\nName: %s\nMobile: %s\nAddress: %s\n"+
			"You can check progress anytime with \"check status\".",
		id, nameCaser.String(s.Info.Name), s.Info.Mobile, s.Info.Address,
	)

	if c.Notifier != nil {
		info, anchor := s.Info, s.LastComplaintMessage
		bg := context.WithoutCancel(ctx)
		go func() {
			if err := c.Notifier.Send(bg, info.Name, info.Mobile, info.Address, anchor, id); err != nil {
				log.Error().Err(err).Str("complaint_id", id).Msg("escalation notification failed")
			}
		}()
	}

	s.CurrentComplaintID = id
	s.State = StateResolved
	return reply, nil
}

// reevaluateState asks the state-check prompt and branches on its label.
// Unmatched output continues as an open conversation.
func (c *Controller) reevaluateState(ctx context.Context, s *Session, msg string) (string, error) {
	out, err := c.LLM.Generate(ctx, llm.StateCheckPrompt(c.window(s)))
	if err != nil {
		return "", err
	}

	label, _ := llm.MatchLabel(out,
		llm.LabelAwaitingInfo, llm.LabelEscalationPending, llm.LabelResolved,
		llm.LabelOffTopic, llm.LabelOpen)

	switch label {
	case llm.LabelOffTopic:
		s.State = StateIdle
		return offTopicRedirect, nil
	case llm.LabelAwaitingInfo:
		s.State = StateAwaitingInfo
	case llm.LabelEscalationPending:
		s.State = StateEscalationPending
	case llm.LabelResolved:
		s.State = StateResolved
		if s.CurrentComplaintID != "" {
			if err := c.Store.UpdateStatus(ctx, s.CurrentComplaintID, domain.StatusResolved, ""); err != nil && !isNotFound(err) {
				return "", err
			}
		}
	default: // LabelOpen or unmatched output
		s.State = StateOpen
	}

	return c.generateFollowUp(ctx, s, msg)
}

// manualResolve closes the complaint named in the message (or the session's
// current one) after the user confirms resolution.
func (c *Controller) manualResolve(ctx context.Context, s *Session, msg string) (string, error) {
	id := complaintIDRE.FindString(msg)
	if id == "" {
		id = s.CurrentComplaintID
	}
	if id == "" {
		return "I couldn't find a complaint to mark as resolved. Please include your complaint ID (e.g. COMP-20240101-ab12).", nil
	}

	if _, err := c.Store.GetComplaint(ctx, id); err != nil {
		if isNotFound(err) {
			return fmt.Sprintf("Complaint %s was not found. Please double-check the ID.", id), nil
		}
		return "", err
	}
	if err := c.Store.UpdateStatus(ctx, id, domain.StatusResolved, "Confirmed resolved by user"); err != nil {
		return "", err
	}
	if id == s.CurrentComplaintID {
		s.State = StateResolved
	}
	return fmt.Sprintf("Thank you for confirming. Complaint %s has been marked as Resolved. ✅", id), nil
}

// statusReport renders the status of the complaint named in the message (or
// the session's current one).
func (c *Controller) statusReport(ctx context.Context, s *Session, msg string) (string, error) {
	id := complaintIDRE.FindString(msg)
	if id == "" {
		id = s.CurrentComplaintID
	}
	if id == "" {
		return "Please provide your complaint ID (e.g. COMP-20240101-ab12) so I can look up its status.", nil
	}

	rec, err := c.Store.GetComplaint(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return fmt.Sprintf("Complaint %s was not found. Please double-check the ID.", id), nil
		}
		return "", err
	}
	recent, err := c.Store.ListMessages(ctx, id, -3)
	if err != nil {
		return "", err
	}
	return renderStatusReport(rec, recent), nil
}

// coldStart classifies a fresh message (relevance, then complaint-vs-inquiry)
// and registers genuine complaints immediately.
func (c *Controller) coldStart(ctx context.Context, s *Session, msg string) (string, error) {
	relOut, err := c.LLM.Generate(ctx, llm.RelevancePrompt(msg))
	if err != nil {
		return "", err
	}
	if label, ok := llm.MatchLabel(relOut, llm.LabelNotRelevant, llm.LabelRelevant); ok && label == llm.LabelNotRelevant {
		return offTopicRedirect, nil
	}

	kindOut, err := c.LLM.Generate(ctx, llm.ComplaintVsInquiryPrompt(msg))
	if err != nil {
		return "", err
	}

	reply, err := c.LLM.Generate(ctx, llm.InitialResponsePrompt(msg))
	if err != nil {
		return "", err
	}

	if label, ok := llm.MatchLabel(kindOut, llm.LabelComplaint, llm.LabelInquiry); ok && label == llm.LabelComplaint {
		id, err := c.Store.CreateComplaint(ctx, msg, reply)
		if err != nil {
			return "", err
		}
		s.CurrentComplaintID = id
		s.State = StateOpen
		return fmt.Sprintf("%s\n\nYour complaint has been registered with ID: %s. You can check its status anytime with \"check status %s\".", reply, id, id), nil
	}
	return reply, nil
}

// continueConversation generates a follow-up from recent turns, logs both
// sides to the store, and re-runs the resolution check.
func (c *Controller) continueConversation(ctx context.Context, s *Session, msg string) (string, error) {
	reply, err := c.generateFollowUp(ctx, s, msg)
	if err != nil {
		return "", err
	}

	if s.CurrentComplaintID != "" {
		if err := c.Store.AppendMessage(ctx, s.CurrentComplaintID, "user", msg); err != nil {
			return "", err
		}
		if err := c.Store.AppendMessage(ctx, s.CurrentComplaintID, "bot", reply); err != nil {
			return "", err
		}

		resOut, err := c.LLM.Generate(ctx, llm.ResolutionCheckPrompt(reply, msg))
		if err != nil {
			return "", err
		}
		if label, ok := llm.MatchLabel(resOut, llm.LabelResolved, llm.LabelOngoing); ok && label == llm.LabelResolved {
			if err := c.Store.UpdateStatus(ctx, s.CurrentComplaintID, domain.StatusResolved, ""); err != nil {
				return "", err
			}
			s.State = StateResolved
		}
	}
	return reply, nil
}

func (c *Controller) generateFollowUp(ctx context.Context, s *Session, msg string) (string, error) {
	// The session log already holds msg as its last entry; the prompt carries
	// it separately, so exclude it from the windowed history.
	history := s.Log
	if n := len(history); n > 0 && history[n-1].Content == msg {
		history = history[:n-1]
	}
	return c.LLM.Generate(ctx, llm.FollowUpPrompt(llm.Window(history, c.HistoryWindow), msg))
}

func (c *Controller) window(s *Session) []llm.Message {
	return llm.Window(s.Log, c.HistoryWindow)
}

// missingInfoPrompt lists exactly the unfilled fields with an example format.
func missingInfoPrompt(info UserInfo) string {
	missing := info.Missing()
	return fmt.Sprintf(
		"To escalate your complaint I still need your %s. "+
			"For example: \"My name is John Smith, 9876543210, address 12 Park Street\".",
		joinNatural(missing),
	)
}

// escalationSummary is the alternate reply returned when the clarification
// cap forces an escalation.
func escalationSummary(info UserInfo) string {
	if info.Complete() {
		return "I wasn't able to resolve this directly, so I'm escalating it to our support team."
	}
	return "I wasn't able to resolve this directly, so I'm escalating it to our support team. " +
		missingInfoPrompt(info)
}

// isInfoSupplying reports whether the message only supplies contact fields:
// it mentions all of name, mobile/number, and address (typos tolerated), so
// it should not be anchored as a complaint subject.
func isInfoSupplying(msg string) bool {
	low := strings.ToLower(msg)
	hasName := strings.Contains(low, "name")
	hasMobile := strings.Contains(low, "mobile") || strings.Contains(low, "number")
	hasAddress := strings.Contains(low, "address") || strings.Contains(low, "adderss")
	return hasName && hasMobile && hasAddress
}

func containsAnyFold(s string, phrases []string) bool {
	low := strings.ToLower(s)
	for _, p := range phrases {
		if strings.Contains(low, p) {
			return true
		}
	}
	return false
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
