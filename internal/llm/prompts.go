package llm

import (
	"fmt"
	"strings"
)

// The classification prompts below each ask for a single label from a fixed
// set. Raw model output is matched with MatchLabel; non-matching output is the
// caller's default branch.

// relevancePromptTmpl decides whether the message is a real-world
// complaint/service topic at all.
const relevancePromptTmpl = `You are a classifier for a municipal complaint helpdesk.
Decide whether the user message below concerns a real-world complaint or service topic
(broken infrastructure, utilities, sanitation, billing, service quality, and similar).

Respond with exactly one word: RELEVANT or NOT_RELEVANT.

User message: %s`

// complaintVsInquiryPromptTmpl separates genuine complaints from questions.
const complaintVsInquiryPromptTmpl = `You are a classifier for a complaint helpdesk.
Decide whether the user message below reports a problem to be fixed (COMPLAINT)
or merely asks for information (INQUIRY).

Respond with exactly one word: COMPLAINT or INQUIRY.

User message: %s`

// resolutionCheckPromptTmpl decides whether the user considers the issue closed.
const resolutionCheckPromptTmpl = `A helpdesk bot replied to a user. Based on the exchange below,
decide whether the user's issue is settled (RESOLVED) or still being worked on (ONGOING).

Respond with exactly one word: RESOLVED or ONGOING.

Bot's last reply: %s
User's latest message: %s`

// stateCheckPromptTmpl re-evaluates where an active complaint conversation stands.
const stateCheckPromptTmpl = `You are tracking a complaint conversation. Based on the history below,
classify the current state of the conversation.

Respond with exactly one word out of:
AWAITING_INFO (the bot is waiting for details from the user),
ESCALATION_PENDING (the issue needs a human operator),
RESOLVED (the user's issue is settled),
OFF_TOPIC (the user has drifted away from the complaint),
OPEN (the complaint discussion is simply continuing).

Conversation:
%s`

// solverPromptTmpl asks for a direct fix, or the literal token ESCALATE when
// the issue cannot be handled in chat.
const solverPromptTmpl = `You are a helpful customer support assistant for a complaint helpdesk.
The user reported the following issue. Offer a clear, concise solution or next step they can take themselves.
If the issue genuinely requires a field visit, a human operator, or account access you do not have,
respond with exactly the single word ESCALATE and nothing else.
If you need one specific detail from the user before you can help, ask for it in one short question.

Issue: %s

Recent conversation:
%s`

// initialResponsePromptTmpl produces the first reply for a fresh message.
const initialResponsePromptTmpl = `You are a helpful customer support chatbot for a complaint helpdesk.
Provide a clear, professional and concise response to the following message: %s`

// followUpPromptTmpl produces a continuation reply from windowed history.
const followUpPromptTmpl = `You are a helpful customer support chatbot for a complaint helpdesk.
Continue the conversation below with a concise, professional reply to the user's latest message.

Conversation:
%s

User's latest message: %s`

// RelevancePrompt builds the relevance classification prompt.
func RelevancePrompt(message string) string {
	return fmt.Sprintf(relevancePromptTmpl, message)
}

// ComplaintVsInquiryPrompt builds the complaint-vs-inquiry classification prompt.
func ComplaintVsInquiryPrompt(message string) string {
	return fmt.Sprintf(complaintVsInquiryPromptTmpl, message)
}

// ResolutionCheckPrompt builds the resolved-vs-ongoing prompt from the bot's
// last reply and the user's latest message.
func ResolutionCheckPrompt(lastBotReply, userMessage string) string {
	return fmt.Sprintf(resolutionCheckPromptTmpl, lastBotReply, userMessage)
}

// StateCheckPrompt builds the mid-complaint state re-evaluation prompt.
func StateCheckPrompt(history []Message) string {
	return fmt.Sprintf(stateCheckPromptTmpl, FormatHistory(history))
}

// SolverPrompt builds the solution-attempt prompt for the anchored complaint.
func SolverPrompt(complaint string, history []Message) string {
	return fmt.Sprintf(solverPromptTmpl, complaint, FormatHistory(history))
}

// InitialResponsePrompt builds the cold-start generation prompt.
func InitialResponsePrompt(message string) string {
	return fmt.Sprintf(initialResponsePromptTmpl, message)
}

// FollowUpPrompt builds the default-continuation prompt from windowed history.
func FollowUpPrompt(history []Message, userMessage string) string {
	return fmt.Sprintf(followUpPromptTmpl, FormatHistory(history), userMessage)
}

// FormatHistory renders conversation turns as "role: content" lines.
func FormatHistory(history []Message) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	var sb strings.Builder
	for i, m := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// Window returns the last n turns of history (all of it when n <= 0).
func Window(history []Message, n int) []Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
