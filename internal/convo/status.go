package convo

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// statusEmoji maps complaint statuses to the fixed markers used in status
// reports. Unknown statuses render with the white circle.
func statusEmoji(status string) string {
	switch status {
	case domain.StatusOpen:
		return "🔴"
	case domain.StatusInProgress:
		return "🟡"
	case domain.StatusResolved:
		return "🟢"
	default:
		return "⚪"
	}
}

// statusTimeFormat is the human format used for complaint timestamps.
const statusTimeFormat = "Jan 2, 2006 at 3:04 PM"

// renderStatusReport builds the status-check reply for a complaint: status
// label with its marker, creation/update timestamps, the resolution text when
// present, and up to the last three conversation turns.
func renderStatusReport(c *domain.Complaint, recent []domain.ConversationEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Status for complaint %s\n", c.ID)
	fmt.Fprintf(&sb, "Status: %s %s\n", statusEmoji(c.Status), c.Status)
	fmt.Fprintf(&sb, "Created: %s\n", c.CreatedAt.Format(statusTimeFormat))
	fmt.Fprintf(&sb, "Last updated: %s\n", c.UpdatedAt.Format(statusTimeFormat))
	if c.Resolution != nil && *c.Resolution != "" {
		fmt.Fprintf(&sb, "Resolution: %s\n", *c.Resolution)
	}
	if len(recent) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, e := range recent {
			fmt.Fprintf(&sb, "  %s: %s\n", e.Role, e.Content)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
