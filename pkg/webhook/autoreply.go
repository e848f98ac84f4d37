package webhook

import (
	"strings"

	"github.com/nimbuspos/chatgate/pkg/messaging"
)

// matchAutoReply decides whether an inbound text deserves a canned reply.
// The whole trimmed body must equal a command, case-insensitively; "please
// help me" is a human sentence, not a command. At most one reply fires.
func matchAutoReply(cfg *messaging.Config, body string) (string, bool) {
	if cfg == nil || !cfg.AutoReplyEnabled {
		return "", false
	}

	switch strings.ToLower(strings.TrimSpace(body)) {
	case "help", "support":
		if cfg.SupportText != "" {
			return cfg.SupportText, true
		}
	case "hours", "opening hours":
		if cfg.BusinessHours != "" {
			return cfg.BusinessHours, true
		}
	}
	return "", false
}
