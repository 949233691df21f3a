package agent

import (
	"context"
	"errors"

	"github.com/sipeed/emoclaw/pkg/coordinator"
)

var errRateLimited = errors.New("rate limited")

// userFriendlyError converts a raw Go error into a message safe to display
// to end users in chat. The original error is still logged server-side by
// the caller.
func userFriendlyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errRateLimited):
		return "You're sending messages faster than I can think. Please wait a moment and try again."
	case errors.Is(err, coordinator.ErrClosed):
		return "I'm shutting down and can't take new messages right now."
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long to process. Please try again."
	}
	// Never expose the raw error string (it may contain API keys or internal
	// paths).
	return genericErrorMessage
}

const genericErrorMessage = "Something went wrong processing your message. " +
	"Run 'emoclaw stages' to check the configuration."
