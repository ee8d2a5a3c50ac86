package stage

import (
	"context"
	"fmt"

	"launchlock/internal/queue"
	"launchlock/internal/services"
)

// DecodePayload parses the command payload into the variant the handler
// expects. Malformed payloads are fatal: retrying cannot repair them.
func DecodePayload[T queue.Payload](cmd *queue.Command) (T, error) {
	var zero T
	payload, err := cmd.Payload()
	if err != nil {
		return zero, services.NewFailure(services.ErrFatal, services.CodeInvalidPayload,
			"command payload is malformed; re-enqueue with a valid payload").WithCause(err)
	}
	typed, ok := payload.(T)
	if !ok {
		return zero, services.Wrap(
			services.ErrFatal, "stage", "decode payload",
			fmt.Sprintf("command type %s routed to handler for %T", cmd.Type, zero), nil)
	}
	return typed, nil
}

// CheckCancelled returns a CANCELLED failure once ctx is done. Multi-step
// handlers call it between side effects so that an operator cancel stops
// the command before the next external call.
func CheckCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return services.NewFailure(services.ErrTransient, services.CodeCancelled, "command interrupted").WithCause(err)
	}
	return nil
}

// RequireHuman settles cmd as human_required with the code and message of
// cause. The worker persists the status instead of classifying the result.
func RequireHuman(cmd *queue.Command, cause error) {
	detail := services.Details(cause)
	cmd.Status = queue.StatusHumanRequired
	cmd.ErrorCode = string(detail.Code)
	cmd.ErrorMessage = detail.Message
	if cause != nil {
		cmd.LastError = cause.Error()
	}
}

// SettledStatus reports the status a handler assigned to cmd, if any.
func SettledStatus(cmd *queue.Command) (queue.Status, bool) {
	switch cmd.Status {
	case queue.StatusHumanRequired, queue.StatusCancelled:
		return cmd.Status, true
	default:
		return "", false
	}
}
