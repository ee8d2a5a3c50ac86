package workflow

import (
	"context"
	"errors"
	"log/slog"

	"launchlock/internal/logging"
	"launchlock/internal/notifications"
	"launchlock/internal/queue"
)

func (m *Manager) notifyOutcome(ctx context.Context, logger *slog.Logger, cmd *queue.Command, result outcome) {
	if m.notifier == nil {
		return
	}
	var event notifications.Event
	switch result.status {
	case queue.StatusHumanRequired:
		event = notifications.EventHumanRequired
	case queue.StatusFailedFatal:
		event = notifications.EventFailedFatal
	default:
		return
	}

	if err := m.notifier.Publish(ctx, event, notifications.Payload{
		"command_id":    cmd.ID,
		"command_type":  string(cmd.Type),
		"error_code":    cmd.ErrorCode,
		"error_message": cmd.ErrorMessage,
		"attempts":      cmd.Attempts,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification")
			return
		}
		logger.Warn("operator notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator will not be paged for this command"),
		)
	}
}
