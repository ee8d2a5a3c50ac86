package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/stage"
)

// outcome is the status a finished command resolves to.
type outcome struct {
	status  queue.Status
	cause   error
	retryAt time.Time
}

func (m *Manager) processCommand(ctx context.Context, runnerLogger *slog.Logger, cmd *queue.Command) error {
	cmdCtx := withCommandContext(ctx, cmd, uuid.NewString())
	logger := logging.WithContext(cmdCtx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	m.setLastCommand(cmd)

	handler, ok := m.handlerFor(cmd.Type)
	if !ok {
		failure := services.NewFailure(services.ErrFatal, services.CodeUnknownCommandType,
			fmt.Sprintf("no handler registered for command type %q", cmd.Type))
		return m.settle(cmdCtx, logger, cmd, outcome{status: queue.StatusFailedFatal, cause: failure}, 0)
	}

	start := time.Now()
	logger.Info("command started",
		logging.String(logging.FieldEventType, "command_start"),
		logging.Int("max_attempts", cmd.MaxAttempts),
	)

	execErr := m.executeWithHeartbeat(cmdCtx, logger, handler, cmd)
	result := m.resolve(ctx, cmd, execErr)
	return m.settle(cmdCtx, logger, cmd, result, time.Since(start))
}

func withCommandContext(ctx context.Context, cmd *queue.Command, requestID string) context.Context {
	ctx = services.WithCommandID(ctx, cmd.ID)
	ctx = services.WithCommandType(ctx, string(cmd.Type))
	ctx = services.WithAttempt(ctx, cmd.Attempts)
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, logger *slog.Logger, handler stage.Handler, cmd *queue.Command) error {
	execCtx, interrupt := context.WithCancel(ctx)
	defer interrupt()

	hbCtx, hbCancel := context.WithCancel(execCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, cmd.ID, interrupt)

	execErr := safeExecute(execCtx, logger, handler, cmd)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// safeExecute converts a handler panic into a fatal failure so one bad
// command cannot take the worker down.
func safeExecute(ctx context.Context, logger *slog.Logger, handler stage.Handler, cmd *queue.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "handler_panic"),
				logging.Alert("handler_panic"),
			)
			err = services.NewFailure(services.ErrFatal, services.CodeHandlerPanic, fmt.Sprintf("handler panicked: %v", r))
		}
	}()
	return handler.Execute(ctx, cmd)
}

// resolve maps a handler result onto the status graph. parent is the worker
// context; when it is done the command was interrupted by shutdown rather
// than by its own failure.
func (m *Manager) resolve(parent context.Context, cmd *queue.Command, execErr error) outcome {
	if status, ok := stage.SettledStatus(cmd); ok {
		return outcome{status: status, cause: settledCause(cmd, execErr)}
	}
	if execErr == nil {
		return outcome{status: queue.StatusSucceeded}
	}
	if parent.Err() != nil && errors.Is(execErr, context.Canceled) {
		return outcome{status: queue.StatusPending, cause: execErr}
	}

	status := queue.FailureStatus(execErr, cmd.Attempts, cmd.MaxAttempts)
	switch status {
	case queue.StatusFailedRetryable:
		return outcome{status: status, cause: execErr, retryAt: m.clock.Now().Add(m.cfg.RetryBackoff(cmd.Attempts))}
	case queue.StatusHumanRequired:
		if services.Classify(execErr) == services.KindTransient {
			exhausted := services.NewFailure(services.ErrTransient, services.CodeRetriesExhausted,
				fmt.Sprintf("gave up after %d attempts: %s", cmd.Attempts, services.Details(execErr).Message)).WithCause(execErr)
			return outcome{status: status, cause: exhausted}
		}
	}
	return outcome{status: status, cause: execErr}
}

func settledCause(cmd *queue.Command, execErr error) error {
	code := services.Code(cmd.ErrorCode)
	if code == "" {
		if execErr != nil {
			return execErr
		}
		if cmd.Status == queue.StatusCancelled {
			code = services.CodeCancelled
		} else {
			code = services.CodeInternalError
		}
	}
	message := cmd.ErrorMessage
	if message == "" {
		message = string(cmd.Status)
	}
	return services.NewFailure(services.ErrPolicy, code, message)
}

// settle persists result. The transition is conditional on the command still
// executing under this worker, so an operator cancel that landed while the
// handler ran is left in place.
func (m *Manager) settle(ctx context.Context, logger *slog.Logger, cmd *queue.Command, result outcome, elapsed time.Duration) error {
	persistCtx := context.WithoutCancel(ctx)
	opts := []queue.TransitionOption{queue.ExpectStatus(queue.StatusExecuting), queue.OwnedBy(m.workerID)}
	if !result.retryAt.IsZero() {
		opts = append(opts, queue.RetryAt(result.retryAt))
	}

	err := m.store.Transition(persistCtx, cmd.ID, result.status, result.cause, opts...)
	if errors.Is(err, queue.ErrStatusConflict) {
		logger.Info("command changed while executing; leaving status in place",
			logging.String("resolved_status", string(result.status)),
			logging.String(logging.FieldEventType, "command_superseded"),
		)
		m.refreshLastCommand(persistCtx, cmd.ID)
		return nil
	}
	if err != nil {
		logger.Error("failed to persist command result",
			logging.Error(err),
			logging.String("resolved_status", string(result.status)),
			logging.String(logging.FieldEventType, "command_persist_failed"),
			logging.String(logging.FieldErrorHint, "lease expiry will return the command to the queue"),
		)
		return fmt.Errorf("persist command result: %w", err)
	}

	cmd.Status = result.status
	if result.cause != nil {
		detail := services.Details(result.cause)
		cmd.ErrorCode = string(detail.Code)
		cmd.ErrorMessage = detail.Message
		cmd.LastError = result.cause.Error()
	}
	cmd.NextAttemptAt = result.retryAt
	m.setLastCommand(cmd)

	m.logOutcome(logger, cmd, result, elapsed)
	m.notifyOutcome(persistCtx, logger, cmd, result)
	return nil
}

func (m *Manager) logOutcome(logger *slog.Logger, cmd *queue.Command, result outcome, elapsed time.Duration) {
	switch result.status {
	case queue.StatusSucceeded:
		logger.Info("command succeeded",
			logging.String(logging.FieldEventType, "command_succeeded"),
			logging.Duration("command_duration", elapsed),
		)
		return
	case queue.StatusPending:
		logger.Info("command returned to queue by shutdown",
			logging.String(logging.FieldEventType, "command_requeued"),
		)
		return
	}

	detail := services.Details(result.cause)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "command_failed"),
		logging.String("resolved_status", string(result.status)),
		logging.String(logging.FieldErrorKind, string(detail.Kind)),
		logging.String(logging.FieldErrorCode, string(detail.Code)),
		logging.String("error_message", detail.Message),
		logging.Duration("command_duration", elapsed),
	}
	if result.cause != nil {
		attrs = append(attrs, logging.Error(result.cause))
	}
	switch result.status {
	case queue.StatusFailedRetryable:
		attrs = append(attrs,
			logging.Int("attempts", cmd.Attempts),
			logging.Int("max_attempts", cmd.MaxAttempts),
			logging.String("next_attempt_at", result.retryAt.UTC().Format(time.RFC3339)),
		)
		logger.Warn("command failed", logging.Args(attrs...)...)
	case queue.StatusCancelled:
		logger.Info("command cancelled", logging.Args(attrs...)...)
	default:
		attrs = append(attrs, logging.Alert(string(result.status)))
		logger.Error("command failed", logging.Args(attrs...)...)
	}
}
