package stage

import (
	"context"

	"launchlock/internal/queue"
)

// Handler executes one command type for the worker.
//
// Execute runs with the command already claimed. Returning nil marks the
// command succeeded and returning an error lets the worker classify it. A
// handler that settles the outcome itself, such as parking a command for an
// operator after recording a blocked listing, sets cmd.Status through
// RequireHuman; the worker persists that status as-is.
type Handler interface {
	Execute(ctx context.Context, cmd *queue.Command) error
	HealthCheck(ctx context.Context) Health
}
