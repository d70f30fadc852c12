package app

import (
	"context"

	"bidstack/internal/config"
	"bidstack/internal/service"
)

// Verify runs the query on two backends and reports the first divergence.
func (a *App) Verify(ctx context.Context, opts VerifyOptions) error {
	queries, closeAll, err := a.newQueries(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	left, right := opts.Left, opts.Right
	if left == "" {
		left = config.BackendPostgres
	}
	if right == "" {
		right = config.BackendMemory
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Debug().Msg("alerting disabled; divergence is only logged")
	}
	verifier := service.NewVerifier(queries, notifier, a.Config.Query.Tolerance, a.Logger)
	return verifier.Verify(ctx, left, right, opts.Query)
}
