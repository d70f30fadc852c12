package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"bidstack/internal/api"
)

// Serve runs the HTTP query API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	queries, closeAll, err := a.newQueries(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	server := api.New(a.Config.API, queries, a.Logger)

	a.Logger.Info().Strs("backends", queries.Names()).Msg("starting query api")
	err = server.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("query api terminated with error")
		return err
	}

	a.Logger.Info().Msg("query api stopped")
	return nil
}
