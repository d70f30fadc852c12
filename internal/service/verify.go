package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/alerting"
	"bidstack/internal/query"
)

// Verifier compares two backends on the same query and reports divergence.
type Verifier struct {
	queries   *Queries
	notifier  alerting.Notifier
	tolerance float64
	logger    zerolog.Logger
}

// NewVerifier builds a verifier; notifier may be nil.
func NewVerifier(queries *Queries, notifier alerting.Notifier, tolerance float64, logger zerolog.Logger) *Verifier {
	if tolerance <= 0 {
		tolerance = query.DefaultTolerance
	}
	return &Verifier{
		queries:   queries,
		notifier:  notifier,
		tolerance: tolerance,
		logger:    logger.With().Str("component", "verify").Logger(),
	}
}

// Verify runs every aggregate of q on left and right. A divergence is returned as
// *query.BackendDivergenceError and, when a notifier is configured, alerted.
func (v *Verifier) Verify(ctx context.Context, left, right string, q query.BidQuery) error {
	l, err := v.queries.Backend(left)
	if err != nil {
		return err
	}
	r, err := v.queries.Backend(right)
	if err != nil {
		return err
	}

	parity := query.Parity{Left: l, Right: r, Tolerance: v.tolerance}
	err = parity.Check(ctx, q)

	var divergence *query.BackendDivergenceError
	if !errors.As(err, &divergence) {
		if err == nil {
			v.logger.Info().Str("left", l.Name()).Str("right", r.Name()).
				Time("start", q.Start).Time("end", q.End).
				Msg("backends agree")
		}
		return err
	}

	v.logger.Error().Err(err).Str("operation", divergence.Operation).Msg("backends diverge")
	if v.notifier != nil {
		note := alerting.FromDivergence(divergence, q, v.tolerance, time.Now().UTC())
		if nerr := v.notifier.Notify(ctx, note); nerr != nil {
			v.logger.Error().Err(nerr).Msg("failed to dispatch alert")
		}
	}
	return err
}
