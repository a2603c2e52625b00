package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig tunes the backoff applied around gateway calls.
type RetryConfig struct {
	InitialIntervalMS int `json:"initial_interval_ms"`
	MaxElapsedMS      int `json:"max_elapsed_ms"`
}

// SetDefaults applies sane defaults.
func (c *RetryConfig) SetDefaults() {
	if c.InitialIntervalMS <= 0 {
		c.InitialIntervalMS = 200
	}
	if c.MaxElapsedMS <= 0 {
		c.MaxElapsedMS = 5000
	}
}

// RetryGateway wraps a Gateway with exponential backoff. Authorization and
// not-found failures are permanent and returned immediately; everything else
// is retried until the elapsed budget runs out.
type RetryGateway struct {
	inner Gateway
	cfg   RetryConfig
}

// NewRetryGateway wraps inner with the given retry budget.
func NewRetryGateway(inner Gateway, cfg RetryConfig) *RetryGateway {
	cfg.SetDefaults()
	return &RetryGateway{inner: inner, cfg: cfg}
}

func (g *RetryGateway) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(g.cfg.InitialIntervalMS) * time.Millisecond
	b.MaxElapsedTime = time.Duration(g.cfg.MaxElapsedMS) * time.Millisecond
	return backoff.WithContext(b, ctx)
}

func classify(err error) error {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrEventNotFound) {
		return backoff.Permanent(err)
	}
	return err
}

// CreateEvent implements Gateway.
func (g *RetryGateway) CreateEvent(ctx context.Context, driverID int64, spec EventSpec) (string, error) {
	var ref string
	op := func() error {
		var err error
		ref, err = g.inner.CreateEvent(ctx, driverID, spec)
		return classify(err)
	}
	if err := backoff.Retry(op, g.policy(ctx)); err != nil {
		return "", err
	}
	return ref, nil
}

// CancelEvent implements Gateway.
func (g *RetryGateway) CancelEvent(ctx context.Context, driverID int64, eventRef string) error {
	op := func() error {
		return classify(g.inner.CancelEvent(ctx, driverID, eventRef))
	}
	return backoff.Retry(op, g.policy(ctx))
}
