package calendar

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGateway struct {
	createCalls int
	cancelCalls int
	// fail the first n calls with err before succeeding
	failures int
	err      error
}

func (g *scriptedGateway) CreateEvent(_ context.Context, _ int64, _ EventSpec) (string, error) {
	g.createCalls++
	if g.createCalls <= g.failures {
		return "", g.err
	}
	return "evt-123", nil
}

func (g *scriptedGateway) CancelEvent(_ context.Context, _ int64, _ string) error {
	g.cancelCalls++
	if g.cancelCalls <= g.failures {
		return g.err
	}
	return nil
}

func fastRetry(inner Gateway) *RetryGateway {
	return NewRetryGateway(inner, RetryConfig{InitialIntervalMS: 1, MaxElapsedMS: 500})
}

func TestRetryGatewayRecoversFromTransientFailure(t *testing.T) {
	inner := &scriptedGateway{failures: 2, err: errors.New("upstream 503")}
	gw := fastRetry(inner)

	ref, err := gw.CreateEvent(context.Background(), 1, EventSpec{Summary: "Ride: Rex"})
	require.NoError(t, err)
	assert.Equal(t, "evt-123", ref)
	assert.Equal(t, 3, inner.createCalls)
}

func TestRetryGatewayDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &scriptedGateway{failures: 10, err: ErrNotConnected}
	gw := fastRetry(inner)

	_, err := gw.CreateEvent(context.Background(), 1, EventSpec{})
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, inner.createCalls)

	inner = &scriptedGateway{failures: 10, err: ErrEventNotFound}
	gw = fastRetry(inner)
	err = gw.CancelEvent(context.Background(), 1, "evt-gone")
	require.ErrorIs(t, err, ErrEventNotFound)
	assert.Equal(t, 1, inner.cancelCalls)
}

func TestRetryGatewayGivesUpAfterBudget(t *testing.T) {
	inner := &scriptedGateway{failures: 1 << 30, err: errors.New("upstream down")}
	gw := NewRetryGateway(inner, RetryConfig{InitialIntervalMS: 1, MaxElapsedMS: 20})

	err := gw.CancelEvent(context.Background(), 1, "evt-123")
	require.Error(t, err)
	assert.Greater(t, inner.cancelCalls, 1)
}

func TestRetryGatewayHonorsContextCancellation(t *testing.T) {
	inner := &scriptedGateway{failures: 1 << 30, err: errors.New("upstream down")}
	gw := NewRetryGateway(inner, RetryConfig{InitialIntervalMS: 50, MaxElapsedMS: 60000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.CreateEvent(ctx, 1, EventSpec{})
	require.Error(t, err)
	assert.LessOrEqual(t, inner.createCalls, 2)
}
