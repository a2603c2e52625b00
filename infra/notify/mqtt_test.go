package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldlit/pet-dispatch-deploy/core/events"
	"github.com/eldlit/pet-dispatch-deploy/internal/eventbus"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publishCall struct {
	topic   string
	payload []byte
}

type fakePahoClient struct {
	connected bool
	failures  int
	published []publishCall
}

func (c *fakePahoClient) IsConnected() bool { return c.connected }

func (c *fakePahoClient) Connect() paho.Token {
	c.connected = true
	return &fakeToken{}
}

func (c *fakePahoClient) Disconnect(uint) { c.connected = false }

func (c *fakePahoClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	if c.failures > 0 {
		c.failures--
		return &fakeToken{err: errors.New("broker unavailable")}
	}
	c.published = append(c.published, publishCall{topic: topic, payload: payload.([]byte)})
	return &fakeToken{}
}

func newTestNotifier(t *testing.T, cli *fakePahoClient) *Notifier {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return cli }
	t.Cleanup(func() { newMQTTClient = orig })

	n, err := NewNotifier(Config{Broker: "tcp://localhost:1883", BackoffMS: 1})
	require.NoError(t, err)
	return n
}

func TestNotifyAssignment_PublishesToDriverTopic(t *testing.T) {
	cli := &fakePahoClient{}
	n := newTestNotifier(t, cli)

	scheduled := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	err := n.NotifyAssignment(events.AssignmentEvent{RideID: 10, DriverID: 2, ScheduledTime: scheduled})
	require.NoError(t, err)

	require.Len(t, cli.published, 1)
	assert.Equal(t, "petdispatch/drivers/2/rides", cli.published[0].topic)

	var note rideNotification
	require.NoError(t, json.Unmarshal(cli.published[0].payload, &note))
	assert.Equal(t, "assigned", note.Kind)
	assert.Equal(t, int64(10), note.RideID)
	assert.Equal(t, scheduled.Unix(), note.Scheduled)
}

func TestNotifyUnassignment_PublishesToDriverTopic(t *testing.T) {
	cli := &fakePahoClient{}
	n := newTestNotifier(t, cli)

	err := n.NotifyUnassignment(events.UnassignmentEvent{RideID: 10, DriverID: 2})
	require.NoError(t, err)

	require.Len(t, cli.published, 1)
	assert.Equal(t, "petdispatch/drivers/2/rides", cli.published[0].topic)

	var note rideNotification
	require.NoError(t, json.Unmarshal(cli.published[0].payload, &note))
	assert.Equal(t, "unassigned", note.Kind)
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	cli := &fakePahoClient{failures: 2}
	n := newTestNotifier(t, cli)

	err := n.NotifyAssignment(events.AssignmentEvent{RideID: 11, DriverID: 1, ScheduledTime: time.Now()})
	require.NoError(t, err)
	require.Len(t, cli.published, 1)
}

func TestPublish_GivesUpAfterMaxRetries(t *testing.T) {
	cli := &fakePahoClient{failures: 10}
	n := newTestNotifier(t, cli)

	err := n.NotifyAssignment(events.AssignmentEvent{RideID: 11, DriverID: 1, ScheduledTime: time.Now()})
	require.Error(t, err)
	assert.Empty(t, cli.published)
}

func TestRun_ConsumesBusEvents(t *testing.T) {
	cli := &fakePahoClient{}
	n := newTestNotifier(t, cli)

	bus := eventbus.New()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, bus)
		close(done)
	}()

	// Give the subscriber a moment to register before publishing.
	time.Sleep(10 * time.Millisecond)
	bus.Publish(events.AssignmentEvent{RideID: 10, DriverID: 2, ScheduledTime: time.Now()})
	bus.Publish(events.CalendarSyncEvent{JobID: "job-1"})
	bus.Publish(events.UnassignmentEvent{RideID: 10, DriverID: 2})

	assert.Eventually(t, func() bool {
		return len(cli.published) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
