package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyModule struct {
	runs     int32
	failures int32
}

func (m *flakyModule) RunModule(ctx context.Context) error {
	n := atomic.AddInt32(&m.runs, 1)
	if n <= m.failures {
		return errors.New("flaky")
	}
	<-ctx.Done()
	return nil
}

func (m *flakyModule) Name() string {
	return "flaky"
}

func TestEngineRestartsFailingModule(t *testing.T) {
	GracefulRetryDelay = 10 * time.Millisecond
	defer func() { GracefulRetryDelay = 3 * time.Second }()

	m := &flakyModule{failures: 2}
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine([]Module{m}, ctx, cancel, NewEventBus())
	go e.Run()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&m.runs) == 3
	}, time.Second, 5*time.Millisecond)

	e.Shutdown()
	assert.Equal(t, int32(3), atomic.LoadInt32(&m.runs))
}

func TestEngineShutdownWithoutRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine([]Module{}, ctx, cancel, NewEventBus())
	e.Shutdown()
	assert.Error(t, ctx.Err())
}

func TestBusPublisherRoundTrip(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	messages, err := bus.Subscribe(context.Background(), TOPIC_USER_FOLLOWED)
	require.NoError(t, err)

	p := NewBusPublisher(bus)
	sent := UserFollowedEvent{FollowerId: "a", FolloweeId: "b", FollowerName: "Alice"}
	require.NoError(t, p.Publish(TOPIC_USER_FOLLOWED, sent))

	var msg *message.Message
	select {
	case msg = <-messages:
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	msg.Ack()

	var got UserFollowedEvent
	require.NoError(t, Decode(msg, &got))
	assert.Equal(t, sent, got)
}
