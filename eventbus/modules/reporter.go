package modules

import (
	"context"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/playlog/backend/eventbus"
	Logger "github.com/playlog/backend/utils/log"
)

// Metrics is the part of *statsd.Client the reporter uses.
type Metrics interface {
	Incr(name string, tags []string, rate float64) error
}

type ReporterConfig struct {
	Name string
}

// Reporter listens to the domain topics and counts them in Datadog.
type Reporter struct {
	Config ReporterConfig

	Statsd Metrics

	EventBus message.Subscriber
}

func NewReporter(config ReporterConfig, statsd Metrics, e message.Subscriber) *Reporter {
	return &Reporter{
		Config:   config,
		Statsd:   statsd,
		EventBus: e,
	}
}

// metricOf returns the counter and tags for one event, ok=false drops it.
func metricOf(topic string, msg *message.Message) (string, []string, bool) {
	switch topic {
	case eventbus.TOPIC_REVIEW_WRITTEN:
		e := eventbus.ReviewWrittenEvent{}
		if err := eventbus.Decode(msg, &e); err != nil {
			return "", nil, false
		}
		return eventbus.DDOG_REVIEW_COUNTER, []string{"action:" + string(e.Action)}, true
	case eventbus.TOPIC_FAVORITE_CHANGED:
		e := eventbus.FavoriteChangedEvent{}
		if err := eventbus.Decode(msg, &e); err != nil {
			return "", nil, false
		}
		return eventbus.DDOG_FAVORITE_COUNTER, []string{"added:" + strconv.FormatBool(e.Added)}, true
	case eventbus.TOPIC_USER_FOLLOWED:
		return eventbus.DDOG_FOLLOW_COUNTER, nil, true
	case eventbus.TOPIC_REVIEW_COMMENTED:
		return eventbus.DDOG_COMMENT_COUNTER, nil, true
	}
	return "", nil, false
}

// Report sends the counter of a single message.
func (r *Reporter) Report(topic string, msg *message.Message) {
	name, tags, ok := metricOf(topic, msg)
	if !ok {
		Logger.Log.Warnf("reporter dropped message %s on %s", msg.UUID, topic)
		return
	}
	if err := r.Statsd.Incr(name, tags, 1); err != nil {
		Logger.Log.Infoln("cannot report metric", name)
	}
}

func (r *Reporter) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	topics := []string{
		eventbus.TOPIC_REVIEW_WRITTEN,
		eventbus.TOPIC_FAVORITE_CHANGED,
		eventbus.TOPIC_USER_FOLLOWED,
		eventbus.TOPIC_REVIEW_COMMENTED,
	}
	var wg sync.WaitGroup
	for _, topic := range topics {
		messages, err := r.EventBus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(topic string, messages <-chan *message.Message) {
			defer wg.Done()
			for msg := range messages {
				msg.Ack()
				r.Report(topic, msg)
			}
		}(topic, messages)
	}
	wg.Wait()
	return nil
}

func (r *Reporter) Name() string {
	return r.Config.Name
}
