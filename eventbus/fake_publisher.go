package eventbus

import "sync"

// PublishedEvent is an event captured by FakePublisher.
type PublishedEvent struct {
	Topic string
	Event interface{}
}

// FakePublisher records published events instead of sending them.
type FakePublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (p *FakePublisher) Publish(topic string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, PublishedEvent{Topic: topic, Event: event})
	return nil
}

// Events returns the events published so far on topic.
func (p *FakePublisher) Events(topic string) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := []interface{}{}
	for _, e := range p.events {
		if e.Topic == topic {
			res = append(res, e.Event)
		}
	}
	return res
}
