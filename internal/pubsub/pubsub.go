// Package pubsub provides non-blocking topic fan-out for output-side
// subscribers (frame diffs, scene invalidation, sequencer status). Each
// subscriber has a bounded buffer; when it is full, new messages are dropped.
package pubsub

import (
	"fmt"
	"sync"
)

// Topic represents a subscription topic.
type Topic string

const (
	// TopicFrameEmitted carries a per-universe emitted-channel diff.
	TopicFrameEmitted Topic = "FRAME_EMITTED"
	// TopicSceneInvalidated fires when a tracked scene leaves the active set.
	TopicSceneInvalidated Topic = "SCENE_INVALIDATED"
	// TopicSequencerStatus carries Sequencer playback status updates.
	TopicSequencerStatus Topic = "SEQUENCER_STATUS"
	// TopicUniverseFatal fires when a universe sender aborts after too many
	// consecutive transport failures.
	TopicUniverseFatal Topic = "UNIVERSE_FATAL"
)

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Filter  string // Optional filter value (e.g. a universe address string)
	Channel chan interface{}
}

// PubSub manages subscriptions and message distribution.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	nextID      int
}

// New creates a new PubSub instance.
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic.
func (ps *PubSub) Subscribe(topic Topic, filter string, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.nextID++
	sub := &Subscriber{
		ID:      fmt.Sprintf("sub-%d", ps.nextID),
		Topic:   topic,
		Filter:  filter,
		Channel: make(chan interface{}, bufferSize),
	}

	ps.subscribers[topic] = append(ps.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a subscription.
func (ps *PubSub) Unsubscribe(sub *Subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			ps.subscribers[sub.Topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish sends a message to subscribers of a topic whose filter matches
// (empty filter on either side matches everything). Sends are non-blocking;
// a full subscriber channel drops the message rather than stalling the
// real-time path.
func (ps *PubSub) Publish(topic Topic, filter string, message interface{}) {
	ps.mu.RLock()
	subs := ps.subscribers[topic]
	ps.mu.RUnlock()

	for _, sub := range subs {
		if sub.Filter == "" || filter == "" || sub.Filter == filter {
			select {
			case sub.Channel <- message:
			default:
			}
		}
	}
}

// PublishAll sends a message to every subscriber of a topic regardless of filter.
func (ps *PubSub) PublishAll(topic Topic, message interface{}) {
	ps.mu.RLock()
	subs := ps.subscribers[topic]
	ps.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- message:
		default:
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}
