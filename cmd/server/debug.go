package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lacylights/dmxcore/internal/persistence"
	"github.com/lacylights/dmxcore/internal/pubsub"
	"github.com/lacylights/dmxcore/internal/show"
)

// debugServer exposes the read-only live frame/event stream and a scene
// listing, the minimal operational surface cmd/server carries in place of
// the excluded product HTTP/WebSocket/REST API (SPEC_FULL.md §0).
type debugServer struct {
	show  *show.Show
	store *persistence.Store

	upgrader websocket.Upgrader
}

func newDebugServer(s *show.Show, store *persistence.Store) *debugServer {
	return &debugServer{
		show:  s,
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// debugEvent is the envelope written to the stream for every pubsub topic.
type debugEvent struct {
	Topic   pubsub.Topic `json:"topic"`
	Payload interface{}  `json:"payload"`
}

var streamTopics = []pubsub.Topic{
	pubsub.TopicFrameEmitted,
	pubsub.TopicSceneInvalidated,
	pubsub.TopicSequencerStatus,
	pubsub.TopicUniverseFatal,
}

// streamHandler upgrades to a websocket and relays every pubsub topic to
// the client as JSON until the connection closes.
func (d *debugServer) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("debug stream: upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	subs := make([]*pubsub.Subscriber, 0, len(streamTopics))
	for _, topic := range streamTopics {
		subs = append(subs, d.show.PubSub.Subscribe(topic, "", 32))
	}
	defer func() {
		for _, sub := range subs {
			d.show.PubSub.Unsubscribe(sub)
		}
	}()

	var writeMu sync.Mutex
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *pubsub.Subscriber) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-sub.Channel:
					if !ok {
						return
					}
					writeMu.Lock()
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					err := conn.WriteJSON(debugEvent{Topic: sub.Topic, Payload: msg})
					writeMu.Unlock()
					if err != nil {
						cancel()
						return
					}
				}
			}
		}(sub)
	}

	// Drain reads so the connection notices client-initiated close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	<-ctx.Done()
	wg.Wait()
}

// listScenesHandler returns every persisted scene record, without its
// channel records.
func (d *debugServer) listScenesHandler(w http.ResponseWriter, r *http.Request) {
	records, err := d.store.ListScenes(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
