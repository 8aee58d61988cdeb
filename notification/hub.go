package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
)

const connectionBufferSize = 16

var ErrNoActiveConnection = errors.New("no active connection")

// Hub holds the live notification channels of connected clients. All
// internal state is managed by its public receivers.
type Hub struct {
	// connectionMap maps from user id to the user's live channels, keyed by
	// channel id so that removing one is O(1). A user's entry is deleted once
	// all of its channels are closed. Each device gets its own channel.
	connectionMap map[string]map[string]chan *model.Notification

	// Adding/Removing a connection must grab the write lock, pushing only
	// needs the read lock.
	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		connectionMap: make(map[string]map[string]chan *model.Notification),
	}
}

// cleanUp a single connection when the context terminates. If a user's all
// active connections terminates, clean up the user's top-level entry as well.
func (h *Hub) cleanUp(ctx context.Context, chId string, userId string) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.connectionMap[userId], chId)
	if len(h.connectionMap[userId]) == 0 {
		delete(h.connectionMap, userId)
	}
}

// AddNewConnection registers a channel for userId that lives as long as ctx.
// Thread-safe.
func (h *Hub) AddNewConnection(ctx context.Context, userId string) (<-chan *model.Notification, string) {
	chId := "notification_channel_" + uuid.New().String()
	ch := make(chan *model.Notification, connectionBufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connectionMap[userId]; !ok {
		h.connectionMap[userId] = make(map[string]chan *model.Notification)
	}
	h.connectionMap[userId][chId] = ch

	go h.cleanUp(ctx, chId, userId)

	return ch, chId
}

// Thread-safe
func (h *Hub) GetActiveConnectionsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, mp := range h.connectionMap {
		count += len(mp)
	}
	return count
}

// PushToUser delivers n to every live channel of userId. A channel whose
// buffer is full skips n rather than blocking the caller. Thread-safe.
func (h *Hub) PushToUser(n *model.Notification, userId string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userChannels, ok := h.connectionMap[userId]
	if !ok {
		return errors.Wrapf(ErrNoActiveConnection, "user %s", userId)
	}
	for chId, ch := range userChannels {
		select {
		case ch <- n:
		default:
			Logger.Log.Warnf("notification channel %s is full, dropping %s", chId, n.Id)
		}
	}
	return nil
}
