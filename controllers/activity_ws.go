package controller

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"simpleautomate/automation"
	"simpleautomate/models"
	"simpleautomate/utils"
)

const (
	activityWriteWait  = 5 * time.Second
	activityBufferSize = 32
)

type activitySubscriber struct {
	events chan automation.Event
}

// ActivityHub fans automation queue events out to the websocket clients of
// the tenant that owns them. Slow clients drop events instead of blocking
// the queue processor.
type ActivityHub struct {
	mu     sync.RWMutex
	subs   map[uint]map[*activitySubscriber]struct{}
	Logger *logrus.Entry
}

func NewActivityHub() *ActivityHub {
	return &ActivityHub{
		subs:   make(map[uint]map[*activitySubscriber]struct{}),
		Logger: utils.Component("activity"),
	}
}

// Publish is registered as an engine event hook
func (h *ActivityHub) Publish(ev automation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.UserID] {
		select {
		case sub.events <- ev:
		default:
			h.Logger.WithField("user_id", ev.UserID).Debug("Activity subscriber is full, dropping event")
		}
	}
}

func (h *ActivityHub) subscribe(userID uint) *activitySubscriber {
	sub := &activitySubscriber{events: make(chan automation.Event, activityBufferSize)}
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*activitySubscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *ActivityHub) unsubscribe(userID uint, sub *activitySubscriber) {
	h.mu.Lock()
	delete(h.subs[userID], sub)
	if len(h.subs[userID]) == 0 {
		delete(h.subs, userID)
	}
	h.mu.Unlock()
}

// Subscribers returns how many clients of the tenant are connected
func (h *ActivityHub) Subscribers(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// RequireUpgrade rejects plain HTTP requests to the websocket endpoint
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler streams the authenticated tenant's queue events as JSON messages.
// It must run behind Protected.
func (h *ActivityHub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		user, ok := conn.Locals("user").(*models.User)
		if !ok {
			return
		}

		sub := h.subscribe(user.ID)
		defer h.unsubscribe(user.ID, sub)

		log := h.Logger.WithField("user_id", user.ID)
		log.Debug("Activity stream opened")

		// the client never sends anything we need; reading detects the close
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				log.Debug("Activity stream closed")
				return
			case ev := <-sub.events:
				_ = conn.SetWriteDeadline(time.Now().Add(activityWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					log.WithError(err).Debug("Activity stream write failed")
					return
				}
			}
		}
	})
}
