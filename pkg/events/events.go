// Package events journals social activity to a redis stream. The
// journal is best-effort: mutations never fail because an event could
// not be recorded.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kullampallep/beRealProject/internal/util"
)

const (
	TypeFriendRequestSent     = "friend_request_sent"
	TypeFriendRequestAccepted = "friend_request_accepted"
	TypeFriendRequestRejected = "friend_request_rejected"
	TypeFriendRemoved         = "friend_removed"
	TypePostCreated           = "post_created"
	TypeUserSignedUp          = "user_signed_up"
)

const publishTimeout = 2 * time.Second

// Event is one recorded activity.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Actor   string    `json:"actor"`
	Subject string    `json:"subject,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher appends events somewhere durable enough for debugging.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher appends events to a capped redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher connects an event journal.
func NewRedisPublisher(addr, password, stream string, maxLen int64) (*RedisPublisher, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("events redis addr is required")
	}
	if stream == "" {
		stream = "bereal:events"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = util.NewID()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	opCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.client.XAdd(opCtx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":      event.ID,
			"type":    event.Type,
			"actor":   event.Actor,
			"subject": event.Subject,
			"at":      event.At.Format(time.RFC3339Nano),
		},
	}).Err()
}

// Recent returns up to count events, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, count int64) ([]Event, error) {
	if count <= 0 {
		count = 50
	}
	opCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msgs, err := p.client.XRevRangeN(opCtx, p.stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, decodeEvent(msg))
	}
	return out, nil
}

func decodeEvent(msg redis.XMessage) Event {
	event := Event{}
	if v, ok := msg.Values["id"].(string); ok {
		event.ID = v
	}
	if v, ok := msg.Values["type"].(string); ok {
		event.Type = v
	}
	if v, ok := msg.Values["actor"].(string); ok {
		event.Actor = v
	}
	if v, ok := msg.Values["subject"].(string); ok {
		event.Subject = v
	}
	if v, ok := msg.Values["at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			event.At = t
		}
	}
	return event
}

// Discard drops every event. It stands in when no journal is
// configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
