// Package events broadcasts issue changes over Redis pub/sub so that every
// open dashboard can refresh.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"civicsync/models"
)

//go:generate mockgen -destination=mocks/notifier_mock.go -package=mocks civicsync/events Notifier

// ChangeType mirrors the row-level operations dashboards react to.
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

const DefaultChannel = "issues:changes"

var log = logrus.WithField("prefix", "events")

// Change is one notification. Issue is nil for deletes.
type Change struct {
	Type    ChangeType    `json:"type"`
	IssueID string        `json:"issueId"`
	Issue   *models.Issue `json:"issue,omitempty"`
	At      time.Time     `json:"at"`
}

// NewChange builds a change for issue at the current time.
func NewChange(t ChangeType, issue *models.Issue) Change {
	c := Change{
		Type:    t,
		IssueID: issue.ID.Hex(),
		At:      time.Now().UTC(),
	}
	if t != Delete {
		c.Issue = issue
	}
	return c
}

// Notifier publishes issue changes.
type Notifier interface {
	Publish(ctx context.Context, change Change) error
}

// Subscription is a live feed of changes. Close must be called when the
// consumer goes away.
type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// Subscriber opens subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// RedisBus publishes and subscribes on a single Redis channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus returns a bus on channel, or DefaultChannel when empty.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel}
}

// Publish implements Notifier.
func (b *RedisBus) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change on %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe implements Subscriber.
func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// wait for the subscription to be confirmed so no change is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		changes: make(chan Change),
		done:    make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	changes   chan Change
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) run() {
	defer close(s.changes)
	for msg := range s.pubsub.Channel() {
		var change Change
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			log.Warnf("Dropping malformed change on %s: %v", msg.Channel, err)
			continue
		}
		select {
		case s.changes <- change:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Changes() <-chan Change {
	return s.changes
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

// PublishQuietly publishes change and logs failures. Writes never fail
// because a dashboard could not be told about them.
func PublishQuietly(ctx context.Context, n Notifier, change Change) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, change); err != nil {
		log.Warnf("Failed to publish %s of issue %s: %v", change.Type, change.IssueID, err)
	}
}
