package events_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"

	"civicsync/events"
	"civicsync/events/mocks"
	"civicsync/models"
)

func TestNewChangeDropsIssueOnDelete(t *testing.T) {
	issue := &models.Issue{ID: primitive.NewObjectID(), Title: "Pothole"}

	insert := events.NewChange(events.Insert, issue)
	assert.Equal(t, issue.ID.Hex(), insert.IssueID)
	assert.Same(t, issue, insert.Issue)

	deleted := events.NewChange(events.Delete, issue)
	assert.Equal(t, issue.ID.Hex(), deleted.IssueID)
	assert.Nil(t, deleted.Issue)
}

func TestPublishQuietlySwallowsErrors(t *testing.T) {
	ctl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctl)

	change := events.NewChange(events.Update, &models.Issue{ID: primitive.NewObjectID()})
	notifier.EXPECT().Publish(gomock.Any(), change).Return(errors.New("redis down")).Times(1)

	events.PublishQuietly(context.Background(), notifier, change)
	events.PublishQuietly(context.Background(), nil, change)
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := events.NewRedisBus(client, "issues:changes:test")
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	issue := &models.Issue{ID: primitive.NewObjectID(), Title: "Broken bench", Status: models.StatusNew}
	require.NoError(t, bus.Publish(ctx, events.NewChange(events.Insert, issue)))

	select {
	case change := <-sub.Changes():
		assert.Equal(t, events.Insert, change.Type)
		assert.Equal(t, issue.ID.Hex(), change.IssueID)
		require.NotNil(t, change.Issue)
		assert.Equal(t, "Broken bench", change.Issue.Title)
	case <-ctx.Done():
		t.Fatal("no change received")
	}
}
