// Package store persists issues, votes and users in MongoDB.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicsync/models"
)

//go:generate mockgen -destination=mocks/store_mock.go -package=mocks civicsync/store Store

const (
	IssueCollection = "issues"
	VoteCollection  = "votes"
	UserCollection  = "users"

	defaultTimeout = 10 * time.Second
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("user with this email already exists")
)

var log = logrus.WithField("prefix", "store")

// IssueFilter narrows and orders issue listings. A zero Limit disables
// pagination.
type IssueFilter struct {
	Category    string
	Status      models.IssueStatus
	Search      string
	IncludeSpam bool
	Sort        string
	Page        int
	Limit       int
}

// IssueStore is the issue half of the storage layer.
type IssueStore interface {
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error)
	ListIssuesByCreator(ctx context.Context, userID primitive.ObjectID) ([]models.Issue, error)
	ListOpenIssues(ctx context.Context) ([]models.Issue, error)
	RecentIssuesWithLocation(ctx context.Context, limit int) ([]models.Issue, error)
	SaveIssue(ctx context.Context, issue *models.Issue) error
	SetPriorityScore(ctx context.Context, id primitive.ObjectID, score float64) error
	DeleteIssue(ctx context.Context, id primitive.ObjectID) error
	Analytics(ctx context.Context, now time.Time) (*models.Analytics, error)
}

// VoteStore keeps upvotes and the denormalised per-issue counter in step.
type VoteStore interface {
	ToggleVote(ctx context.Context, issueID, userID primitive.ObjectID) (bool, *models.Issue, error)
	HasVoted(ctx context.Context, issueID, userID primitive.ObjectID) (bool, error)
}

// UserStore holds accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Pinger - ping database
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is everything the handlers need from the database.
type Store interface {
	IssueStore
	VoteStore
	UserStore
	Pinger
	EnsureIndexes(ctx context.Context) error
}

type mongoDB struct {
	client   *mongo.Client
	database string
}

// NewMongoStore returns a Store backed by the given database.
func NewMongoStore(client *mongo.Client, database string) Store {
	return &mongoDB{
		client:   client,
		database: database,
	}
}

func (m *mongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

// Ping - ping mongo db
func (m *mongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// EnsureIndexes creates the unique and lookup indexes the queries rely on.
func (m *mongoDB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := m.collection(VoteCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "issue", Value: 1}, {Key: "user", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	if _, err := m.collection(UserCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	_, err := m.collection(IssueCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priorityScore", Value: -1}}},
		{Keys: bson.D{{Key: "createdBy", Value: 1}}},
	})
	return err
}
