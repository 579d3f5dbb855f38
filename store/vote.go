package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicsync/models"
)

// ToggleVote votes if the user has not voted yet and removes the vote
// otherwise. It returns whether the user now has a vote and the issue with
// its updated counter.
func (m *mongoDB) ToggleVote(ctx context.Context, issueID, userID primitive.ObjectID) (bool, *models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := m.GetIssue(ctx, issueID); err != nil {
		return false, nil, err
	}

	votes := m.collection(VoteCollection)
	voteKey := bson.M{"issue": issueID, "user": userID}

	res, err := votes.DeleteOne(ctx, voteKey)
	if err != nil {
		return false, nil, fmt.Errorf("remove vote: %w", err)
	}

	voted := false
	delta := int64(-1)
	if res.DeletedCount == 0 {
		_, err := votes.InsertOne(ctx, models.Vote{
			ID:        primitive.NewObjectID(),
			Issue:     issueID,
			User:      userID,
			CreatedAt: time.Now(),
		})
		if mongo.IsDuplicateKeyError(err) {
			// a concurrent request from the same user already voted
			issue, getErr := m.GetIssue(ctx, issueID)
			return true, issue, getErr
		}
		if err != nil {
			return false, nil, fmt.Errorf("cast vote: %w", err)
		}
		voted = true
		delta = 1
	}

	var issue models.Issue
	err = m.collection(IssueCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": issueID},
		bson.M{"$inc": bson.M{"upvotes": delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil, ErrNotFound
	}
	if err != nil {
		return false, nil, fmt.Errorf("update vote count: %w", err)
	}

	return voted, &issue, nil
}

// HasVoted reports whether the user currently upvotes the issue.
func (m *mongoDB) HasVoted(ctx context.Context, issueID, userID primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	count, err := m.collection(VoteCollection).CountDocuments(ctx, bson.M{
		"issue": issueID,
		"user":  userID,
	})
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return count > 0, nil
}
