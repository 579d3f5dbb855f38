package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicsync/models"
)

// CreateIssue inserts a new issue, assigning an id when missing.
func (m *mongoDB) CreateIssue(ctx context.Context, issue *models.Issue) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}

	if _, err := m.collection(IssueCollection).InsertOne(ctx, issue); err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

// GetIssue retrieves an issue by its id.
func (m *mongoDB) GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var issue models.Issue
	err := m.collection(IssueCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find issue %s: %w", id.Hex(), err)
	}
	return &issue, nil
}

func issueQuery(filter IssueFilter) bson.M {
	query := bson.M{}

	if filter.Category != "" && filter.Category != "all" {
		query["category"] = filter.Category
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if !filter.IncludeSpam {
		query["isSpam"] = bson.M{"$ne": true}
	}
	if filter.Search != "" {
		pattern := regexp.QuoteMeta(filter.Search)
		query["$or"] = []bson.M{
			{"title": bson.M{"$regex": pattern, "$options": "i"}},
			{"description": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return query
}

func issueSort(sort string) bson.D {
	switch sort {
	case "oldest":
		return bson.D{{Key: "createdAt", Value: 1}}
	case "priority":
		return bson.D{{Key: "priorityScore", Value: -1}, {Key: "createdAt", Value: -1}}
	case "upvotes":
		return bson.D{{Key: "upvotes", Value: -1}, {Key: "createdAt", Value: -1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}

// ListIssues returns one page of issues matching filter and the total match
// count.
func (m *mongoDB) ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := issueQuery(filter)
	c := m.collection(IssueCollection)

	total, err := c.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	findOptions := options.Find().SetSort(issueSort(filter.Sort))
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		findOptions.SetSkip(int64((page - 1) * filter.Limit)).SetLimit(int64(filter.Limit))
	}

	issues, err := m.findIssues(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

// ListIssuesByCreator returns every issue the user submitted, newest first.
func (m *mongoDB) ListIssuesByCreator(ctx context.Context, userID primitive.ObjectID) ([]models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return m.findIssues(ctx, bson.M{"createdBy": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListOpenIssues returns every issue that is not resolved.
func (m *mongoDB) ListOpenIssues(ctx context.Context) ([]models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return m.findIssues(ctx, bson.M{"status": bson.M{"$ne": models.StatusResolved}}, options.Find())
}

// RecentIssuesWithLocation returns the most recent issues that can be put on
// a map.
func (m *mongoDB) RecentIssuesWithLocation(ctx context.Context, limit int) ([]models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"latitude":  bson.M{"$exists": true, "$ne": nil},
		"longitude": bson.M{"$exists": true, "$ne": nil},
		"isSpam":    bson.M{"$ne": true},
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	return m.findIssues(ctx, filter, findOptions)
}

func (m *mongoDB) findIssues(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.Issue, error) {
	cursor, err := m.collection(IssueCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer cursor.Close(ctx)

	issues := []models.Issue{}
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return issues, nil
}

// SaveIssue writes every field of issue except the vote counter, which only
// ToggleVote may change.
func (m *mongoDB) SaveIssue(ctx context.Context, issue *models.Issue) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	raw, err := bson.Marshal(issue)
	if err != nil {
		return fmt.Errorf("encode issue: %w", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("encode issue: %w", err)
	}
	delete(fields, "_id")
	delete(fields, "upvotes")

	update := bson.M{"$set": fields}
	if unset := unsetFields(issue); len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := m.collection(IssueCollection).UpdateOne(ctx, bson.M{"_id": issue.ID}, update)
	if err != nil {
		return fmt.Errorf("update issue %s: %w", issue.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// unsetFields lists the optional fields that are empty on issue. The
// omitempty encoding leaves them out of $set, so a cleared value has to be
// removed explicitly.
func unsetFields(issue *models.Issue) bson.M {
	unset := bson.M{}
	for key, empty := range map[string]bool{
		"location":        issue.Location == "",
		"imageUrl":        issue.ImageURL == nil,
		"imageModeration": issue.ImageModeration == nil,
		"duplicateOf":     issue.DuplicateOf == nil,
		"assignedTo":      issue.AssignedTo == nil,
		"resolvedAt":      issue.ResolvedAt == nil,
	} {
		if empty {
			unset[key] = ""
		}
	}
	return unset
}

// SetPriorityScore updates only the derived score.
func (m *mongoDB) SetPriorityScore(ctx context.Context, id primitive.ObjectID, score float64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := m.collection(IssueCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"priorityScore": score}})
	if err != nil {
		return fmt.Errorf("update priority of %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIssue removes an issue and its votes.
func (m *mongoDB) DeleteIssue(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := m.collection(IssueCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete issue %s: %w", id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	if _, err := m.collection(VoteCollection).DeleteMany(ctx, bson.M{"issue": id}); err != nil {
		log.Warnf("Failed to delete votes of issue %s: %v", id.Hex(), err)
	}
	return nil
}

// Analytics aggregates the numbers shown on the admin overview.
func (m *mongoDB) Analytics(ctx context.Context, now time.Time) (*models.Analytics, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	issues := m.collection(IssueCollection)
	result := &models.Analytics{}

	var err error
	if result.IssuesByCategory, err = m.groupCount(ctx, "$category"); err != nil {
		return nil, err
	}
	if result.IssuesByStatus, err = m.groupCount(ctx, "$status"); err != nil {
		return nil, err
	}

	for i := 6; i >= 0; i-- {
		date := now.AddDate(0, 0, -i)
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
		nextDate := date.AddDate(0, 0, 1)

		count, err := issues.CountDocuments(ctx, bson.M{
			"createdAt": bson.M{"$gte": date, "$lt": nextDate},
		})
		if err != nil {
			return nil, fmt.Errorf("count issues of %s: %w", date.Format("2006-01-02"), err)
		}
		result.Last7Days = append(result.Last7Days, models.DayCount{
			Date:  date.Format("2006-01-02"),
			Count: count,
		})
	}

	cursor, err := issues.Find(ctx, bson.M{"isSpam": bson.M{"$ne": true}}, options.Find().
		SetSort(bson.D{{Key: "upvotes", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetLimit(5).
		SetProjection(bson.M{"_id": 1, "title": 1, "category": 1, "upvotes": 1}))
	if err != nil {
		return nil, fmt.Errorf("find top voted issues: %w", err)
	}
	result.TopVotedIssues = []models.IssueVotes{}
	if err := cursor.All(ctx, &result.TopVotedIssues); err != nil {
		return nil, fmt.Errorf("decode top voted issues: %w", err)
	}

	if result.TotalIssues, err = issues.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	if result.TotalVotes, err = m.collection(VoteCollection).CountDocuments(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	if result.OpenIssues, err = issues.CountDocuments(ctx, bson.M{
		"status": bson.M{"$in": []models.IssueStatus{models.StatusNew, models.StatusInProgress}},
		"isSpam": bson.M{"$ne": true},
	}); err != nil {
		return nil, fmt.Errorf("count open issues: %w", err)
	}
	if result.SpamIssues, err = issues.CountDocuments(ctx, bson.M{"isSpam": true}); err != nil {
		return nil, fmt.Errorf("count spam issues: %w", err)
	}

	avgCursor, err := issues.Aggregate(ctx, []bson.M{
		{"$match": bson.M{"responseTimeHours": bson.M{"$exists": true}}},
		{"$group": bson.M{"_id": nil, "avg": bson.M{"$avg": "$responseTimeHours"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate response time: %w", err)
	}
	var avg []struct {
		Avg float64 `bson:"avg"`
	}
	if err := avgCursor.All(ctx, &avg); err != nil {
		return nil, fmt.Errorf("decode response time: %w", err)
	}
	if len(avg) > 0 {
		result.AverageResponseTimeHours = &avg[0].Avg
	}

	return result, nil
}

func (m *mongoDB) groupCount(ctx context.Context, field string) ([]models.NameCount, error) {
	pipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":   field,
				"count": bson.M{"$sum": 1},
			},
		},
		{
			"$project": bson.M{
				"name":  "$_id",
				"value": "$count",
				"_id":   0,
			},
		},
		{"$sort": bson.M{"value": -1}},
	}

	cursor, err := m.collection(IssueCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("group issues by %s: %w", field, err)
	}

	counts := []models.NameCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("decode %s breakdown: %w", field, err)
	}
	return counts, nil
}
