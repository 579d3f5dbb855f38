package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NameCount is one slice of a breakdown chart.
type NameCount struct {
	Name  string `bson:"name" json:"name"`
	Value int64  `bson:"value" json:"value"`
}

// DayCount is one bar of the daily submissions chart.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// IssueVotes is an entry of the most upvoted issues list.
type IssueVotes struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Title    string             `bson:"title" json:"title"`
	Category string             `bson:"category" json:"category"`
	Votes    int64              `bson:"upvotes" json:"votes"`
}

// Analytics backs the admin overview.
type Analytics struct {
	IssuesByCategory         []NameCount  `json:"issuesByCategory"`
	IssuesByStatus           []NameCount  `json:"issuesByStatus"`
	Last7Days                []DayCount   `json:"last7Days"`
	TopVotedIssues           []IssueVotes `json:"topVotedIssues"`
	TotalIssues              int64        `json:"totalIssues"`
	TotalVotes               int64        `json:"totalVotes"`
	OpenIssues               int64        `json:"openIssues"`
	SpamIssues               int64        `json:"spamIssues"`
	AverageResponseTimeHours *float64     `json:"averageResponseTimeHours"`
}
