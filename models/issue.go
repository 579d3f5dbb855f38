package models

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueCategory enum
type IssueCategory string

const (
	Road        IssueCategory = "Road"
	Water       IssueCategory = "Water"
	Sanitation  IssueCategory = "Sanitation"
	Electricity IssueCategory = "Electricity"
	Streetlight IssueCategory = "Streetlight"
	Waste       IssueCategory = "Waste"
	Parks       IssueCategory = "Parks"
	Other       IssueCategory = "Other"
)

// Categories lists every accepted category.
var Categories = []IssueCategory{Road, Water, Sanitation, Electricity, Streetlight, Waste, Parks, Other}

// Valid reports whether c is one of Categories.
func (c IssueCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// IssueStatus enum
type IssueStatus string

const (
	StatusNew        IssueStatus = "new"
	StatusInProgress IssueStatus = "in-progress"
	StatusResolved   IssueStatus = "resolved"
)

var ErrInvalidStatus = errors.New("invalid status")

var statusAliases = map[string]IssueStatus{
	"new":         StatusNew,
	"pending":     StatusNew,
	"open":        StatusNew,
	"in-progress": StatusInProgress,
	"in progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"resolved":    StatusResolved,
	"closed":      StatusResolved,
}

// ParseStatus maps the spellings used by the different screens onto the
// canonical status values.
func ParseStatus(s string) (IssueStatus, error) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Open reports whether the issue still needs work.
func (s IssueStatus) Open() bool {
	return s == StatusNew || s == StatusInProgress
}

// ImageModeration is the stored outcome of the photo moderation gate.
type ImageModeration struct {
	IsValid    bool   `bson:"isValid" json:"isValid"`
	Reason     string `bson:"reason" json:"reason"`
	Confidence int    `bson:"confidence" json:"confidence"`
	Fallback   bool   `bson:"fallback,omitempty" json:"fallback,omitempty"`
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title             string              `bson:"title" json:"title"`
	Description       string              `bson:"description" json:"description"`
	Category          IssueCategory       `bson:"category" json:"category"`
	Status            IssueStatus         `bson:"status" json:"status"`
	Location          string              `bson:"location,omitempty" json:"location,omitempty"`
	Latitude          *float64            `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude         *float64            `bson:"longitude,omitempty" json:"longitude,omitempty"`
	ImageURL          *string             `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	ImageModeration   *ImageModeration    `bson:"imageModeration,omitempty" json:"imageModeration,omitempty"`
	Upvotes           int64               `bson:"upvotes" json:"upvotes"`
	IsSpam            bool                `bson:"isSpam" json:"isSpam"`
	DuplicateOf       *primitive.ObjectID `bson:"duplicateOf,omitempty" json:"duplicateOf,omitempty"`
	PriorityScore     float64             `bson:"priorityScore" json:"priorityScore"`
	AssignedTo        *string             `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	RespondedAt       *time.Time          `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
	ResolvedAt        *time.Time          `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ResponseTimeHours *float64            `bson:"responseTimeHours,omitempty" json:"responseTimeHours,omitempty"`
	CreatedBy         *primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// ApplyStatus moves the issue to status at now, stamping the response and
// resolution times the first time they happen.
func (i *Issue) ApplyStatus(status IssueStatus, now time.Time) {
	if status != StatusNew && i.RespondedAt == nil {
		responded := now
		hours := now.Sub(i.CreatedAt).Hours()
		i.RespondedAt = &responded
		i.ResponseTimeHours = &hours
	}
	if status == StatusResolved {
		resolved := now
		i.ResolvedAt = &resolved
	} else {
		i.ResolvedAt = nil
	}
	i.Status = status
	i.UpdatedAt = now
	i.PriorityScore = PriorityScore(*i, now)
}

// ValidCoordinates checks that latitude and longitude are given together and
// within range.
func ValidCoordinates(lat, lng *float64) bool {
	if lat == nil && lng == nil {
		return true
	}
	if lat == nil || lng == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}

const (
	metaValid      = "moderation-valid"
	metaReason     = "moderation-reason"
	metaConfidence = "moderation-confidence"
	metaFallback   = "moderation-fallback"
)

// Metadata encodes the verdict as object metadata for the stored photo.
func (m ImageModeration) Metadata() map[string]string {
	return map[string]string{
		metaValid:      strconv.FormatBool(m.IsValid),
		metaReason:     m.Reason,
		metaConfidence: strconv.Itoa(m.Confidence),
		metaFallback:   strconv.FormatBool(m.Fallback),
	}
}

// ImageModerationFromMetadata reads back a verdict written by Metadata.
func ImageModerationFromMetadata(md map[string]string) (*ImageModeration, bool) {
	valid, err := strconv.ParseBool(md[metaValid])
	if err != nil {
		return nil, false
	}
	confidence, err := strconv.Atoi(md[metaConfidence])
	if err != nil {
		return nil, false
	}
	fallback, _ := strconv.ParseBool(md[metaFallback])
	return &ImageModeration{
		IsValid:    valid,
		Reason:     md[metaReason],
		Confidence: confidence,
		Fallback:   fallback,
	}, true
}
