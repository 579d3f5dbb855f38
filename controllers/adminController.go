package controllers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync/events"
	"civicsync/models"
	"civicsync/store"
)

// AdminController serves the triage dashboard.
type AdminController struct {
	store    store.IssueStore
	notifier events.Notifier
	now      func() time.Time
}

func NewAdminController(s store.IssueStore, notifier events.Notifier) *AdminController {
	return &AdminController{store: s, notifier: notifier, now: time.Now}
}

func (ac *AdminController) save(c *gin.Context, issue *models.Issue) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ac.store.SaveIssue(ctx, issue); err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to update issue")
		return
	}

	events.PublishQuietly(ctx, ac.notifier, events.NewChange(events.Update, issue))
	c.JSON(http.StatusOK, issue)
}

// UpdateStatus moves an issue through new, in-progress and resolved.
func (ac *AdminController) UpdateStatus(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := models.ParseStatus(input.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	issue, err := ac.store.GetIssue(c.Request.Context(), issueID)
	if err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to retrieve issue")
		return
	}

	issue.ApplyStatus(status, ac.now())
	ac.save(c, issue)
}

// TriageIssue assigns, flags or links an issue. Empty strings clear
// assignedTo and duplicateOf.
func (ac *AdminController) TriageIssue(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	var input struct {
		AssignedTo  *string `json:"assignedTo"`
		IsSpam      *bool   `json:"isSpam"`
		DuplicateOf *string `json:"duplicateOf"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	issue, err := ac.store.GetIssue(ctx, issueID)
	if err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to retrieve issue")
		return
	}

	if input.AssignedTo != nil {
		if assignee := strings.TrimSpace(*input.AssignedTo); assignee != "" {
			issue.AssignedTo = &assignee
		} else {
			issue.AssignedTo = nil
		}
	}
	if input.IsSpam != nil {
		issue.IsSpam = *input.IsSpam
	}
	if input.DuplicateOf != nil {
		if *input.DuplicateOf == "" {
			issue.DuplicateOf = nil
		} else {
			originalID, err := primitive.ObjectIDFromHex(*input.DuplicateOf)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid duplicateOf ID"})
				return
			}
			if originalID == issue.ID {
				c.JSON(http.StatusBadRequest, gin.H{"error": "An issue cannot duplicate itself"})
				return
			}
			if _, err := ac.store.GetIssue(ctx, originalID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Original issue not found"})
					return
				}
				respondStoreError(c, err, "Issue not found", "Failed to retrieve issue")
				return
			}
			issue.DuplicateOf = &originalID
		}
	}

	now := ac.now()
	issue.UpdatedAt = now
	issue.PriorityScore = models.PriorityScore(*issue, now)
	ac.save(c, issue)
}

// GetAnalytics returns the dashboard aggregates.
func (ac *AdminController) GetAnalytics(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	analytics, err := ac.store.Analytics(ctx, ac.now())
	if err != nil {
		log.WithError(err).Error("Failed to compute analytics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
		return
	}

	c.JSON(http.StatusOK, analytics)
}

var csvHeader = []string{
	"id", "title", "description", "category", "status", "location",
	"latitude", "longitude", "upvotes", "priorityScore", "isSpam",
	"duplicateOf", "assignedTo", "createdAt", "respondedAt", "resolvedAt",
	"responseTimeHours",
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func csvRecord(issue models.Issue) []string {
	duplicateOf := ""
	if issue.DuplicateOf != nil {
		duplicateOf = issue.DuplicateOf.Hex()
	}
	assignedTo := ""
	if issue.AssignedTo != nil {
		assignedTo = *issue.AssignedTo
	}
	createdAt := issue.CreatedAt

	return []string{
		issue.ID.Hex(),
		issue.Title,
		issue.Description,
		string(issue.Category),
		string(issue.Status),
		issue.Location,
		formatFloat(issue.Latitude),
		formatFloat(issue.Longitude),
		strconv.FormatInt(issue.Upvotes, 10),
		strconv.FormatFloat(issue.PriorityScore, 'f', -1, 64),
		strconv.FormatBool(issue.IsSpam),
		duplicateOf,
		assignedTo,
		formatTime(&createdAt),
		formatTime(issue.RespondedAt),
		formatTime(issue.ResolvedAt),
		formatFloat(issue.ResponseTimeHours),
	}
}

// ExportCSV streams every issue matching the list filters as CSV.
func (ac *AdminController) ExportCSV(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	issues, _, err := ac.store.ListIssues(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to export issues")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export issues"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="issues.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(csvHeader)
	for _, issue := range issues {
		_ = w.Write(csvRecord(issue))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.WithError(err).Warn("CSV export interrupted")
	}
}
