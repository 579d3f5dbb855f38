package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"civicsync/events"
	"civicsync/middlewares"
	"civicsync/models"
	"civicsync/moderation"
	"civicsync/storage"
	"civicsync/store"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	recentPinLimit  = 19
	imageFolder     = "issues"
)

// IssueController serves the citizen facing issue routes.
type IssueController struct {
	store    store.Store
	notifier events.Notifier
	gate     *moderation.Gate
	images   storage.ImageStore
	now      func() time.Time
}

// NewIssueController wires the issue routes. images may be nil, in which
// case photo uploads answer 503.
func NewIssueController(s store.Store, notifier events.Notifier, gate *moderation.Gate, images storage.ImageStore) *IssueController {
	return &IssueController{
		store:    s,
		notifier: notifier,
		gate:     gate,
		images:   images,
		now:      time.Now,
	}
}

// IssueView is an issue as seen by the caller.
type IssueView struct {
	models.Issue
	UserHasVoted bool `json:"userHasVoted"`
}

func (ic *IssueController) views(c *gin.Context, issues []models.Issue) []IssueView {
	views := make([]IssueView, 0, len(issues))
	userID, signedIn := middlewares.CurrentUserID(c)
	for _, issue := range issues {
		view := IssueView{Issue: issue}
		if signedIn {
			voted, err := ic.store.HasVoted(c.Request.Context(), issue.ID, userID)
			if err != nil {
				log.WithError(err).Warnf("Failed to check vote on issue %s", issue.ID.Hex())
			}
			view.UserHasVoted = voted
		}
		views = append(views, view)
	}
	return views
}

// CreateIssue handles the creation of a new issue
func (ic *IssueController) CreateIssue(c *gin.Context) {
	var input struct {
		Title       string   `json:"title" binding:"required,max=200"`
		Description string   `json:"description" binding:"required,max=1000"`
		Category    string   `json:"category" binding:"required"`
		Location    string   `json:"location" binding:"max=200"`
		ImageURL    *string  `json:"imageUrl,omitempty"`
		Status      *string  `json:"status,omitempty"`
		Latitude    *float64 `json:"latitude,omitempty"`
		Longitude   *float64 `json:"longitude,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := models.IssueCategory(input.Category)
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	// reports always start as new; moving them on is an admin action
	if input.Status != nil {
		if status, err := models.ParseStatus(*input.Status); err != nil || status != models.StatusNew {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
	}

	if !models.ValidCoordinates(input.Latitude, input.Longitude) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	now := ic.now()
	issue := models.Issue{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		Status:      models.StatusNew,
		Location:    strings.TrimSpace(input.Location),
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.ImageURL != nil && *input.ImageURL != "" {
		if !ic.attachImage(ctx, c, &issue, *input.ImageURL) {
			return
		}
	}
	if userID, ok := middlewares.CurrentUserID(c); ok {
		issue.CreatedBy = &userID
	}
	issue.PriorityScore = models.PriorityScore(issue, now)

	if err := ic.store.CreateIssue(ctx, &issue); err != nil {
		log.WithError(err).Error("Failed to create issue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create issue"})
		return
	}

	events.PublishQuietly(ctx, ic.notifier, events.NewChange(events.Insert, &issue))
	c.JSON(http.StatusCreated, issue)
}

// attachImage sets the photo of issue to an object previously stored by
// UploadImage, together with the verdict recorded at upload time. It writes
// the error response itself.
func (ic *IssueController) attachImage(ctx context.Context, c *gin.Context, issue *models.Issue, imageURL string) bool {
	if ic.images == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image uploads are not enabled"})
		return false
	}

	metadata, err := ic.images.Metadata(ctx, imageURL, imageFolder)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownObject) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Image must be uploaded through /api/issues/images"})
			return false
		}
		log.WithError(err).Error("Failed to read image metadata")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify image"})
		return false
	}

	verdict, ok := models.ImageModerationFromMetadata(metadata)
	if !ok || !verdict.IsValid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image has not passed moderation"})
		return false
	}

	issue.ImageURL = &imageURL
	issue.ImageModeration = verdict
	return true
}

// UploadImage runs a photo through moderation and stores it when accepted.
// The returned imageUrl is the reference CreateIssue accepts.
func (ic *IssueController) UploadImage(c *gin.Context) {
	var req moderation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	image, err := moderation.DecodeImage(req.ImageBase64, req.ImageType)
	if err != nil {
		respondImageError(c, err)
		return
	}

	verdict := ic.gate.ValidateImage(c.Request.Context(), image)
	if !verdict.IsValid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   verdict.Reason,
			"verdict": verdict,
		})
		return
	}

	if ic.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image storage is not configured"})
		return
	}

	recorded := models.ImageModeration{
		IsValid:    verdict.IsValid,
		Reason:     verdict.Reason,
		Confidence: verdict.Confidence,
		Fallback:   verdict.Fallback,
	}
	imageURL, err := ic.images.Upload(c.Request.Context(), image.Data, image.MIMEType, imageFolder, recorded.Metadata())
	if err != nil {
		log.WithError(err).Error("Failed to upload image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload image"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"imageUrl": imageURL,
		"verdict":  verdict,
	})
}

func listFilter(c *gin.Context) (store.IssueFilter, bool) {
	filter := store.IssueFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Sort:   c.DefaultQuery("sort", "newest"),
	}

	if category := c.Query("category"); category != "" && category != "all" {
		if !models.IssueCategory(category).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
			return filter, false
		}
		filter.Category = category
	}

	if status := c.Query("status"); status != "" && status != "all" {
		parsed, err := models.ParseStatus(status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return filter, false
		}
		filter.Status = parsed
	}

	filter.IncludeSpam, _ = strconv.ParseBool(c.DefaultQuery("includeSpam", "false"))
	return filter, true
}

// GetAllIssues handles retrieving all issues with filtering and pagination
func (ic *IssueController) GetAllIssues(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	filter.Page = page
	filter.Limit = limit

	ctx, cancel := requestContext(c)
	defer cancel()

	issues, total, err := ic.store.ListIssues(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to retrieve issues")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues":      ic.views(c, issues),
		"totalIssues": total,
		"totalPages":  int((total + int64(limit) - 1) / int64(limit)),
		"currentPage": page,
	})
}

// GetIssue retrieves an issue by its ID with vote information
func (ic *IssueController) GetIssue(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	issue, err := ic.store.GetIssue(ctx, issueID)
	if err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to retrieve issue")
		return
	}

	c.JSON(http.StatusOK, ic.views(c, []models.Issue{*issue})[0])
}

// GetIssuesByUser retrieves all issues created by the caller
func (ic *IssueController) GetIssuesByUser(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	issues, err := ic.store.ListIssuesByCreator(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to retrieve issues")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issues"})
		return
	}

	c.JSON(http.StatusOK, ic.views(c, issues))
}

// GetRecentIssues returns the latest issues that can be pinned on a map.
func (ic *IssueController) GetRecentIssues(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	issues, err := ic.store.RecentIssuesWithLocation(ctx, recentPinLimit)
	if err != nil {
		log.WithError(err).Error("Failed to retrieve recent issues")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issues"})
		return
	}
	if issues == nil {
		issues = []models.Issue{}
	}

	c.JSON(http.StatusOK, issues)
}

// ownedIssue loads the issue named in the path and checks the caller
// created it. It writes the error response itself.
func (ic *IssueController) ownedIssue(c *gin.Context, action string) (*models.Issue, bool) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return nil, false
	}

	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil, false
	}

	issue, err := ic.store.GetIssue(c.Request.Context(), issueID)
	if err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to retrieve issue")
		return nil, false
	}

	if issue.CreatedBy == nil || *issue.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not authorized to " + action + " this issue"})
		return nil, false
	}
	return issue, true
}

// UpdateIssue allows the creator of an issue to update its details
func (ic *IssueController) UpdateIssue(c *gin.Context) {
	var input struct {
		Title       *string  `json:"title,omitempty" binding:"omitempty,max=200"`
		Description *string  `json:"description,omitempty" binding:"omitempty,max=1000"`
		Category    *string  `json:"category,omitempty"`
		Location    *string  `json:"location,omitempty" binding:"omitempty,max=200"`
		ImageURL    *string  `json:"imageUrl,omitempty"`
		Latitude    *float64 `json:"latitude,omitempty"`
		Longitude   *float64 `json:"longitude,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, ok := ic.ownedIssue(c, "update")
	if !ok {
		return
	}

	if input.Title != nil {
		issue.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		issue.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		category := models.IssueCategory(*input.Category)
		if !category.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
			return
		}
		issue.Category = category
	}
	if input.Location != nil {
		issue.Location = strings.TrimSpace(*input.Location)
	}
	if input.ImageURL != nil && (issue.ImageURL == nil || *input.ImageURL != *issue.ImageURL) {
		if *input.ImageURL == "" {
			issue.ImageURL = nil
			issue.ImageModeration = nil
		} else if !ic.attachImage(c.Request.Context(), c, issue, *input.ImageURL) {
			return
		}
	}
	if input.Latitude != nil {
		issue.Latitude = input.Latitude
	}
	if input.Longitude != nil {
		issue.Longitude = input.Longitude
	}
	if !models.ValidCoordinates(issue.Latitude, issue.Longitude) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates"})
		return
	}

	now := ic.now()
	issue.UpdatedAt = now
	issue.PriorityScore = models.PriorityScore(*issue, now)

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ic.store.SaveIssue(ctx, issue); err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to update issue")
		return
	}

	events.PublishQuietly(ctx, ic.notifier, events.NewChange(events.Update, issue))
	c.JSON(http.StatusOK, gin.H{"message": "Issue updated successfully", "issue": issue})
}

// DeleteIssue allows the creator of an issue to delete it
func (ic *IssueController) DeleteIssue(c *gin.Context) {
	issue, ok := ic.ownedIssue(c, "delete")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ic.store.DeleteIssue(ctx, issue.ID); err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to delete issue")
		return
	}

	events.PublishQuietly(ctx, ic.notifier, events.NewChange(events.Delete, issue))
	c.JSON(http.StatusOK, gin.H{"message": "Issue deleted successfully"})
}

// HandleVoteOnIssue toggles the caller's vote on an issue
func (ic *IssueController) HandleVoteOnIssue(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	voted, issue, err := ic.store.ToggleVote(ctx, issueID, userID)
	if err != nil {
		respondStoreError(c, err, "Issue not found", "Failed to process vote")
		return
	}

	if score := models.PriorityScore(*issue, ic.now()); score != issue.PriorityScore {
		if err := ic.store.SetPriorityScore(ctx, issue.ID, score); err != nil {
			log.WithError(err).Warnf("Failed to refresh priority of issue %s", issue.ID.Hex())
		} else {
			issue.PriorityScore = score
		}
	}

	events.PublishQuietly(ctx, ic.notifier, events.NewChange(events.Update, issue))

	message := "Vote removed"
	if voted {
		message = "Vote recorded"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      message,
		"userHasVoted": voted,
		"votes":        issue.Upvotes,
		"issue":        issue,
	})
}

// respondBindError answers 413 for oversized bodies and 400 otherwise.
func respondBindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body is too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}

func respondImageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, moderation.ErrMissingImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image data is required"})
	case errors.Is(err, moderation.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image data is not valid base64"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
