package controllers_test

import (
	"context"
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"

	"civicsync/controllers"
	"civicsync/events"
	eventmocks "civicsync/events/mocks"
	"civicsync/middlewares"
	"civicsync/models"
	"civicsync/store"
	"civicsync/store/mocks"
)

func newAdminFixture(t *testing.T) (*mocks.MockStore, *eventmocks.MockNotifier, *gin.Engine) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	n := eventmocks.NewMockNotifier(ctrl)
	ac := controllers.NewAdminController(s, n)

	r := gin.New()
	admin := r.Group("/api/admin", middlewares.AuthMiddleware(testSecret), middlewares.AdminOnly())
	admin.GET("/analytics", ac.GetAnalytics)
	admin.GET("/issues/export.csv", ac.ExportCSV)
	admin.PATCH("/issues/:id", ac.TriageIssue)
	admin.PATCH("/issues/:id/status", ac.UpdateStatus)
	return s, n, r
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	_, _, r := newAdminFixture(t)

	w := doJSON(r, http.MethodGet, "/api/admin/analytics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/api/admin/analytics", bearer(t, primitive.NewObjectID(), "citizen"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	s, n, r := newAdminFixture(t)
	adminAuth := bearer(t, primitive.NewObjectID(), "admin")
	issueID := primitive.NewObjectID()
	path := "/api/admin/issues/" + issueID.Hex() + "/status"

	w := doJSON(r, http.MethodPatch, path, adminAuth, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.EXPECT().GetIssue(gomock.Any(), issueID).Return(nil, store.ErrNotFound)
	w = doJSON(r, http.MethodPatch, path, adminAuth, gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := time.Now().Add(-5 * time.Hour)
	s.EXPECT().GetIssue(gomock.Any(), issueID).Return(&models.Issue{
		ID:        issueID,
		Category:  models.Water,
		Status:    models.StatusNew,
		CreatedAt: created,
	}, nil)
	s.EXPECT().SaveIssue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, issue *models.Issue) error {
		assert.Equal(t, models.StatusInProgress, issue.Status)
		require.NotNil(t, issue.RespondedAt)
		require.NotNil(t, issue.ResponseTimeHours)
		assert.InDelta(t, 5, *issue.ResponseTimeHours, 0.01)
		assert.Nil(t, issue.ResolvedAt)
		return nil
	})
	n.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, change events.Change) error {
		assert.Equal(t, events.Update, change.Type)
		return nil
	})

	w = doJSON(r, http.MethodPatch, path, adminAuth, gin.H{"status": "In Progress"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTriageIssue(t *testing.T) {
	s, n, r := newAdminFixture(t)
	adminAuth := bearer(t, primitive.NewObjectID(), "admin")
	issueID := primitive.NewObjectID()
	originalID := primitive.NewObjectID()
	path := "/api/admin/issues/" + issueID.Hex()
	issue := func() *models.Issue {
		return &models.Issue{ID: issueID, Category: models.Road, Status: models.StatusNew, CreatedAt: time.Now()}
	}

	s.EXPECT().GetIssue(gomock.Any(), issueID).Return(issue(), nil)
	w := doJSON(r, http.MethodPatch, path, adminAuth, gin.H{"duplicateOf": issueID.Hex()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.EXPECT().GetIssue(gomock.Any(), issueID).Return(issue(), nil)
	s.EXPECT().GetIssue(gomock.Any(), originalID).Return(nil, store.ErrNotFound)
	w = doJSON(r, http.MethodPatch, path, adminAuth, gin.H{"duplicateOf": originalID.Hex()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.EXPECT().GetIssue(gomock.Any(), issueID).Return(issue(), nil)
	s.EXPECT().GetIssue(gomock.Any(), originalID).Return(&models.Issue{ID: originalID}, nil)
	s.EXPECT().SaveIssue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, saved *models.Issue) error {
		require.NotNil(t, saved.DuplicateOf)
		assert.Equal(t, originalID, *saved.DuplicateOf)
		require.NotNil(t, saved.AssignedTo)
		assert.Equal(t, "roads-crew", *saved.AssignedTo)
		assert.Zero(t, saved.PriorityScore)
		return nil
	})
	n.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	w = doJSON(r, http.MethodPatch, path, adminAuth, gin.H{"duplicateOf": originalID.Hex(), "assignedTo": " roads-crew "})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGetAnalytics(t *testing.T) {
	s, _, r := newAdminFixture(t)

	s.EXPECT().Analytics(gomock.Any(), gomock.Any()).Return(&models.Analytics{
		IssuesByCategory: []models.NameCount{{Name: "Road", Value: 3}},
		TotalIssues:      3,
		OpenIssues:       2,
	}, nil)

	w := doJSON(r, http.MethodGet, "/api/admin/analytics", bearer(t, primitive.NewObjectID(), "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var analytics models.Analytics
	decode(t, w, &analytics)
	assert.Equal(t, int64(3), analytics.TotalIssues)
	assert.Equal(t, int64(2), analytics.OpenIssues)
}

func TestExportCSV(t *testing.T) {
	s, _, r := newAdminFixture(t)
	issueID := primitive.NewObjectID()
	lat, lng := 45.5, -73.25

	s.EXPECT().ListIssues(gomock.Any(), store.IssueFilter{Category: "Road", Sort: "newest"}).Return([]models.Issue{{
		ID:          issueID,
		Title:       "Pothole, large",
		Description: "Near \"the\" school",
		Category:    models.Road,
		Status:      models.StatusNew,
		Latitude:    &lat,
		Longitude:   &lng,
		Upvotes:     2,
		CreatedAt:   time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}}, int64(1), nil)

	w := doJSON(r, http.MethodGet, "/api/admin/issues/export.csv?category=Road", bearer(t, primitive.NewObjectID(), "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "issues.csv")

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, issueID.Hex(), records[1][0])
	assert.Equal(t, "Pothole, large", records[1][1])
	assert.Equal(t, "Near \"the\" school", records[1][2])
	assert.Equal(t, "45.5", records[1][6])
	assert.Equal(t, "2026-10-01T08:00:00Z", records[1][13])
	assert.Equal(t, "", records[1][15])
}
