package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"

	"civicsync/controllers"
	eventmocks "civicsync/events/mocks"
	"civicsync/moderation"
	"civicsync/store/mocks"
	authUtils "civicsync/utils"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type countingLimiter struct{ hits int64 }

func (c *countingLimiter) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	c.hits++
	return c.hits, time.Hour, nil
}

func testRouter(t *testing.T, limiter *countingLimiter) (*gin.Engine, *mocks.MockStore) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	n := eventmocks.NewMockNotifier(ctrl)
	reg := prometheus.NewRegistry()
	gate := moderation.NewGate(nil, moderation.DefaultRetryPolicy(), moderation.NewMetrics(reg))

	h := Handlers{
		Auth:       controllers.NewAuthController(s, testSecret, "", false),
		Issues:     controllers.NewIssueController(s, n, gate, nil),
		Admin:      controllers.NewAdminController(s, n),
		Moderation: controllers.NewModerationController(gate),
		Changes:    controllers.NewChangesController(nil),
		Health: controllers.NewHealthController(map[string]controllers.Check{
			"mongo": s.Ping,
		}),
	}
	opts := Options{
		JWTSecret:     testSecret,
		IssueLimitKey: "issue-limit",
		IssueDailyCap: 1,
		ImageLimitKey: "image-limit",
		ImageDailyCap: 5,
		MaxImageBytes: 1024,
		RateCounter:   limiter,
		Gatherer:      reg,
	}
	return SetupRouter(h, opts), s
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSPreflight(t *testing.T) {
	r, _ := testRouter(t, &countingLimiter{})

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/validate-image", nil)
	req.Header.Set("Origin", "https://app.example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")
	w := serve(r, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Client-Info")
}

func TestValidateImageRoutes(t *testing.T) {
	r, _ := testRouter(t, &countingLimiter{})

	for _, path := range []string{"/functions/v1/validate-image", "/api/moderation/validate-image"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Origin", "https://app.example.org")
		w := serve(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

func TestOperationalRoutes(t *testing.T) {
	r, s := testRouter(t, &countingLimiter{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	s.EXPECT().Ping(gomock.Any()).Return(nil)
	w = serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, w.Body.String())
}

func TestAdminGroupRejectsCitizens(t *testing.T) {
	r, _ := testRouter(t, &countingLimiter{})

	token, err := authUtils.GenerateToken(testSecret, primitive.NewObjectID().Hex(), "citizen", time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
}

func TestIssueCreationIsRateLimited(t *testing.T) {
	limiter := &countingLimiter{hits: 1}
	r, _ := testRouter(t, limiter)

	req := httptest.NewRequest(http.MethodPost, "/api/issues", nil)
	w := serve(r, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, int64(2), limiter.hits)
}

func TestImageRoutesAreRateLimited(t *testing.T) {
	for _, path := range []string{"/api/issues/images", "/functions/v1/validate-image", "/api/moderation/validate-image"} {
		limiter := &countingLimiter{hits: 5}
		r, _ := testRouter(t, limiter)

		w := serve(r, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusTooManyRequests, w.Code, path)
		assert.Equal(t, int64(6), limiter.hits, path)
	}
}

func TestImageRoutesCapBodySize(t *testing.T) {
	r, _ := testRouter(t, &countingLimiter{})
	body := `{"imageBase64":"` + strings.Repeat("A", 2048) + `"}`

	for _, path := range []string{"/api/issues/images", "/functions/v1/validate-image", "/api/moderation/validate-image"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := serve(r, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, path)
	}
}
