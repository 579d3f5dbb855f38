package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync/models"
	"civicsync/moderation"
	"civicsync/storage"
	authUtils "civicsync/utils"
)

const testSecret = "controllers-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// stubClassifier replays answers in order and records how often it ran.
type stubClassifier struct {
	answers []string
	errs    []error
	calls   int
}

func (s *stubClassifier) Classify(_ context.Context, _ string, _ moderation.Image) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.answers) {
		return s.answers[i], nil
	}
	return "", &moderation.UpstreamError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
}

func newGate(classifier moderation.Classifier) *moderation.Gate {
	return moderation.NewGate(classifier, moderation.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, nil)
}

const testBucket = "test-bucket"

// memoryImages is an in-memory ImageStore.
type memoryImages struct {
	uploads  map[string][]byte
	metadata map[string]map[string]string
}

func (m *memoryImages) Upload(_ context.Context, data []byte, contentType, folder string, metadata map[string]string) (string, error) {
	if m.uploads == nil {
		m.uploads = map[string][]byte{}
		m.metadata = map[string]map[string]string{}
	}
	url := storage.PublicURL(testBucket, folder+"/image."+contentType[len("image/"):])
	m.uploads[url] = data
	m.metadata[url] = metadata
	return url, nil
}

func (m *memoryImages) Metadata(_ context.Context, url, folder string) (map[string]string, error) {
	if _, ok := storage.ObjectFromURL(testBucket, folder, url); !ok {
		return nil, storage.ErrUnknownObject
	}
	md, ok := m.metadata[url]
	if !ok {
		return nil, storage.ErrUnknownObject
	}
	return md, nil
}

// seed stores an image as if UploadImage had accepted it with verdict.
func (m *memoryImages) seed(t *testing.T, verdict models.ImageModeration) string {
	url, err := m.Upload(context.Background(), []byte("photo"), "image/jpeg", "issues", verdict.Metadata())
	require.NoError(t, err)
	return url
}

func bearer(t *testing.T, userID primitive.ObjectID, role string) string {
	token, err := authUtils.GenerateToken(testSecret, userID.Hex(), role, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(r http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var payload *bytes.Reader
	switch b := body.(type) {
	case nil:
		payload = bytes.NewReader(nil)
	case string:
		payload = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		payload = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
