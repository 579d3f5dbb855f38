package moderation

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T, handler http.HandlerFunc) *GeminiClassifier {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	classifier, err := NewGeminiClassifier(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    ts.URL + "/",
		HTTPClient: ts.Client(),
	})
	require.NoError(t, err)
	return classifier
}

func TestGeminiClassifierSendsPromptAndImage(t *testing.T) {
	var body string
	var path string
	classifier := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"isValid\": true, \"reason\": \"pothole\", \"confidence\": 90}"}]},"finishReason":"STOP"}]}`)
	})

	answer, err := classifier.Classify(context.Background(), Prompt, Image{MIMEType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, `{"isValid": true, "reason": "pothole", "confidence": 90}`, answer)

	assert.True(t, strings.HasSuffix(path, "models/"+DefaultModel+":generateContent"), path)
	assert.Contains(t, body, base64.StdEncoding.EncodeToString(pngBytes))
	assert.Contains(t, body, "image/png")
	assert.Contains(t, body, "civic issue report")
}

func TestGeminiClassifierReportsOverload(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`)
	})

	_, err := classifier.Classify(context.Background(), Prompt, Image{MIMEType: "image/png", Data: pngBytes})
	require.Error(t, err)
	assert.True(t, IsCapacityError(err))
}

func TestGeminiClassifierReportsClientErrors(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := classifier.Classify(context.Background(), Prompt, Image{MIMEType: "image/png", Data: pngBytes})
	require.Error(t, err)
	assert.False(t, IsCapacityError(err))
}

func TestGeminiClassifierRejectsEmptyAnswer(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})

	_, err := classifier.Classify(context.Background(), Prompt, Image{MIMEType: "image/png", Data: pngBytes})
	assert.ErrorIs(t, err, errEmptyAnswer)
}

func TestNewGeminiClassifierRequiresKey(t *testing.T) {
	_, err := NewGeminiClassifier(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}
