package controllers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"civicsync/controllers"
)

func TestHealthz(t *testing.T) {
	healthy := controllers.NewHealthController(map[string]controllers.Check{
		"mongo": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return nil },
	})
	broken := controllers.NewHealthController(map[string]controllers.Check{
		"mongo": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	r := gin.New()
	r.GET("/ping", healthy.Ping)
	r.GET("/healthz", healthy.Healthz)
	r.GET("/broken", broken.Healthz)

	assert.JSONEq(t, `{"message":"pong"}`, doJSON(r, http.MethodGet, "/ping", "", nil).Body.String())
	assert.JSONEq(t, `{"status":"OK"}`, doJSON(r, http.MethodGet, "/healthz", "", nil).Body.String())

	w := doJSON(r, http.MethodGet, "/broken", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","errors":{"redis":"connection refused"}}`, w.Body.String())
}
