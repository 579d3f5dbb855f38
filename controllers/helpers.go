package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync/store"
)

const requestTimeout = 10 * time.Second

var log = logrus.WithField("prefix", "controllers")

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func issueIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondStoreError answers 404 for missing documents and 500 otherwise.
func respondStoreError(c *gin.Context, err error, notFound, failure string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	log.WithField("path", c.FullPath()).WithError(err).Error(failure)
	c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
}
