// Package moderation decides whether a photo is acceptable for a civic issue
// report by asking a multimodal model, retrying while the model is
// overloaded and letting the photo through when it cannot be reached.
package moderation

import (
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultImageType = "image/jpeg"

var (
	ErrMissingImage = errors.New("image data is required")
	ErrInvalidImage = errors.New("image data is not valid base64")
)

var dataURLPrefix = regexp.MustCompile(`^data:([a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+);base64,`)

// Request is the inbound payload of the gate.
type Request struct {
	ImageBase64 string `json:"imageBase64"`
	ImageType   string `json:"imageType"`
}

// Gate is the moderation gate. It is safe for concurrent use.
type Gate struct {
	classifier Classifier
	policy     RetryPolicy
	metrics    *Metrics
	log        *logrus.Entry
}

// NewGate returns a gate consulting classifier. A nil classifier makes every
// verdict a fallback.
func NewGate(classifier Classifier, policy RetryPolicy, metrics *Metrics) *Gate {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gate{
		classifier: classifier,
		policy:     policy,
		metrics:    metrics,
		log:        logrus.WithField("prefix", "moderation"),
	}
}

// DecodeImage strips a data URL prefix and decodes the payload. The MIME
// type declared by a data URL is used when imageType is empty.
func DecodeImage(imageBase64, imageType string) (Image, error) {
	payload := strings.TrimSpace(imageBase64)
	if payload == "" {
		return Image{}, ErrMissingImage
	}

	if m := dataURLPrefix.FindStringSubmatch(payload); m != nil {
		if imageType == "" {
			imageType = m[1]
		}
		payload = payload[len(m[0]):]
	}
	if imageType == "" {
		imageType = DefaultImageType
	}

	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil || len(data) == 0 {
		return Image{}, ErrInvalidImage
	}

	return Image{MIMEType: imageType, Data: data}, nil
}

// Validate returns the verdict for req. The only errors are client input
// errors (ErrMissingImage, ErrInvalidImage); upstream failures always
// produce a fallback verdict.
func (g *Gate) Validate(ctx context.Context, req Request) (Verdict, error) {
	image, err := DecodeImage(req.ImageBase64, req.ImageType)
	if err != nil {
		return Verdict{}, err
	}
	return g.ValidateImage(ctx, image), nil
}

// ValidateImage classifies an already decoded image.
func (g *Gate) ValidateImage(ctx context.Context, image Image) Verdict {
	if g.classifier == nil {
		g.log.Warn("No classifier configured, skipping image validation")
		v := fallbackVerdict(false)
		g.metrics.verdict(v)
		return v
	}

	g.log.Debug("Sending image to classifier for validation")

	var answer string
	attempt := 0
	err := g.policy.Do(ctx, func() error {
		attempt++
		var callErr error
		answer, callErr = g.classifier.Classify(ctx, Prompt, image)
		g.metrics.attempt(callErr)
		return callErr
	}, func(err error, wait time.Duration) {
		g.log.Warnf("Classifier overloaded, retrying in %s (attempt %d/%d): %v",
			wait, attempt+1, g.policy.MaxRetries+1, err)
	})
	if err != nil {
		g.log.Errorf("Image validation failed after %d attempt(s): %v", attempt, err)
		v := fallbackVerdict(IsCapacityError(err))
		g.metrics.verdict(v)
		return v
	}

	v := ParseVerdict(answer)
	g.log.WithField("isValid", v.IsValid).WithField("confidence", v.Confidence).Info("Image validated")
	g.metrics.verdict(v)
	return v
}
