package moderation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-flash"

const (
	temperature     = 0.3
	maxOutputTokens = 200
)

// Prompt is the instruction sent along with every image.
const Prompt = `Please analyze this image to determine if it's appropriate for a civic issue report.

Valid civic issues include:
- Infrastructure problems (broken roads, sidewalks, streetlights)
- Public safety concerns (damaged signs, hazardous conditions)
- Environmental issues (illegal dumping, water leaks)
- Public facilities problems (broken benches, graffiti on public property)

Invalid images include:
- Private property issues
- Personal photos unrelated to civic issues
- Inappropriate or offensive content
- Screenshots, memes, or non-photographic content
- Completely unrelated images (food, pets, selfies, etc.)

Respond with a JSON object containing:
- "isValid": boolean (true if the image shows a legitimate civic issue)
- "reason": string (brief explanation of why it's valid/invalid)
- "confidence": number (0-100, how confident you are in this assessment)

Be strict but fair in your assessment. Only approve images that clearly show civic infrastructure or public space issues.`

var errEmptyAnswer = errors.New("invalid response from classification model")

// Image is a decoded image ready to be sent upstream.
type Image struct {
	MIMEType string
	Data     []byte
}

// Classifier asks a multimodal model about an image and returns its raw
// text answer. Upstream HTTP failures are reported as *UpstreamError.
type Classifier interface {
	Classify(ctx context.Context, prompt string, image Image) (string, error)
}

// GeminiConfig configures the Gemini backed classifier.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the public endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClassifier calls the Gemini generateContent API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier returns a classifier for the Gemini developer API.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is not set")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, err
	}

	return &GeminiClassifier{
		client: client,
		model:  model,
	}, nil
}

// Classify implements Classifier.
func (g *GeminiClassifier) Classify(ctx context.Context, prompt string, image Image) (string, error) {
	temp := float32(temperature)
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: image.MIMEType, Data: image.Data}},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return "", err
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyAnswer
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", errEmptyAnswer
	}
	return text.String(), nil
}
