// internal/adapters/gemini/analyzer.go
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/domain"
)

const DefaultModel = "gemini-2.0-flash"

// generator is the slice of the genai Models API the analyzer needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Analyzer summarizes customer reviews with Gemini.
type Analyzer struct {
	models generator
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Analyzer{models: client.Models, model: model}, nil
}

func (a *Analyzer) Analyze(ctx context.Context, reviews []domain.ReviewSample) (domain.ReviewAnalysis, error) {
	prompt, err := buildPrompt(reviews)
	if err != nil {
		return domain.ReviewAnalysis{}, err
	}

	start := time.Now()
	resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	status := 200
	if err != nil {
		status = 0
	}
	observability.ObserveExternal("gemini", "generate", status, time.Since(start))
	if err != nil {
		return domain.ReviewAnalysis{}, domain.ProviderUnavailable("Failed to analyze reviews", "", err)
	}

	var out domain.ReviewAnalysis
	raw := cleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Warn().Err(err).Int("len", len(raw)).Msg("gemini returned non-JSON analysis")
		return domain.ReviewAnalysis{}, domain.ProviderUnavailable("Failed to analyze reviews", "Invalid response format", err)
	}
	return out, nil
}

func buildPrompt(reviews []domain.ReviewSample) (string, error) {
	body, err := json.MarshalIndent(reviews, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Analyze these customer reviews and provide insights in the following JSON format:\n")
	b.WriteString(`{
  "summary": {"text": "Brief overview of customer sentiment", "sentiment": "positive|negative|neutral"},
  "rating": {"current": 4.5, "previous": 4.2, "trend": "up|down|stable"},
  "topics": [{"name": "Topic name", "sentiment": "positive|negative|neutral", "frequency": 0.75, "examples": ["quote"]}],
  "improvements": [{"area": "Area", "description": "What to change", "priority": "high|medium|low"}]
}`)
	b.WriteString("\nCompute rating.current from the newer half of the reviews and rating.previous from the older half.\n")
	b.WriteString("Reviews:\n")
	b.Write(body)
	return b.String(), nil
}

// cleanJSON trims model output down to the outermost JSON object.
func cleanJSON(s string) string {
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i < 0 || j < i {
		return strings.TrimSpace(s)
	}
	return s[i : j+1]
}
