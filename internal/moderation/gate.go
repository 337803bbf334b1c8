package moderation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is used when no moderation model is configured.
const DefaultModel = "gemini-2.5-flash"

// Result is the gate's allow/block decision. Categories carries the
// provider-reported block reasons when Flagged is true.
type Result struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories"`
}

// Gate submits candidate messages to the Gemini safety classifier before
// they reach generation. Callers must treat a returned error as flagged:
// the gate fails closed on classifier outages.
type Gate struct {
	client *genai.Client
	model  string
}

func NewGate(client *genai.Client, model string) *Gate {
	if model == "" {
		model = DefaultModel
	}
	return &Gate{client: client, model: model}
}

// SafetySettings is the fixed threshold set applied to both moderation and
// generation: the provider refuses medium-or-higher-risk content.
func SafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategorySexuallyExplicit,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return settings
}

// Check classifies text and maps provider block reasons to a category set.
func (g *Gate) Check(ctx context.Context, text string) (Result, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), &genai.GenerateContentConfig{
		SafetySettings: SafetySettings(),
		CandidateCount: 1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("safety classifier: %w", err)
	}
	return resultFromResponse(resp), nil
}

func resultFromResponse(resp *genai.GenerateContentResponse) Result {
	if resp == nil || resp.PromptFeedback == nil || resp.PromptFeedback.BlockReason == "" {
		return Result{}
	}
	feedback := resp.PromptFeedback
	var categories []string
	for _, rating := range feedback.SafetyRatings {
		if rating != nil && rating.Blocked {
			categories = append(categories, string(rating.Category))
		}
	}
	if len(categories) == 0 {
		categories = []string{string(feedback.BlockReason)}
	}
	return Result{Flagged: true, Categories: categories}
}
