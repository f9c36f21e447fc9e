package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type ImageAnalysis struct {
	Colors   []string `json:"colors"`
	Objects  []string `json:"objects"`
	OCRText  string   `json:"ocrText"`
	Platform string   `json:"platform"`
}

const visionPrompt = "Describe this image for a personal bookmarking app. Return JSON with fields: " +
	"colors (up to 5 dominant color names), objects (up to 8 short nouns), ocrText (visible text, empty if none), " +
	"platform (the app or site the screenshot comes from, empty if it is not a screenshot)."

// AnalyzeImage asks the vision model about one image URL. The vision model falls
// back to the chat model when unset.
func (c *Client) AnalyzeImage(ctx context.Context, src string) (ImageAnalysis, error) {
	if src == "" {
		return ImageAnalysis{}, errors.New("no image")
	}
	s := c.Settings()
	model := s.VisionModel
	if model == "" {
		model = s.Model
	}
	raw, err := c.chat(ctx, model, []chatMessage{
		{Role: "system", Content: "You are an image analyst. Return strict JSON only."},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: visionPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: src}},
		}},
	}, 0)
	if err != nil {
		return ImageAnalysis{}, err
	}
	raw = ExtractJSON(raw)
	if raw == "" {
		return ImageAnalysis{}, errors.New("llm invalid json")
	}
	var out ImageAnalysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return ImageAnalysis{}, fmt.Errorf("decode image analysis: %w", err)
	}
	out.Colors = NormalizeList(out.Colors)
	out.Objects = NormalizeList(out.Objects)
	return out, nil
}
