package graphflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/cloudwego/eino/compose"

	"stash/internal/ai"
	"stash/internal/models"
)

const maxContent = 2000

var vibes = []string{
	"kinetic", "atmospheric", "minimalist", "raw", "nostalgic", "elegant", "chaotic", "ethereal",
	"tactile", "visceral", "contemplative", "playful", "precise", "organic", "geometric",
}

const defaultVibe = "contemplative"

type ClassifyInput struct {
	URL         string
	Platform    string
	DefaultType string
	Title       string
	Caption     string
	Text        string
	Author      string
	ImageURL    string
	ImageCount  int
	LLM         *ai.Client
}

type ClassifyOutput struct {
	Type      string           `json:"type"`
	Title     string           `json:"title"`
	Summary   string           `json:"summary"`
	Tags      []string         `json:"tags"`
	TagLayers models.TagLayers `json:"tagLayers"`
}

type cleanedInput struct {
	ClassifyInput
	Content string
}

type llmReply struct {
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	PrimaryTags    []string `json:"primary_tags"`
	ContextualTags []string `json:"contextual_tags"`
	VibeTag        string   `json:"vibe_tag"`
}

type classified struct {
	cleanedInput
	Reply llmReply
}

// Classifier is the cleaner -> classifier -> formatter graph.
type Classifier struct {
	runnable compose.Runnable[ClassifyInput, ClassifyOutput]
}

func NewClassifier() (*Classifier, error) {
	graph := compose.NewGraph[ClassifyInput, ClassifyOutput]()
	if err := graph.AddLambdaNode("cleaner", compose.InvokableLambda(cleanerNode)); err != nil {
		return nil, err
	}
	if err := graph.AddLambdaNode("classifier", compose.InvokableLambda(classifierNode)); err != nil {
		return nil, err
	}
	if err := graph.AddLambdaNode("formatter", compose.InvokableLambda(formatterNode)); err != nil {
		return nil, err
	}
	if err := graph.AddEdge(compose.START, "cleaner"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("cleaner", "classifier"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("classifier", "formatter"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("formatter", compose.END); err != nil {
		return nil, err
	}

	runnable, err := graph.Compile(context.Background(), compose.WithGraphName("card_classifier"))
	if err != nil {
		return nil, err
	}
	return &Classifier{runnable: runnable}, nil
}

func (c *Classifier) Classify(ctx context.Context, input ClassifyInput) (ClassifyOutput, error) {
	if c == nil || c.runnable == nil {
		return ClassifyOutput{}, errors.New("eino graph not initialized")
	}
	return c.runnable.Invoke(ctx, input)
}

func cleanerNode(ctx context.Context, input ClassifyInput) (cleanedInput, error) {
	input.Caption = StripAuthorPrefix(strings.TrimSpace(input.Caption), input.Author)
	input.Title = strings.TrimSpace(input.Title)

	parts := []string{}
	for _, p := range []string{input.Caption, input.Text} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	content := strings.Join(parts, "\n\n")
	if r := []rune(content); len(r) > maxContent {
		content = string(r[:maxContent])
	}
	return cleanedInput{ClassifyInput: input, Content: content}, nil
}

func classifierNode(ctx context.Context, input cleanedInput) (classified, error) {
	if input.LLM == nil || !input.LLM.Enabled() {
		return classified{}, ai.ErrNotConfigured
	}

	system := "You classify saved content for a visual bookmarking app. Return strict JSON only."
	user := "Return JSON with fields: type (one of " + strings.Join(models.Types, ", ") + "), " +
		"title (20-80 chars, the content itself, never the author's username), " +
		"summary (50-200 chars explaining why this is worth saving, never a copy of the caption), " +
		"primary_tags (1-2 essence tags like bmw, terence-tao, breakdance), " +
		"contextual_tags (1-2 broader subject tags like automotive, mathematics), " +
		"vibe_tag (one of " + strings.Join(vibes, ", ") + "). Tags are lowercase and hyphenated.\n" +
		"Platform: " + input.Platform + "\nSuggested type: " + input.DefaultType + "\nURL: " + input.URL +
		"\nAuthor: " + input.Author + "\nTitle: " + input.Title + "\nImage: " + input.ImageURL +
		"\nContent: " + input.Content

	raw, err := input.LLM.ChatJSON(ctx, system, user, 0.2)
	if err != nil {
		return classified{}, err
	}
	raw = ai.ExtractJSON(raw)
	if raw == "" {
		return classified{}, errors.New("llm invalid json")
	}
	var reply llmReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return classified{}, err
	}
	return classified{cleanedInput: input, Reply: reply}, nil
}

func formatterNode(ctx context.Context, input classified) (ClassifyOutput, error) {
	r := input.Reply
	out := ClassifyOutput{Type: strings.ToLower(strings.TrimSpace(r.Type))}
	if !models.ValidType(out.Type) {
		out.Type = input.DefaultType
	}
	if !models.ValidType(out.Type) {
		out.Type = models.TypeArticle
	}

	out.Title = StripAuthorPrefix(strings.TrimSpace(r.Title), input.Author)
	if out.Title == "" || IsGenericTitle(out.Title) {
		out.Title = SmartTruncate(input.Caption, 80)
	}
	if out.Title == "" && !IsGenericTitle(input.Title) {
		out.Title = input.Title
	}

	out.Summary = strings.TrimSpace(r.Summary)
	if IsCaptionCopy(out.Summary, input.Caption) {
		out.Summary = ""
	}

	layers := models.TagLayers{
		Primary:    limit(ai.NormalizeTags(r.PrimaryTags), 2),
		Contextual: limit(ai.NormalizeTags(r.ContextualTags), 2),
		Vibe:       ai.NormalizeTag(r.VibeTag),
	}
	if layers.Vibe == "" {
		layers.Vibe = defaultVibe
	}
	out.TagLayers = layers
	out.Tags = ai.NormalizeList(append(append(append([]string{}, layers.Primary...), layers.Contextual...), layers.Vibe))
	return out, nil
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
