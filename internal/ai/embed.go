package ai

import (
	"context"
	"errors"
)

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedEnabled reports whether an embedding model is configured.
func (c *Client) EmbedEnabled() bool {
	return c.Enabled() && c.Settings().EmbedModel != ""
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.EmbedEnabled() {
		return nil, ErrNotConfigured
	}
	if len(text) > 8000 {
		text = text[:8000]
	}
	var res embedResponse
	if err := c.post(ctx, "/embeddings", embedRequest{Model: c.Settings().EmbedModel, Input: text}, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 || len(res.Data[0].Embedding) == 0 {
		return nil, errors.New("llm empty embedding")
	}
	return res.Data[0].Embedding, nil
}
