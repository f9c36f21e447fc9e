package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stash/internal/ai"
	"stash/internal/settings"
)

type AIConfigRequest struct {
	BaseURL     string `json:"baseUrl"`
	APIKey      string `json:"apiKey"`
	Model       string `json:"model"`
	VisionModel string `json:"visionModel"`
	EmbedModel  string `json:"embedModel"`
}

func (s *Server) aiConfigResponse() gin.H {
	cfg := s.LLM.Settings()
	return gin.H{
		"baseUrl":      cfg.BaseURL,
		"model":        cfg.Model,
		"visionModel":  cfg.VisionModel,
		"embedModel":   cfg.EmbedModel,
		"enabled":      s.LLM.Enabled(),
		"embedEnabled": s.LLM.EmbedEnabled(),
	}
}

func (s *Server) getAIConfig(c *gin.Context) {
	if s.LLM == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, s.aiConfigResponse())
}

// updateAIConfig persists the non-empty fields and swaps them into the live client,
// so running workers pick them up on their next call.
func (s *Server) updateAIConfig(c *gin.Context) {
	var req AIConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if s.LLM == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm client not initialised"})
		return
	}

	cfg := ai.Settings{
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Model:       req.Model,
		VisionModel: req.VisionModel,
		EmbedModel:  req.EmbedModel,
	}
	if s.DB != nil {
		if err := settings.SaveLLM(c.Request.Context(), s.DB, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db update failed"})
			return
		}
	}
	s.LLM.Configure(cfg)
	c.JSON(http.StatusOK, s.aiConfigResponse())
}
