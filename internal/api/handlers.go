package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"stash/internal/ai"
	"stash/internal/enrich"
	"stash/internal/jobs"
	"stash/internal/media"
	"stash/internal/models"
	"stash/internal/platform"
	"stash/internal/storage"
	"stash/internal/store"
	"stash/internal/timing"
)

const (
	headerUserID         = "X-User-ID"
	headerInternalSecret = "X-Internal-Secret"
)

type Server struct {
	DB             *gorm.DB
	Cards          *store.Cards
	Enrich         *enrich.Service
	Store          storage.Store
	LLM            *ai.Client
	Sweeper        *jobs.Sweeper
	InternalSecret string
	Log            logrus.FieldLogger

	sweepMu     sync.Mutex
	sweepStatus SweepStatus
}

type CardResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	URL       string          `json:"url"`
	Content   string          `json:"content"`
	ImageURL  string          `json:"imageUrl"`
	Media     []string        `json:"media"`
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	Tags      []string        `json:"tags"`
	Metadata  models.Metadata `json:"metadata"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toCardResponse(card *models.Card) CardResponse {
	return CardResponse{
		ID:        card.ID,
		UserID:    card.UserID,
		URL:       card.URL,
		Content:   card.Content,
		ImageURL:  card.ImageURL,
		Media:     card.Media(),
		Title:     card.Title,
		Type:      card.Type,
		Tags:      card.Tags(),
		Metadata:  card.Metadata(),
		State:     string(card.State()),
		CreatedAt: card.CreatedAt,
		UpdatedAt: card.UpdatedAt,
	}
}

type UpdateCardRequest struct {
	Title            *string  `json:"title"`
	Summary          *string  `json:"summary"`
	Tags             []string `json:"tags"`
	ClearTitleEdit   bool     `json:"clearTitleEdit"`
	ClearSummaryEdit bool     `json:"clearSummaryEdit"`
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/cards", s.createCard)
	api.GET("/cards/:id", s.getCard)
	api.PATCH("/cards/:id", s.updateCard)
	api.POST("/cards/:id/enrich", s.enrichCard)
	api.GET("/cards/:id/estimate", s.estimateCard)
	api.GET("/media/:id/:name", s.getMedia)
	api.GET("/tags", s.getTags)
	api.GET("/graph", s.getGraph)
	api.GET("/ai/config", s.getAIConfig)
	api.POST("/ai/config", s.updateAIConfig)
	api.POST("/sweep", s.startSweep)
	api.GET("/sweep/status", s.sweepStatusHandler)
}

func (s *Server) createCard(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	var req enrich.SaveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.UserID = userID

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	card, err := s.Enrich.Save(ctx, req)
	if err != nil {
		if errors.Is(err, enrich.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log().WithError(err).Error("save card failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db insert failed"})
		return
	}
	c.JSON(http.StatusOK, toCardResponse(card))
}

// ownedCard loads the card and answers 404 unless the caller owns it.
func (s *Server) ownedCard(c *gin.Context) (*models.Card, bool) {
	card, err := s.Cards.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
		return nil, false
	}
	if card.UserID != c.GetHeader(headerUserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return card, true
}

func (s *Server) getCard(c *gin.Context) {
	card, ok := s.ownedCard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toCardResponse(card))
}

func (s *Server) updateCard(c *gin.Context) {
	var req UpdateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	card, ok := s.ownedCard(c)
	if !ok {
		return
	}

	edit := store.Edit{
		ClearTitleEdit:   req.ClearTitleEdit,
		ClearSummaryEdit: req.ClearSummaryEdit,
		At:               time.Now(),
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		edit.Title = &title
	}
	if req.Summary != nil {
		summary := strings.TrimSpace(*req.Summary)
		edit.Summary = &summary
	}
	if req.Tags != nil {
		edit.Tags = ai.NormalizeList(req.Tags)
	}

	if err := s.Cards.ApplyEdit(c.Request.Context(), card.ID, edit); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db update failed"})
		return
	}
	updated, err := s.Cards.Get(c.Request.Context(), card.ID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusOK, toCardResponse(updated))
}

// enrichCard runs one attempt synchronously. Trusted callers present the internal
// secret; anyone else must own the card.
func (s *Server) enrichCard(c *gin.Context) {
	var opts enrich.EnrichOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}
	if !s.internalCaller(c) {
		if _, ok := s.ownedCard(c); !ok {
			return
		}
	}

	// The attempt owns a claim; a client hanging up must not strand it.
	ctx := context.WithoutCancel(c.Request.Context())
	out, err := s.Enrich.Enrich(ctx, c.Param("id"), opts)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case !out.Success:
		c.JSON(http.StatusInternalServerError, out)
	default:
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) internalCaller(c *gin.Context) bool {
	got := c.GetHeader(headerInternalSecret)
	if s.InternalSecret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.InternalSecret)) == 1
}

func (s *Server) estimateCard(c *gin.Context) {
	card, ok := s.ownedCard(c)
	if !ok {
		return
	}
	p := platform.FromURL(card.URL)
	md := card.Metadata()
	resp := gin.H{
		"platform":    p,
		"state":       card.State(),
		"estimatedMs": timing.Estimate(p, len(card.Content), len(card.Media()), card.URL != "").Milliseconds(),
	}
	if md.Timing != nil {
		resp["startedAt"] = md.Timing.StartedAt
		resp["elapsedMs"] = time.Since(md.Timing.StartedAt).Milliseconds()
		if md.Timing.TotalMs > 0 {
			resp["totalMs"] = md.Timing.TotalMs
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMedia(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	obj, contentType, err := s.Store.Open(c.Request.Context(), media.ObjectPath(id, c.Param("name")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	defer obj.Close()

	if contentType == "" {
		contentType = storage.GuessContentType(c.Param("name"), "application/octet-stream")
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, obj)
}

func (s *Server) log() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}
