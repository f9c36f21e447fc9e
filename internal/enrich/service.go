// Package enrich owns the two entry points of the card pipeline. Save stores a card
// right away and queues it; Enrich claims the card, extracts and classifies it under
// one deadline, and merges the result into whatever the row looks like by then.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stash/internal/ai"
	"stash/internal/classify"
	"stash/internal/extract"
	"stash/internal/graphflow"
	"stash/internal/index"
	"stash/internal/logging"
	"stash/internal/metrics"
	"stash/internal/models"
	"stash/internal/platform"
	"stash/internal/queue"
	"stash/internal/screenshot"
	"stash/internal/store"
	"stash/internal/timing"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDeadlineExceeded = errors.New("enrichment timed out")
)

const (
	ReasonAlreadyEnriched = "already_enriched"
	ReasonAlreadyClaimed  = "already_claimed"

	failureWriteTimeout = 10 * time.Second
	captionTitleLimit   = 80
)

type CardStore interface {
	Insert(ctx context.Context, card *models.Card) error
	Get(ctx context.Context, id string) (*models.Card, error)
	Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	UpdateMetadata(ctx context.Context, id string, fn func(md *models.Metadata)) (models.Metadata, error)
	Finalize(ctx context.Context, id string, merge func(current *models.Card) store.Final) error
	Release(ctx context.Context, id string, fn func(md *models.Metadata)) error
}

type Extractor interface {
	Extract(ctx context.Context, rawURL string, refresh bool) (*extract.Result, extract.Target, []extract.Attempt, error)
	Preview(ctx context.Context, rawURL string) *extract.Result
}

type MediaPersister interface {
	PersistImages(ctx context.Context, cardID string, urls []string) ([]string, bool)
	PersistScreenshot(ctx context.Context, cardID string, png []byte) (string, error)
}

type Classifier interface {
	Run(ctx context.Context, in classify.Input) (classify.Result, error)
}

type Indexer interface {
	Index(ctx context.Context, doc index.Doc) (bool, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

type Config struct {
	Deadline             time.Duration
	ClaimStaleAfter      time.Duration
	ScreenshotEnabled    bool
	ScreenshotServiceURL string
	// BaseURL turns persisted /api/media paths into URLs the vision model can fetch.
	BaseURL string
}

type Service struct {
	Cards       CardStore
	Extractor   Extractor
	Screenshots screenshot.Capturer
	Media       MediaPersister
	Classifier  Classifier
	Index       Indexer
	Queue       Enqueuer
	Config      Config
	Log         logrus.FieldLogger

	now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

type SaveInput struct {
	UserID   string   `json:"-"`
	URL      string   `json:"url"`
	Content  string   `json:"content"`
	ImageURL string   `json:"imageUrl"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
}

// Save validates and inserts the card, then queues enrichment. The insert is the only
// step that can fail the call; a queue failure is logged and left to the sweeper.
func (s *Service) Save(ctx context.Context, in SaveInput) (*models.Card, error) {
	in.URL = strings.TrimSpace(in.URL)
	in.Content = strings.TrimSpace(in.Content)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.Title = strings.TrimSpace(in.Title)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidInput)
	}
	if in.URL == "" && in.Content == "" && in.ImageURL == "" {
		return nil, fmt.Errorf("%w: one of url, content or imageUrl is required", ErrInvalidInput)
	}
	for _, raw := range []string{in.URL, in.ImageURL} {
		if raw != "" && !isHTTPURL(raw) {
			return nil, fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidInput, raw)
		}
	}

	p, defaultType := platform.Detect(in.URL)
	cardType := in.Type
	switch {
	case models.ValidType(cardType):
	case in.URL == "" && in.ImageURL != "":
		cardType = models.TypeImage
	case in.URL == "":
		cardType = models.TypeNote
	default:
		cardType = defaultType
	}

	tags := ai.NormalizeList(in.Tags)
	needsEnrichment := len(tags) == 0
	md := models.Metadata{NeedsEnrichment: &needsEnrichment}
	if in.URL != "" {
		md.Platform = string(p)
	}

	card := &models.Card{
		ID:       uuid.New().String(),
		UserID:   in.UserID,
		URL:      in.URL,
		Content:  in.Content,
		ImageURL: in.ImageURL,
		Title:    in.Title,
		Type:     cardType,
	}
	if p == platform.Instagram && s.Extractor != nil {
		s.applyPreview(ctx, card, &md)
	}
	card.SetTags(tags)
	card.SetMedia(nil)
	if err := card.SetMetadata(md); err != nil {
		return nil, err
	}
	if err := s.Cards.Insert(ctx, card); err != nil {
		return nil, err
	}

	log := logging.ForCard(s.logger(), card.ID).WithField("platform", md.Platform)
	// Instagram always goes through the worker: the preview has one image at most.
	if (needsEnrichment || p == platform.Instagram) && s.Queue != nil {
		if err := s.Queue.Enqueue(context.WithoutCancel(ctx), queue.Job{CardID: card.ID, Reason: "save"}); err != nil {
			log.WithError(err).Warn("enqueue enrichment failed")
		}
	}
	log.Info("card saved")
	return card, nil
}

// applyPreview fills the empty fields of card from a quick oEmbed lookup.
func (s *Service) applyPreview(ctx context.Context, card *models.Card, md *models.Metadata) {
	res := s.Extractor.Preview(ctx, card.URL)
	if res == nil {
		return
	}
	if card.ImageURL == "" && len(res.Images) > 0 {
		card.ImageURL = res.Images[0]
	}
	if card.Title == "" {
		card.Title = captionTitle(res)
	}
	if card.Content == "" {
		card.Content = res.Caption
	}
	md.Author = res.AuthorName
	md.AuthorHandle = res.AuthorHandle
	md.ExtractionSource = res.Source
}

func captionTitle(res *extract.Result) string {
	if res.Caption != "" {
		author := res.AuthorHandle
		if author == "" {
			author = res.AuthorName
		}
		if t := graphflow.SmartTruncate(graphflow.StripAuthorPrefix(res.Caption, author), captionTitleLimit); t != "" && !graphflow.IsGenericTitle(t) {
			return t
		}
	}
	if res.Title != "" && !graphflow.IsGenericTitle(res.Title) {
		return graphflow.SmartTruncate(res.Title, captionTitleLimit)
	}
	return ""
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type EnrichOptions struct {
	Force bool `json:"force"`
}

type Classification struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Summary  string            `json:"summary,omitempty"`
	Tags     []string          `json:"tags"`
	Platform string            `json:"platform,omitempty"`
	Image    *ai.ImageAnalysis `json:"image,omitempty"`
}

// Outcome is one of: success with a classification, a skip with a reason, or a
// failure with an error message.
type Outcome struct {
	Success        bool            `json:"success"`
	Skipped        bool            `json:"skipped,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func skipped(reason string) Outcome {
	return Outcome{Success: true, Skipped: true, Reason: reason}
}

// Enrich runs one enrichment attempt for the card. Skips are not errors. A failed
// attempt is persisted on the card and also returned as the error.
func (s *Service) Enrich(ctx context.Context, id string, opts EnrichOptions) (Outcome, error) {
	card, err := s.Cards.Get(ctx, id)
	if err != nil {
		return Outcome{Error: err.Error()}, err
	}
	log := logging.ForCard(s.logger(), id)
	md := card.Metadata()
	if md.Enriched() && !opts.Force {
		return skipped(ReasonAlreadyEnriched), nil
	}

	now := s.clock()
	staleBefore := now.Add(-s.Config.ClaimStaleAfter)
	// A live claim seen before trying is the same lost race as a failed claim.
	if card.Processing && card.ProcessingStartedAt != nil && card.ProcessingStartedAt.After(staleBefore) {
		return skipped(ReasonAlreadyClaimed), nil
	}
	claimed, err := s.Cards.Claim(ctx, id, staleBefore)
	if err != nil {
		return Outcome{Error: err.Error()}, err
	}
	if !claimed {
		log.Debug("claim lost")
		return skipped(ReasonAlreadyClaimed), nil
	}

	p := platform.FromURL(card.URL)
	est := timing.Estimate(p, len(card.Content), len(card.Media()), card.URL != "")
	started := &models.EnrichmentTiming{
		StartedAt:        now.UTC(),
		Platform:         string(p),
		EstimatedTotalMs: est.Milliseconds(),
	}
	fresh, err := s.Cards.UpdateMetadata(ctx, id, func(cur *models.Metadata) {
		cur.Processing = true
		cur.Timing = started
	})
	if err != nil {
		md.Timing = started
		return s.fail(ctx, card, md, err, false, log)
	}
	md = fresh

	dctx, cancel := context.WithTimeout(ctx, s.Config.Deadline)
	defer cancel()

	att := &attempt{s: s, card: card, md: md, log: log, start: now, force: opts.Force}
	comp, err := att.run(dctx)
	if err == nil {
		err = s.finish(dctx, id, comp)
	}
	if err != nil {
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrDeadlineExceeded, s.Config.Deadline)
		}
		return s.fail(ctx, card, att.md, err, att.noImages, log)
	}

	total := s.clock().Sub(now)
	metrics.ObserveStage("total", total)
	metrics.RecordEnrich(string(p), "success")
	log.WithField("elapsed", total).Info("card enriched")
	return Outcome{Success: true, Classification: &Classification{
		Type:     comp.Type,
		Title:    comp.Title,
		Summary:  comp.Summary,
		Tags:     comp.Tags,
		Platform: comp.Metadata.Platform,
		Image:    att.image,
	}}, nil
}

// finish merges the result into the row as it stands at write time, releasing the claim.
func (s *Service) finish(ctx context.Context, id string, comp Computed) error {
	err := s.Cards.Finalize(ctx, id, func(current *models.Card) store.Final {
		return Reconcile(current, comp)
	})
	if err != nil {
		return fmt.Errorf("write enrichment: %w", err)
	}
	return nil
}

// fail records err on the card and releases the claim. It writes on a context detached
// from ctx so a timed-out or cancelled attempt still leaves its error behind. Only the
// failure keys and the attempt's timing are written over the stored bag.
func (s *Service) fail(ctx context.Context, card *models.Card, md models.Metadata, cause error, noImages bool, log logrus.FieldLogger) (Outcome, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	now := s.clock().UTC()
	msg := cause.Error()
	var spent *models.EnrichmentTiming
	if md.Timing != nil {
		t := *md.Timing
		t.TotalMs = now.Sub(t.StartedAt).Milliseconds()
		spent = &t
	}
	err := s.Cards.Release(wctx, card.ID, func(cur *models.Metadata) {
		if spent != nil {
			cur.Timing = spent
		}
		cur.EnrichmentError = &msg
		cur.EnrichmentFailedAt = &now
		cur.NoImagesExtracted = noImages
	})
	if err != nil {
		log.WithError(err).Error("failed to record enrichment failure")
	}

	outcome := "failed"
	if errors.Is(cause, ErrDeadlineExceeded) {
		outcome = "timeout"
	} else if noImages {
		outcome = "no_images"
	}
	metrics.RecordEnrich(md.Platform, outcome)
	log.WithError(cause).Warn("enrichment failed")
	return Outcome{Error: msg}, cause
}
