package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stash/internal/ai"
	"stash/internal/classify"
	"stash/internal/extract"
	"stash/internal/index"
	"stash/internal/metrics"
	"stash/internal/models"
	"stash/internal/platform"
	"stash/internal/screenshot"
)

// attempt is the state of one claimed enrichment run.
type attempt struct {
	s     *Service
	card  *models.Card
	md    models.Metadata
	log   logrus.FieldLogger
	start time.Time
	force bool

	noImages bool
	image    *ai.ImageAnalysis
}

// media is what extraction settled on for the card.
type media struct {
	images  []string
	analyze string
	result  *extract.Result
}

func (a *attempt) run(ctx context.Context) (Computed, error) {
	scrapeStart := time.Now()
	m, err := a.extract(ctx)
	if err != nil {
		return Computed{}, err
	}
	scrape := time.Since(scrapeStart)
	metrics.ObserveStage("scrape", scrape)

	in := a.classifyInput(m)
	classifyStart := time.Now()
	res, err := a.s.Classifier.Run(ctx, in)
	if err != nil {
		return Computed{}, err
	}
	classifyElapsed := time.Since(classifyStart)
	metrics.ObserveStage("classify", classifyElapsed)
	a.image = res.Image

	fresh := a.md
	if res.Image != nil {
		fresh.Colors = res.Image.Colors
		fresh.Objects = res.Image.Objects
		fresh.OCRText = res.Image.OCRText
		fresh.DetectedPlatform = res.Image.Platform
	}
	if len(res.TagLayers.Primary) > 0 || len(res.TagLayers.Contextual) > 0 || res.TagLayers.Vibe != "" {
		layers := res.TagLayers
		fresh.TagLayers = &layers
	}

	comp := Computed{
		Title:      res.Title,
		Summary:    res.Summary,
		Type:       res.Type,
		Tags:       res.Tags,
		Metadata:   fresh,
		EnrichedAt: a.s.clock(),
	}
	if len(m.images) > 0 {
		comp.ImageURL = m.images[0]
		comp.Media = m.images
	}

	a.index(ctx, comp)

	if fresh.Timing != nil {
		t := *fresh.Timing
		t.ScrapeMs = scrape.Milliseconds()
		t.ClassifyMs = classifyElapsed.Milliseconds()
		t.TotalMs = a.s.clock().Sub(a.start).Milliseconds()
		comp.Metadata.Timing = &t
	}
	return comp, nil
}

// extract runs the platform chain and falls back to a screenshot where the platform
// allows it. Exhaustion on a platform without a screenshot fallback is terminal.
func (a *attempt) extract(ctx context.Context) (media, error) {
	if a.card.URL == "" || a.s.Extractor == nil {
		m := media{analyze: a.card.ImageURL}
		if a.card.ImageURL != "" {
			m.images = []string{a.card.ImageURL}
		}
		return m, nil
	}

	res, target, attempts, err := a.s.Extractor.Extract(ctx, a.card.URL, a.force)
	for _, at := range attempts {
		metrics.RecordStrategy(at.Strategy, at.Err)
		a.log.WithFields(logrus.Fields{"strategy": at.Strategy, "images": at.Images, "elapsed": at.Elapsed}).
			WithError(at.Err).Debug("strategy attempt")
	}
	exhausted := errors.Is(err, extract.ErrExhausted)
	if err != nil && !exhausted {
		return media{}, fmt.Errorf("extract: %w", err)
	}

	p := target.Platform
	if p == "" {
		p = platform.FromURL(a.card.URL)
	}
	a.md.Platform = string(p)
	a.applyResult(res)

	if !exhausted {
		stored, all := a.persist(ctx, res.Images)
		a.md.ImagesPersisted = all
		return media{images: stored, analyze: res.Images[0], result: res}, nil
	}

	if !screenshot.Eligible(p) {
		a.noImages = true
		return media{}, err
	}
	pageURL := target.URL
	if pageURL == "" {
		pageURL = a.card.URL
	}
	return a.screenshot(ctx, pageURL, p, res), nil
}

func (a *attempt) applyResult(res *extract.Result) {
	if res == nil {
		return
	}
	a.md.Author = res.AuthorName
	a.md.AuthorHandle = res.AuthorHandle
	a.md.ExtractionSource = res.Source
	a.md.IsCarousel = res.IsCarousel
	a.md.SlideCount = res.SlideCount
	a.md.MediaTypes = res.MediaTypes
}

func (a *attempt) persist(ctx context.Context, images []string) ([]string, bool) {
	if a.s.Media == nil {
		return images, false
	}
	return a.s.Media.PersistImages(ctx, a.card.ID, images)
}

// screenshot captures the page with the headless browser, then falls back to the
// hosted screenshot service. Neither failing is an error: the card just has no image.
func (a *attempt) screenshot(ctx context.Context, pageURL string, p platform.Platform, res *extract.Result) media {
	m := media{result: res}
	if a.s.Config.ScreenshotEnabled && a.s.Screenshots != nil {
		shot := a.s.Screenshots.Capture(ctx, pageURL, p)
		if shot.OK && a.s.Media != nil {
			path, err := a.s.Media.PersistScreenshot(ctx, a.card.ID, shot.Image)
			if err == nil {
				a.md.Screenshot = true
				a.md.ImagesPersisted = true
				a.md.ExtractionSource = "screenshot"
				m.images = []string{path}
				m.analyze = a.absolute(path)
				return m
			}
			a.log.WithError(err).Warn("screenshot persist failed")
		} else if !shot.OK {
			a.log.WithField("reason", shot.Err).Info("browser screenshot failed")
		}
	}
	if hosted := screenshot.HostedURL(a.s.Config.ScreenshotServiceURL, pageURL); hosted != "" {
		a.md.Screenshot = true
		a.md.ImagesPersisted = false
		a.md.ExtractionSource = "screenshot:hosted"
		m.images = []string{hosted}
		m.analyze = hosted
	}
	return m
}

func (a *attempt) absolute(path string) string {
	if strings.HasPrefix(path, "/") && a.s.Config.BaseURL != "" {
		return strings.TrimRight(a.s.Config.BaseURL, "/") + path
	}
	return path
}

func (a *attempt) classifyInput(m media) classify.Input {
	in := classify.Input{
		UserID:      a.card.UserID,
		URL:         a.card.URL,
		Platform:    a.md.Platform,
		DefaultType: platform.DefaultType(platform.Platform(a.md.Platform)),
		Title:       a.card.Title,
		Text:        a.card.Content,
		ImageURL:    m.analyze,
		ImageCount:  len(m.images),
	}
	if a.card.URL == "" {
		in.DefaultType = a.card.Type
	}
	if r := m.result; r != nil {
		if in.Title == "" {
			in.Title = r.Title
		}
		in.Caption = r.Caption
		if in.Text == "" || in.Text == r.Caption {
			in.Text = r.Text
		}
		in.Author = r.AuthorHandle
		if in.Author == "" {
			in.Author = r.AuthorName
		}
	}
	return in
}

// index writes the card embedding. It never fails the attempt.
func (a *attempt) index(ctx context.Context, c Computed) {
	if a.s.Index == nil {
		return
	}
	_, err := a.s.Index.Index(ctx, index.Doc{
		CardID:  a.card.ID,
		UserID:  a.card.UserID,
		Title:   c.Title,
		Summary: c.Summary,
		Content: a.card.Content,
		Tags:    c.Tags,
	})
	if err != nil {
		a.log.WithError(err).Warn("embedding skipped")
	}
}
