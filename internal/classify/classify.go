// Package classify runs AI classification and image analysis for one card under the
// enrichment deadline.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stash/internal/ai"
	"stash/internal/graphflow"
	"stash/internal/models"
)

type Input struct {
	UserID      string
	URL         string
	Platform    string
	DefaultType string
	Title       string
	Caption     string
	Text        string
	Author      string
	ImageURL    string
	ImageCount  int
}

type Result struct {
	Type      string
	Title     string
	Summary   string
	Tags      []string
	TagLayers models.TagLayers
	Image     *ai.ImageAnalysis
	Elapsed   time.Duration
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (Result, error)
}

type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageURL string) (ai.ImageAnalysis, error)
}

type TagAligner interface {
	AlignTags(ctx context.Context, tags, vocabulary []string) ([]string, error)
}

// Vocabulary lists the tags an owner already uses.
type Vocabulary interface {
	UserTags(ctx context.Context, userID string) ([]string, error)
}

// LLMClassifier runs the classification graph against the configured LLM.
type LLMClassifier struct {
	Graph *graphflow.Classifier
	LLM   *ai.Client
}

func (c LLMClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	if !c.LLM.Enabled() {
		return Result{}, Permanent(ai.ErrNotConfigured)
	}
	out, err := c.Graph.Classify(ctx, graphflow.ClassifyInput{
		URL:         in.URL,
		Platform:    in.Platform,
		DefaultType: in.DefaultType,
		Title:       in.Title,
		Caption:     in.Caption,
		Text:        in.Text,
		Author:      in.Author,
		ImageURL:    in.ImageURL,
		ImageCount:  in.ImageCount,
		LLM:         c.LLM,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Type: out.Type, Title: out.Title, Summary: out.Summary, Tags: out.Tags, TagLayers: out.TagLayers}, nil
}

type Orchestrator struct {
	Classifier      Classifier
	Images          ImageAnalyzer
	Aligner         TagAligner
	Vocabulary      Vocabulary
	Retries         int
	Backoff         time.Duration
	NormalizeBudget time.Duration
	Log             logrus.FieldLogger
}

// Run classifies in with bounded retry while image analysis runs alongside it.
// Image analysis is best effort. Tags are aligned to the owner's vocabulary only
// when more than NormalizeBudget remains before ctx's deadline.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	log := o.logger().WithFields(logrus.Fields{"platform": in.Platform, "url": in.URL})

	var res Result
	var image *ai.ImageAnalysis
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return Retry(gctx, o.Retries, o.Backoff, func(ctx context.Context) error {
			out, err := o.Classifier.Classify(ctx, in)
			if err != nil {
				log.WithError(err).Warn("classification attempt failed")
				return err
			}
			res = out
			return nil
		})
	})
	if o.Images != nil && in.ImageURL != "" {
		g.Go(func() error {
			err := Retry(gctx, o.Retries, o.Backoff, func(ctx context.Context) error {
				out, err := o.Images.AnalyzeImage(ctx, in.ImageURL)
				if err != nil {
					return err
				}
				image = &out
				return nil
			})
			if err != nil {
				log.WithError(err).Info("image analysis skipped")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}

	res.Image = image
	res.Tags = o.alignTags(ctx, in.UserID, res.Tags, log)
	res.Elapsed = time.Since(start)
	return res, nil
}

func (o *Orchestrator) alignTags(ctx context.Context, userID string, tags []string, log logrus.FieldLogger) []string {
	if o.Aligner == nil || o.Vocabulary == nil || len(tags) == 0 || userID == "" {
		return tags
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= o.NormalizeBudget {
		log.Debug("skipping tag normalization: deadline too close")
		return tags
	}
	actx := ctx
	if o.NormalizeBudget > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.NormalizeBudget)
		defer cancel()
	}
	vocab, err := o.Vocabulary.UserTags(actx, userID)
	if err != nil || len(vocab) == 0 {
		return tags
	}
	aligned, err := o.Aligner.AlignTags(actx, tags, vocab)
	if err != nil {
		log.WithError(err).Info("tag normalization failed, keeping raw tags")
		return tags
	}
	return aligned
}

func (o *Orchestrator) logger() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	return logrus.StandardLogger()
}
