// Package service implements the card pipeline: validate, acquire the
// source image, render, persist, and optionally bind a page URL.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cardsmith/og-card-service/internal/ogcard"
	"github.com/cardsmith/og-card-service/internal/render"
	"github.com/cardsmith/og-card-service/internal/source"
	"github.com/cardsmith/og-card-service/internal/telemetry"
)

const (
	maxTitleLength    = 140
	maxSubtitleLength = 120
)

// Service coordinates the full lifecycle of a card job.
type Service struct {
	resolver *source.Resolver
	renderer *render.Renderer
	store    ogcard.Store
	files    ogcard.FileStore
	clock    ogcard.Clock
	ids      ogcard.IDGenerator
	logger   *zap.Logger
}

// New wires a Service from its collaborators.
func New(resolver *source.Resolver, renderer *render.Renderer, store ogcard.Store, files ogcard.FileStore, clock ogcard.Clock, ids ogcard.IDGenerator, logger *zap.Logger) *Service {
	telemetry.Init()
	return &Service{
		resolver: resolver,
		renderer: renderer,
		store:    store,
		files:    files,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// CreateJob runs the full pipeline. Failures before persistence return a
// coded error and leave no job record behind.
func (s *Service) CreateJob(ctx context.Context, in ogcard.CreateJobInput) (ogcard.Job, error) {
	title, subtitle, err := validateText(in.Title, in.Subtitle)
	if err != nil {
		return ogcard.Job{}, err
	}

	platform := in.Platform
	if platform == "" {
		platform = ogcard.PlatformOG
	}
	if !ogcard.ValidPlatform(platform) {
		return ogcard.Job{}, ogcard.NewError(
			ogcard.CodeInvalidPlatform,
			fmt.Sprintf("unknown platform %q", platform),
			http.StatusBadRequest,
		)
	}
	templateID := in.TemplateID
	if templateID == "" {
		templateID = ogcard.TemplateGradientBottom
	}
	if !ogcard.ValidTemplate(templateID) {
		return ogcard.Job{}, ogcard.NewError(
			ogcard.CodeInvalidTemplate,
			fmt.Sprintf("unknown template %q", templateID),
			http.StatusBadRequest,
		)
	}

	// Normalize the page URL up front so a bad one fails before any
	// fetch or render work happens.
	pageURL := ""
	if in.PageURL != "" {
		pageURL, err = ogcard.NormalizePageURL(in.PageURL)
		if err != nil {
			return ogcard.Job{}, err
		}
	}

	src, err := s.resolver.Resolve(ctx, source.Input{
		URL:      in.SourceImageURL,
		Base64:   in.SourceImageBase64,
		Bytes:    in.SourceImageBytes,
		FileName: in.SourceFileName,
	})
	if err != nil {
		return ogcard.Job{}, err
	}
	telemetry.ObserveSourceBytes(string(src.Kind), len(src.Data))

	renderStart := s.clock.Now()
	out, err := s.renderer.Render(render.Input{
		Source:     src.Data,
		Title:      title,
		Subtitle:   subtitle,
		Platform:   platform,
		TemplateID: templateID,
	})
	if err != nil {
		telemetry.ObserveJob(string(platform), string(ogcard.JobStatusFailed))
		return ogcard.Job{}, err
	}
	telemetry.ObserveRender(string(templateID), s.clock.Now().Sub(renderStart))

	id, err := s.ids.NewID()
	if err != nil {
		return ogcard.Job{}, s.fault("generate job id", err)
	}

	outputPath, imageURL, err := s.files.SavePNG(ctx, id, out.PNG)
	if err != nil {
		return ogcard.Job{}, s.fault("persist card image", err)
	}

	job := ogcard.Job{
		ID:         id,
		SourceKind: src.Kind,
		SourceRef:  src.Ref,
		Title:      title,
		Subtitle:   subtitle,
		Platform:   platform,
		TemplateID: templateID,
		OutputPath: outputPath,
		ImageURL:   imageURL,
		Width:      out.Width,
		Height:     out.Height,
		Status:     ogcard.JobStatusCompleted,
		CreatedAt:  ogcard.EpochMillis(s.clock.Now()),
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return ogcard.Job{}, s.fault("insert job", err)
	}
	telemetry.ObserveJob(string(platform), string(ogcard.JobStatusCompleted))

	if pageURL != "" {
		mapping, err := s.store.BindMapping(ctx, pageURL, job.ID, job.ImageURL, ogcard.EpochMillis(s.clock.Now()))
		if err != nil {
			return ogcard.Job{}, s.fault("bind mapping", err)
		}
		job.MappedPageURL = mapping.PageURL
	}

	s.logger.Info("card job completed",
		zap.String("job_id", job.ID),
		zap.String("platform", string(job.Platform)),
		zap.String("template", string(job.TemplateID)),
		zap.String("source_type", string(job.SourceKind)),
	)
	return job, nil
}

// GetJob fetches one job by id.
func (s *Service) GetJob(ctx context.Context, id string) (ogcard.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, ogcard.ErrJobNotFound) {
			return ogcard.Job{}, ogcard.NewError(ogcard.CodeJobNotFound, fmt.Sprintf("job %s not found", id), http.StatusNotFound)
		}
		return ogcard.Job{}, s.fault("get job", err)
	}
	return job, nil
}

// ListJobs returns one reverse-chronological page of jobs.
func (s *Service) ListJobs(ctx context.Context, in ogcard.ListJobsInput) (ogcard.ListJobsResult, error) {
	result, err := s.store.ListJobs(ctx, in.Limit, in.Cursor)
	if err != nil {
		return ogcard.ListJobsResult{}, s.fault("list jobs", err)
	}
	return result, nil
}

// BindMapping points pageURL at an existing job's card.
func (s *Service) BindMapping(ctx context.Context, pageURL, jobID string) (ogcard.URLMapping, error) {
	normalized, err := ogcard.NormalizePageURL(pageURL)
	if err != nil {
		return ogcard.URLMapping{}, err
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ogcard.ErrJobNotFound) {
			return ogcard.URLMapping{}, ogcard.NewError(ogcard.CodeJobNotFound, fmt.Sprintf("job %s not found", jobID), http.StatusNotFound)
		}
		return ogcard.URLMapping{}, s.fault("get job", err)
	}
	mapping, err := s.store.BindMapping(ctx, normalized, job.ID, job.ImageURL, ogcard.EpochMillis(s.clock.Now()))
	if err != nil {
		return ogcard.URLMapping{}, s.fault("bind mapping", err)
	}
	return mapping, nil
}

// GetMappingForURL returns the binding for a page URL.
func (s *Service) GetMappingForURL(ctx context.Context, pageURL string) (ogcard.URLMapping, error) {
	normalized, err := ogcard.NormalizePageURL(pageURL)
	if err != nil {
		return ogcard.URLMapping{}, err
	}
	mapping, err := s.store.GetMapping(ctx, normalized)
	if err != nil {
		if errors.Is(err, ogcard.ErrMappingNotFound) {
			return ogcard.URLMapping{}, ogcard.NewError(ogcard.CodeMappingNotFound, "no mapping for that page URL", http.StatusNotFound)
		}
		return ogcard.URLMapping{}, s.fault("get mapping", err)
	}
	return mapping, nil
}

// Templates returns the fixed overlay catalog.
func (s *Service) Templates() []ogcard.Template {
	return ogcard.Templates()
}

// Presets returns the fixed platform canvas catalog.
func (s *Service) Presets() []ogcard.Preset {
	return ogcard.Presets()
}

func validateText(title, subtitle string) (string, string, error) {
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" {
		return "", "", ogcard.NewError(ogcard.CodeTitleRequired, "title is required", http.StatusBadRequest)
	}
	if utf8.RuneCountInString(trimmedTitle) > maxTitleLength {
		return "", "", ogcard.NewError(
			ogcard.CodeTitleTooLong,
			fmt.Sprintf("title exceeds %d characters", maxTitleLength),
			http.StatusBadRequest,
		)
	}
	trimmedSubtitle := strings.TrimSpace(subtitle)
	if utf8.RuneCountInString(trimmedSubtitle) > maxSubtitleLength {
		return "", "", ogcard.NewError(
			ogcard.CodeSubtitleTooLong,
			fmt.Sprintf("subtitle exceeds %d characters", maxSubtitleLength),
			http.StatusBadRequest,
		)
	}
	return trimmedTitle, trimmedSubtitle, nil
}

// fault logs the underlying cause and returns an opaque internal error.
func (s *Service) fault(op string, err error) error {
	s.logger.Error(op, zap.Error(err))
	return ogcard.NewError(ogcard.CodeInternal, "internal error", http.StatusInternalServerError)
}
