package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cardsmith/og-card-service/internal/ogcard"
	"github.com/cardsmith/og-card-service/internal/render"
	"github.com/cardsmith/og-card-service/internal/source"
	"github.com/cardsmith/og-card-service/internal/storage/memory"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type memFiles struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *memFiles) SavePNG(_ context.Context, jobID string, data []byte) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[jobID] = data
	return "/data/og-images/" + jobID + ".png", "http://localhost:4010/assets/og/" + jobID + ".png", nil
}

func sourceJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *memory.Store, *memFiles) {
	t.Helper()
	renderer, err := render.New()
	require.NoError(t, err)
	resolver := source.New(source.Config{
		MaxBytes:     10 * 1024 * 1024,
		FetchTimeout: 2 * time.Second,
	})
	store := memory.New()
	files := &memFiles{}
	svc := New(resolver, renderer, store, files,
		&fixedClock{now: time.Unix(1700000000, 0).UTC()},
		&seqIDs{},
		zap.NewNop(),
	)
	return svc, store, files
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	coded, ok := ogcard.AsError(err)
	require.True(t, ok, "expected coded error, got %v", err)
	require.Equal(t, code, coded.Code)
}

func TestCreateJobFromUpload(t *testing.T) {
	t.Parallel()
	svc, store, files := newTestService(t)

	job, err := svc.CreateJob(context.Background(), ogcard.CreateJobInput{
		Title:            "  Launch Day  ",
		Subtitle:         "Now in public beta",
		Platform:         ogcard.PlatformTwitter,
		TemplateID:       ogcard.TemplateCenterDark,
		SourceImageBytes: sourceJPEG(t),
		SourceFileName:   "hero.jpg",
	})
	require.NoError(t, err)

	require.Equal(t, "job-1", job.ID)
	require.Equal(t, "Launch Day", job.Title)
	require.Equal(t, ogcard.SourceUpload, job.SourceKind)
	require.Equal(t, "hero.jpg", job.SourceRef)
	require.Equal(t, 1200, job.Width)
	require.Equal(t, 675, job.Height)
	require.Equal(t, ogcard.JobStatusCompleted, job.Status)
	require.NotZero(t, job.CreatedAt)
	require.Empty(t, job.MappedPageURL)

	stored, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job, stored)

	files.mu.Lock()
	defer files.mu.Unlock()
	require.NotEmpty(t, files.saved["job-1"])
}

func TestCreateJobDefaultsPlatformAndTemplate(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	job, err := svc.CreateJob(context.Background(), ogcard.CreateJobInput{
		Title:            "Defaults",
		SourceImageBytes: sourceJPEG(t),
	})
	require.NoError(t, err)
	require.Equal(t, ogcard.PlatformOG, job.Platform)
	require.Equal(t, ogcard.TemplateGradientBottom, job.TemplateID)
	require.Equal(t, 1200, job.Width)
	require.Equal(t, 630, job.Height)
}

func TestCreateJobBindsPageURL(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)

	job, err := svc.CreateJob(context.Background(), ogcard.CreateJobInput{
		Title:            "Mapped",
		PageURL:          "https://example.com/post#section",
		SourceImageBytes: sourceJPEG(t),
	})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/post", job.MappedPageURL)

	mapping, err := store.GetMapping(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	require.Equal(t, job.ID, mapping.JobID)
	require.Equal(t, job.ImageURL, mapping.ImageURL)
}

func TestCreateJobTextValidation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	src := sourceJPEG(t)

	_, err := svc.CreateJob(ctx, ogcard.CreateJobInput{Title: "   ", SourceImageBytes: src})
	requireCode(t, err, ogcard.CodeTitleRequired)

	_, err = svc.CreateJob(ctx, ogcard.CreateJobInput{
		Title:            strings.Repeat("x", 141),
		SourceImageBytes: src,
	})
	requireCode(t, err, ogcard.CodeTitleTooLong)

	_, err = svc.CreateJob(ctx, ogcard.CreateJobInput{
		Title:            "ok",
		Subtitle:         strings.Repeat("y", 121),
		SourceImageBytes: src,
	})
	requireCode(t, err, ogcard.CodeSubtitleTooLong)
}

func TestCreateJobEnumValidation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	src := sourceJPEG(t)

	_, err := svc.CreateJob(ctx, ogcard.CreateJobInput{
		Title:            "ok",
		Platform:         "instagram",
		SourceImageBytes: src,
	})
	requireCode(t, err, ogcard.CodeInvalidPlatform)

	_, err = svc.CreateJob(ctx, ogcard.CreateJobInput{
		Title:            "ok",
		TemplateID:       "polaroid",
		SourceImageBytes: src,
	})
	requireCode(t, err, ogcard.CodeInvalidTemplate)
}

func TestCreateJobRejectsBadPageURLBeforeRender(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)

	_, err := svc.CreateJob(context.Background(), ogcard.CreateJobInput{
		Title:            "ok",
		PageURL:          "ftp://example.com/post",
		SourceImageBytes: sourceJPEG(t),
	})
	requireCode(t, err, ogcard.CodeInvalidPageURL)

	// Nothing persisted on a failed request.
	result, err := store.ListJobs(context.Background(), 10, "")
	require.NoError(t, err)
	require.Empty(t, result.Items)
}

func TestCreateJobRejectsMissingSource(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.CreateJob(context.Background(), ogcard.CreateJobInput{Title: "ok"})
	requireCode(t, err, ogcard.CodeInvalidSource)
}

func TestGetJobTranslatesNotFound(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.GetJob(context.Background(), "missing")
	requireCode(t, err, ogcard.CodeJobNotFound)
}

func TestListJobsPagesThroughHistory(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateJob(ctx, ogcard.CreateJobInput{
			Title:            fmt.Sprintf("card %d", i),
			SourceImageBytes: sourceJPEG(t),
		})
		require.NoError(t, err)
	}

	page, err := svc.ListJobs(ctx, ogcard.ListJobsInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListJobs(ctx, ogcard.ListJobsInput{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)
}

func TestBindMappingRebindsToNewerJob(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateJob(ctx, ogcard.CreateJobInput{
		Title:            "first",
		PageURL:          "https://example.com/post",
		SourceImageBytes: sourceJPEG(t),
	})
	require.NoError(t, err)

	second, err := svc.CreateJob(ctx, ogcard.CreateJobInput{
		Title:            "second",
		SourceImageBytes: sourceJPEG(t),
	})
	require.NoError(t, err)

	mapping, err := svc.BindMapping(ctx, "https://example.com/post", second.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, mapping.JobID)
	require.NotEqual(t, first.ID, mapping.JobID)

	got, err := svc.GetMappingForURL(ctx, "https://example.com/post#frag")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.JobID)
}

func TestBindMappingUnknownJob(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.BindMapping(context.Background(), "https://example.com/post", "missing")
	requireCode(t, err, ogcard.CodeJobNotFound)
}

func TestGetMappingForURLNotFound(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.GetMappingForURL(context.Background(), "https://example.com/none")
	requireCode(t, err, ogcard.CodeMappingNotFound)
}

func TestCatalogs(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	templates := svc.Templates()
	require.Len(t, templates, 2)
	presets := svc.Presets()
	require.Len(t, presets, 3)
}
