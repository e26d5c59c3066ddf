package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardsmith/og-card-service/internal/ogcard"
)

func seedJob(id string, createdAt int64) ogcard.Job {
	return ogcard.Job{
		ID:         id,
		SourceKind: ogcard.SourceURL,
		SourceRef:  "https://example.com/hero.png",
		Title:      "Launch Day",
		Platform:   ogcard.PlatformOG,
		TemplateID: ogcard.TemplateGradientBottom,
		OutputPath: "/tmp/" + id + ".png",
		ImageURL:   "http://localhost:4010/assets/og/" + id + ".png",
		Width:      1200,
		Height:     630,
		Status:     ogcard.JobStatusCompleted,
		CreatedAt:  createdAt,
	}
}

func TestInsertAndGetJob(t *testing.T) {
	t.Parallel()
	store := New()
	ctx := context.Background()

	job := seedJob("job-1", 1000)
	require.NoError(t, store.InsertJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, job, got)

	require.Error(t, store.InsertJob(ctx, job))
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	store := New()

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, ogcard.ErrJobNotFound)
}

func TestListJobsPagination(t *testing.T) {
	t.Parallel()
	store := New()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		job := seedJob(fmt.Sprintf("job-%d", i), int64(i*100))
		require.NoError(t, store.InsertJob(ctx, job))
	}

	first, err := store.ListJobs(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, "job-5", first.Items[0].ID)
	require.Equal(t, "job-4", first.Items[1].ID)
	require.Equal(t, "400", first.NextCursor)

	second, err := store.ListJobs(ctx, 2, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.Equal(t, "job-3", second.Items[0].ID)
	require.Equal(t, "job-2", second.Items[1].ID)

	last, err := store.ListJobs(ctx, 2, second.NextCursor)
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	require.Equal(t, "job-1", last.Items[0].ID)
	require.Empty(t, last.NextCursor)
}

func TestListJobsLimitClamping(t *testing.T) {
	t.Parallel()
	store := New()
	ctx := context.Background()

	for i := 1; i <= 30; i++ {
		require.NoError(t, store.InsertJob(ctx, seedJob(fmt.Sprintf("job-%d", i), int64(i))))
	}

	defaulted, err := store.ListJobs(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, defaulted.Items, 20)

	capped, err := store.ListJobs(ctx, 500, "")
	require.NoError(t, err)
	require.Len(t, capped.Items, 30)
}

func TestListJobsInvalidCursorTreatedAsAbsent(t *testing.T) {
	t.Parallel()
	store := New()
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, seedJob("job-1", 100)))
	require.NoError(t, store.InsertJob(ctx, seedJob("job-2", 200)))

	result, err := store.ListJobs(ctx, 10, "not-a-number")
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
}

func TestBindMappingLastWriteWins(t *testing.T) {
	t.Parallel()
	store := New()
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, seedJob("job-1", 100)))
	require.NoError(t, store.InsertJob(ctx, seedJob("job-2", 200)))

	first, err := store.BindMapping(ctx, "https://example.com/post", "job-1", "http://localhost:4010/assets/og/job-1.png", 1000)
	require.NoError(t, err)
	require.Equal(t, "job-1", first.JobID)

	second, err := store.BindMapping(ctx, "https://example.com/post", "job-2", "http://localhost:4010/assets/og/job-2.png", 2000)
	require.NoError(t, err)
	require.Equal(t, "job-2", second.JobID)

	got, err := store.GetMapping(ctx, "https://example.com/post")
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestGetMappingNotFound(t *testing.T) {
	t.Parallel()
	store := New()

	_, err := store.GetMapping(context.Background(), "https://example.com/none")
	require.ErrorIs(t, err, ogcard.ErrMappingNotFound)
}

func TestJobCarriesLatestMappedPageURL(t *testing.T) {
	t.Parallel()
	store := New()
	ctx := context.Background()

	require.NoError(t, store.InsertJob(ctx, seedJob("job-1", 100)))

	_, err := store.BindMapping(ctx, "https://example.com/a", "job-1", "img", 1000)
	require.NoError(t, err)
	_, err = store.BindMapping(ctx, "https://example.com/b", "job-1", "img", 2000)
	require.NoError(t, err)

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/b", got.MappedPageURL)

	listed, err := store.ListJobs(ctx, 10, "")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/b", listed.Items[0].MappedPageURL)
}
