// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardsmith/og-card-service/internal/ogcard"
)

// Schema, for reference:
//
//	CREATE TABLE og_jobs (
//	    id            TEXT PRIMARY KEY,
//	    source_type   TEXT NOT NULL,
//	    source_ref    TEXT NOT NULL,
//	    title         TEXT NOT NULL,
//	    subtitle      TEXT NOT NULL DEFAULT '',
//	    platform      TEXT NOT NULL,
//	    template_id   TEXT NOT NULL,
//	    output_path   TEXT NOT NULL,
//	    image_url     TEXT NOT NULL,
//	    width         INTEGER NOT NULL,
//	    height        INTEGER NOT NULL,
//	    status        TEXT NOT NULL,
//	    error_message TEXT NOT NULL DEFAULT '',
//	    created_at    BIGINT NOT NULL
//	);
//	CREATE INDEX og_jobs_created_at_idx ON og_jobs (created_at DESC);
//
//	CREATE TABLE url_mappings (
//	    page_url   TEXT PRIMARY KEY,
//	    job_id     TEXT NOT NULL REFERENCES og_jobs (id),
//	    image_url  TEXT NOT NULL,
//	    updated_at BIGINT NOT NULL
//	);

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists jobs and URL mappings in Postgres.
type Store struct {
	pool db
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const insertJobSQL = `
INSERT INTO og_jobs (
	id,
	source_type,
	source_ref,
	title,
	subtitle,
	platform,
	template_id,
	output_path,
	image_url,
	width,
	height,
	status,
	error_message,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)`

// InsertJob writes a new job row.
func (s *Store) InsertJob(ctx context.Context, job ogcard.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	args := []any{
		job.ID,
		string(job.SourceKind),
		job.SourceRef,
		job.Title,
		job.Subtitle,
		string(job.Platform),
		string(job.TemplateID),
		job.OutputPath,
		job.ImageURL,
		job.Width,
		job.Height,
		string(job.Status),
		job.ErrorMessage,
		job.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, insertJobSQL, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, source_type, source_ref, title, subtitle, platform, template_id,
	output_path, image_url, width, height, status, error_message, created_at`

// GetJob fetches a job by id, denormalized with its latest mapped page URL.
func (s *Store) GetJob(ctx context.Context, id string) (ogcard.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM og_jobs WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ogcard.Job{}, ogcard.ErrJobNotFound
		}
		return ogcard.Job{}, fmt.Errorf("get job: %w", err)
	}

	mapped := s.pool.QueryRow(ctx,
		`SELECT page_url FROM url_mappings WHERE job_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		id)
	var pageURL string
	if err := mapped.Scan(&pageURL); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return ogcard.Job{}, fmt.Errorf("get job mapping: %w", err)
		}
	} else {
		job.MappedPageURL = pageURL
	}
	return job, nil
}

// ListJobs returns a reverse-chronological page of jobs strictly older than
// the cursor. One extra row is fetched to decide whether a next page exists.
func (s *Store) ListJobs(ctx context.Context, limit int, cursor string) (ogcard.ListJobsResult, error) {
	safeLimit := clampLimit(limit)
	before := parseCursor(cursor)

	var (
		rows pgx.Rows
		err  error
	)
	if before > 0 {
		query := `SELECT ` + jobColumns + ` FROM og_jobs WHERE created_at < $1 ORDER BY created_at DESC LIMIT $2`
		rows, err = s.pool.Query(ctx, query, before, safeLimit+1)
	} else {
		query := `SELECT ` + jobColumns + ` FROM og_jobs ORDER BY created_at DESC LIMIT $1`
		rows, err = s.pool.Query(ctx, query, safeLimit+1)
	}
	if err != nil {
		return ogcard.ListJobsResult{}, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	items := make([]ogcard.Job, 0, safeLimit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return ogcard.ListJobsResult{}, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return ogcard.ListJobsResult{}, fmt.Errorf("list jobs: %w", err)
	}

	hasMore := len(items) > safeLimit
	if hasMore {
		items = items[:safeLimit]
	}
	if err := s.attachMappings(ctx, items); err != nil {
		return ogcard.ListJobsResult{}, err
	}

	result := ogcard.ListJobsResult{Items: items}
	if hasMore {
		result.NextCursor = strconv.FormatInt(items[len(items)-1].CreatedAt, 10)
	}
	return result, nil
}

// attachMappings fills MappedPageURL for each job from the newest binding
// pointing at it.
func (s *Store) attachMappings(ctx context.Context, jobs []ogcard.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, page_url FROM url_mappings WHERE job_id = ANY($1) ORDER BY updated_at DESC`,
		ids)
	if err != nil {
		return fmt.Errorf("list job mappings: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]string)
	for rows.Next() {
		var jobID, pageURL string
		if err := rows.Scan(&jobID, &pageURL); err != nil {
			return fmt.Errorf("scan job mapping: %w", err)
		}
		if _, seen := latest[jobID]; !seen {
			latest[jobID] = pageURL
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list job mappings: %w", err)
	}
	for i := range jobs {
		jobs[i].MappedPageURL = latest[jobs[i].ID]
	}
	return nil
}

const bindMappingSQL = `
INSERT INTO url_mappings (page_url, job_id, image_url, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (page_url) DO UPDATE SET
	job_id = EXCLUDED.job_id,
	image_url = EXCLUDED.image_url,
	updated_at = EXCLUDED.updated_at`

// BindMapping upserts the binding for pageURL; the last writer wins.
func (s *Store) BindMapping(ctx context.Context, pageURL, jobID, imageURL string, updatedAt int64) (ogcard.URLMapping, error) {
	if _, err := s.pool.Exec(ctx, bindMappingSQL, pageURL, jobID, imageURL, updatedAt); err != nil {
		return ogcard.URLMapping{}, fmt.Errorf("bind mapping: %w", err)
	}
	return ogcard.URLMapping{
		PageURL:   pageURL,
		JobID:     jobID,
		ImageURL:  imageURL,
		UpdatedAt: updatedAt,
	}, nil
}

// GetMapping returns the current binding for pageURL.
func (s *Store) GetMapping(ctx context.Context, pageURL string) (ogcard.URLMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT page_url, job_id, image_url, updated_at FROM url_mappings WHERE page_url = $1`,
		pageURL)
	var m ogcard.URLMapping
	if err := row.Scan(&m.PageURL, &m.JobID, &m.ImageURL, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ogcard.URLMapping{}, ogcard.ErrMappingNotFound
		}
		return ogcard.URLMapping{}, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

func scanJob(row pgx.Row) (ogcard.Job, error) {
	var (
		job        ogcard.Job
		sourceKind string
		platform   string
		templateID string
		status     string
	)
	err := row.Scan(
		&job.ID,
		&sourceKind,
		&job.SourceRef,
		&job.Title,
		&job.Subtitle,
		&platform,
		&templateID,
		&job.OutputPath,
		&job.ImageURL,
		&job.Width,
		&job.Height,
		&status,
		&job.ErrorMessage,
		&job.CreatedAt,
	)
	if err != nil {
		return ogcard.Job{}, err
	}
	job.SourceKind = ogcard.SourceKind(sourceKind)
	job.Platform = ogcard.Platform(platform)
	job.TemplateID = ogcard.TemplateID(templateID)
	job.Status = ogcard.JobStatus(status)
	return job, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func parseCursor(cursor string) int64 {
	if cursor == "" {
		return 0
	}
	n, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
