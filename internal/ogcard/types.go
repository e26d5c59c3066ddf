// Package ogcard defines core types shared across subsystems.
package ogcard

import (
	"context"
	"time"
)

// Platform selects the fixed output canvas for a card.
type Platform string

// Supported platforms and their canvas presets (see Presets).
const (
	PlatformOG       Platform = "og"
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformOG, PlatformTwitter, PlatformLinkedIn}

// TemplateID selects the overlay composition strategy.
type TemplateID string

// Supported overlay templates.
const (
	TemplateGradientBottom TemplateID = "gradient-bottom"
	TemplateCenterDark     TemplateID = "center-dark"
)

// TemplateIDs lists every supported template in a stable order.
var TemplateIDs = []TemplateID{TemplateGradientBottom, TemplateCenterDark}

// SourceKind classifies how the source image bytes were obtained.
type SourceKind string

// Source kinds persisted on job records.
const (
	SourceURL    SourceKind = "url"
	SourceUpload SourceKind = "upload"
	SourceBase64 SourceKind = "base64"
)

// JobStatus represents the terminal state of a render job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the durable record of a single card render. It is written once
// at the end of a successful render and never mutated.
type Job struct {
	ID            string     `json:"id"`
	SourceKind    SourceKind `json:"source_type"`
	SourceRef     string     `json:"source_ref"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle,omitempty"`
	Platform      Platform   `json:"platform"`
	TemplateID    TemplateID `json:"template_id"`
	OutputPath    string     `json:"output_path"`
	ImageURL      string     `json:"image_url"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Status        JobStatus  `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     int64      `json:"created_at"`
	MappedPageURL string     `json:"mapped_page_url,omitempty"`
}

// URLMapping binds a normalized page URL to the job currently
// representing it. Rebinding overwrites in place.
type URLMapping struct {
	PageURL   string `json:"page_url"`
	JobID     string `json:"job_id"`
	ImageURL  string `json:"image_url"`
	UpdatedAt int64  `json:"updated_at"`
}

// CreateJobInput carries everything a caller may supply when creating a
// job. Exactly one of SourceImageURL, SourceImageBase64, or
// SourceImageBytes must be populated.
type CreateJobInput struct {
	Title             string
	Subtitle          string
	Platform          Platform
	TemplateID        TemplateID
	PageURL           string
	SourceImageURL    string
	SourceImageBase64 string
	SourceImageBytes  []byte
	SourceFileName    string
}

// ListJobsInput selects a page of jobs. Cursor is the created_at of the
// last item of the previous page; empty means "start from newest".
type ListJobsInput struct {
	Limit  int
	Cursor string
}

// ListJobsResult is one reverse-chronological page of jobs.
type ListJobsResult struct {
	Items      []Job  `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// JobStore persists job records.
type JobStore interface {
	// InsertJob stores a new job. It fails on duplicate id or a
	// storage fault.
	InsertJob(ctx context.Context, job Job) error
	// GetJob returns the job, denormalized with its most recently
	// bound page URL, or ErrJobNotFound.
	GetJob(ctx context.Context, id string) (Job, error)
	// ListJobs returns up to limit jobs (clamped 1-100, default 20)
	// strictly older than cursor, newest first.
	ListJobs(ctx context.Context, limit int, cursor string) (ListJobsResult, error)
}

// MappingStore persists page-URL bindings.
type MappingStore interface {
	// BindMapping upserts the mapping for pageURL; the last writer
	// wins.
	BindMapping(ctx context.Context, pageURL, jobID, imageURL string, updatedAt int64) (URLMapping, error)
	// GetMapping returns the current binding or ErrMappingNotFound.
	GetMapping(ctx context.Context, pageURL string) (URLMapping, error)
}

// Store is the durable record store backing the service.
type Store interface {
	JobStore
	MappingStore
	Close()
}

// FileStore persists rendered PNGs and derives their public URLs.
type FileStore interface {
	SavePNG(ctx context.Context, jobID string, data []byte) (outputPath string, imageURL string, err error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// EpochMillis converts a time to the epoch-millisecond representation
// used for created_at/updated_at columns and pagination cursors.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
