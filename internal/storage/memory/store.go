// Package memory provides an in-memory Store implementation for
// development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cardsmith/og-card-service/internal/ogcard"
)

// Store keeps jobs and mappings in process memory. It implements
// ogcard.Store with the same pagination and last-write-wins semantics
// as the Postgres store.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]ogcard.Job
	mappings map[string]ogcard.URLMapping
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]ogcard.Job),
		mappings: make(map[string]ogcard.URLMapping),
	}
}

// InsertJob stores a new job record.
func (s *Store) InsertJob(_ context.Context, job ogcard.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by id, denormalized with its latest mapped page
// URL.
func (s *Store) GetJob(_ context.Context, id string) (ogcard.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return ogcard.Job{}, ogcard.ErrJobNotFound
	}
	job.MappedPageURL = s.latestPageURLLocked(id)
	return job, nil
}

// ListJobs returns a reverse-chronological page of jobs strictly older
// than the cursor.
func (s *Store) ListJobs(_ context.Context, limit int, cursor string) (ogcard.ListJobsResult, error) {
	safeLimit := clampLimit(limit)
	before := parseCursor(cursor)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]ogcard.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if before > 0 && job.CreatedAt >= before {
			continue
		}
		rows = append(rows, job)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt > rows[j].CreatedAt })

	hasMore := len(rows) > safeLimit
	if hasMore {
		rows = rows[:safeLimit]
	}
	for i := range rows {
		rows[i].MappedPageURL = s.latestPageURLLocked(rows[i].ID)
	}

	result := ogcard.ListJobsResult{Items: rows}
	if hasMore {
		result.NextCursor = strconv.FormatInt(rows[len(rows)-1].CreatedAt, 10)
	}
	return result, nil
}

// BindMapping upserts the binding for pageURL; the last writer wins.
func (s *Store) BindMapping(_ context.Context, pageURL, jobID, imageURL string, updatedAt int64) (ogcard.URLMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping := ogcard.URLMapping{
		PageURL:   pageURL,
		JobID:     jobID,
		ImageURL:  imageURL,
		UpdatedAt: updatedAt,
	}
	s.mappings[pageURL] = mapping
	return mapping, nil
}

// GetMapping returns the current binding for pageURL.
func (s *Store) GetMapping(_ context.Context, pageURL string) (ogcard.URLMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.mappings[pageURL]
	if !ok {
		return ogcard.URLMapping{}, ogcard.ErrMappingNotFound
	}
	return mapping, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

func (s *Store) latestPageURLLocked(jobID string) string {
	var best ogcard.URLMapping
	for _, m := range s.mappings {
		if m.JobID != jobID {
			continue
		}
		if best.PageURL == "" || m.UpdatedAt > best.UpdatedAt {
			best = m
		}
	}
	return best.PageURL
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
