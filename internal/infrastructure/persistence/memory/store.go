// Package memory implements every repository port in process memory.
// Suitable for development and testing. Data is lost on restart.
//
// All repositories returned by one Store share a single lock, so the
// multi-row units the postgres adapter runs in a transaction (enroll plus
// counter, review plus aggregates) are atomic here too.
package memory

import (
	"sync"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/domain/user"
)

type pairKey struct {
	userID shared.UserID
	pathID string
}

type voteKey struct {
	reviewID string
	voterID  shared.UserID
}

// Store holds all state behind one RWMutex.
type Store struct {
	mu sync.RWMutex

	paths      map[string]*coursepath.CoursePath
	enrolled   map[pairKey]enrollment.Enrollment
	progress   map[pairKey]*progress.Record
	reviews    map[string]*review.Review
	reviewKeys map[pairKey]string
	votes      map[voteKey]struct{}
	users      map[shared.UserID]*user.User
	learning   map[string]*learningpath.LearningPath

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		paths:      make(map[string]*coursepath.CoursePath),
		enrolled:   make(map[pairKey]enrollment.Enrollment),
		progress:   make(map[pairKey]*progress.Record),
		reviews:    make(map[string]*review.Review),
		reviewKeys: make(map[pairKey]string),
		votes:      make(map[voteKey]struct{}),
		users:      make(map[shared.UserID]*user.User),
		learning:   make(map[string]*learningpath.LearningPath),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CoursePaths returns the course path repository.
func (s *Store) CoursePaths() coursepath.Repository { return &coursePathRepo{s} }

// Aggregates returns the aggregate reconciler.
func (s *Store) Aggregates() coursepath.AggregateStore { return &aggregateStore{s} }

// Enrollments returns the enrollment repository.
func (s *Store) Enrollments() enrollment.Repository { return &enrollmentRepo{s} }

// Progress returns the progress repository.
func (s *Store) Progress() progress.Repository { return &progressRepo{s} }

// Reviews returns the review repository.
func (s *Store) Reviews() review.Repository { return &reviewRepo{s} }

// Users returns the user repository.
func (s *Store) Users() user.Repository { return &userRepo{s} }

// LearningPaths returns the learning path repository.
func (s *Store) LearningPaths() learningpath.Repository { return &learningPathRepo{s} }

// OverwriteAggregates replaces stored counters without touching source rows
// or the version. It exists to inject drift for reconciliation tests.
func (s *Store) OverwriteAggregates(coursePathID string, a coursepath.Aggregates) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[coursePathID]
	if !ok {
		return false
	}
	p.Aggregates = a
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// COPY HELPERS
// Callers never hold pointers into the store.
// ══════════════════════════════════════════════════════════════════════════════

func clonePath(p *coursepath.CoursePath) *coursepath.CoursePath {
	c := *p
	if p.Topics != nil {
		c.Topics = make([]coursepath.Topic, len(p.Topics))
		for i, t := range p.Topics {
			t.Resources = append([]coursepath.Resource(nil), t.Resources...)
			t.Prerequisites = append([]string(nil), t.Prerequisites...)
			t.Tags = append([]string(nil), t.Tags...)
			c.Topics[i] = t
		}
	}
	if p.ArchivedAt != nil {
		at := *p.ArchivedAt
		c.ArchivedAt = &at
	}
	return &c
}

func cloneReview(r *review.Review) *review.Review {
	c := *r
	return &c
}
