package memory

import (
	"context"
	"sort"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

type enrollmentRepo struct{ s *Store }

func (r *enrollmentRepo) Enroll(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.paths[coursePathID]
	if !ok {
		return false, shared.ErrCoursePathNotFound
	}
	key := pairKey{userID, coursePathID}
	if _, ok := r.s.enrolled[key]; ok {
		return false, nil
	}
	if err := p.EnsureAcceptsParticipation(); err != nil {
		return false, err
	}
	next, err := p.Aggregates.WithEnrollmentDelta(1)
	if err != nil {
		return false, err
	}
	r.s.enrolled[key] = enrollment.Enrollment{UserID: userID, CoursePathID: coursePathID, CreatedAt: r.s.now()}
	p.Aggregates = next
	return true, nil
}

func (r *enrollmentRepo) Unenroll(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{userID, coursePathID}
	if _, ok := r.s.enrolled[key]; !ok {
		return false, nil
	}
	p, ok := r.s.paths[coursePathID]
	if !ok {
		return false, shared.ErrCoursePathNotFound
	}
	next, err := p.Aggregates.WithEnrollmentDelta(-1)
	if err != nil {
		return false, err
	}
	delete(r.s.enrolled, key)
	p.Aggregates = next
	return true, nil
}

func (r *enrollmentRepo) Exists(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.enrolled[pairKey{userID, coursePathID}]
	return ok, nil
}

func (r *enrollmentRepo) ListCoursePathIDs(ctx context.Context, userID shared.UserID) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows := make([]enrollment.Enrollment, 0)
	for k, e := range r.s.enrolled {
		if k.userID == userID {
			rows = append(rows, e)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CoursePathID > rows[j].CoursePathID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	ids := make([]string, len(rows))
	for i, e := range rows {
		ids[i] = e.CoursePathID
	}
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

type progressRepo struct{ s *Store }

func (r *progressRepo) Get(ctx context.Context, userID shared.UserID, coursePathID string) (*progress.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.progress[pairKey{userID, coursePathID}]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return rec.Clone(), nil
}

func (r *progressRepo) Save(ctx context.Context, rec *progress.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{rec.UserID, rec.CoursePathID}
	stored, exists := r.s.progress[key]
	switch {
	case rec.Version == 0 && exists:
		return shared.ErrProgressConflict
	case rec.Version != 0 && (!exists || stored.Version != rec.Version):
		return shared.ErrProgressConflict
	}
	rec.Version++
	r.s.progress[key] = rec.Clone()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE RECONCILIATION
// ══════════════════════════════════════════════════════════════════════════════

type aggregateStore struct{ s *Store }

func (a *aggregateStore) Reconcile(ctx context.Context, coursePathID string) (coursepath.ReconcileResult, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	p, ok := a.s.paths[coursePathID]
	if !ok {
		return coursepath.ReconcileResult{}, shared.ErrCoursePathNotFound
	}

	enrollments := 0
	for k := range a.s.enrolled {
		if k.pathID == coursePathID {
			enrollments++
		}
	}
	samples := make([]coursepath.ReviewSample, 0)
	for _, rv := range a.s.reviews {
		if rv.CoursePathID == coursePathID {
			samples = append(samples, coursepath.ReviewSample{Rating: rv.Rating, Sentiment: rv.SentimentLabel})
		}
	}

	res := coursepath.ReconcileResult{
		CoursePathID: coursePathID,
		Before:       p.Aggregates,
		After:        coursepath.Recompute(enrollments, samples),
	}
	if res.After != res.Before {
		p.Aggregates = res.After
		p.Version++
		res.Repaired = true
	}
	return res, nil
}
