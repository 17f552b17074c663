package memory

import (
	"context"
	"sort"

	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

type reviewRepo struct{ s *Store }

func (r *reviewRepo) Get(ctx context.Context, userID shared.UserID, coursePathID string) (*review.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.reviewKeys[pairKey{userID, coursePathID}]
	if !ok {
		return nil, shared.ErrReviewNotFound
	}
	return cloneReview(r.s.reviews[id]), nil
}

func (r *reviewRepo) GetByID(ctx context.Context, id string) (*review.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, shared.ErrReviewNotFound
	}
	return cloneReview(rv), nil
}

func (r *reviewRepo) Apply(ctx context.Context, w review.Write) error {
	if w.Review == nil {
		return shared.NewValidationError("review", "Apply", "review", "review is required")
	}
	if err := w.Aggregates.Check(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.paths[w.Review.CoursePathID]
	if !ok {
		return shared.ErrCoursePathNotFound
	}
	if p.Version != w.ExpectedVersion {
		return shared.ErrCoursePathConflict
	}

	key := pairKey{w.Review.UserID, w.Review.CoursePathID}
	existingID, exists := r.s.reviewKeys[key]
	switch {
	case w.Insert && exists:
		// Same user, concurrent first submissions.
		return shared.ErrCoursePathConflict
	case !w.Insert && (!exists || existingID != w.Review.ID):
		return shared.ErrCoursePathConflict
	}

	stored := cloneReview(w.Review)
	if !w.Insert {
		stored.HelpfulCount = r.s.reviews[existingID].HelpfulCount
	}
	r.s.reviews[stored.ID] = stored
	r.s.reviewKeys[key] = stored.ID

	// Enrollment counts move without a version bump; only review columns are written.
	next := w.Aggregates
	next.EnrollmentCount = p.Aggregates.EnrollmentCount
	p.Aggregates = next
	p.Version++
	return nil
}

func (r *reviewRepo) ListByCoursePath(ctx context.Context, coursePathID string, sortBy review.Sort, page shared.Pagination) (review.Page, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := make([]*review.Review, 0)
	for _, rv := range r.s.reviews {
		if rv.CoursePathID == coursePathID {
			all = append(all, rv)
		}
	}
	sort.SliceStable(all, reviewLess(all, sortBy))

	out := review.Page{Items: []*review.Review{}, Total: len(all)}
	start := page.Offset()
	if start >= len(all) {
		return out, nil
	}
	end := min(start+page.Limit(), len(all))
	for _, rv := range all[start:end] {
		out.Items = append(out.Items, cloneReview(rv))
	}
	return out, nil
}

func (r *reviewRepo) AddHelpfulVote(ctx context.Context, reviewID string, voterID shared.UserID) (bool, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rv, ok := r.s.reviews[reviewID]
	if !ok {
		return false, 0, shared.ErrReviewNotFound
	}
	key := voteKey{reviewID, voterID}
	if _, voted := r.s.votes[key]; voted {
		return false, rv.HelpfulCount, nil
	}
	r.s.votes[key] = struct{}{}
	rv.HelpfulCount++
	return true, rv.HelpfulCount, nil
}

// reviewLess mirrors the ORDER BY clauses of the postgres adapter.
func reviewLess(items []*review.Review, sortBy review.Sort) func(i, j int) bool {
	newer := func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	}
	switch sortBy {
	case review.SortRatingHigh:
		return func(i, j int) bool {
			if items[i].Rating != items[j].Rating {
				return items[i].Rating > items[j].Rating
			}
			return newer(i, j)
		}
	case review.SortRatingLow:
		return func(i, j int) bool {
			if items[i].Rating != items[j].Rating {
				return items[i].Rating < items[j].Rating
			}
			return newer(i, j)
		}
	case review.SortHelpful:
		return func(i, j int) bool {
			if items[i].HelpfulCount != items[j].HelpfulCount {
				return items[i].HelpfulCount > items[j].HelpfulCount
			}
			return newer(i, j)
		}
	default:
		return newer
	}
}
