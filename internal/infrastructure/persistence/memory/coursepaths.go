package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

type coursePathRepo struct{ s *Store }

func (r *coursePathRepo) Create(ctx context.Context, path *coursepath.CoursePath) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.paths[path.ID]; ok {
		return shared.NewDomainError("coursepath", "Create", shared.ErrAlreadyExists, "course path already exists")
	}
	if path.IdempotencyKey != "" {
		for _, p := range r.s.paths {
			if p.CreatorID == path.CreatorID && p.IdempotencyKey == path.IdempotencyKey {
				return shared.NewDomainError("coursepath", "Create", shared.ErrAlreadyExists, "idempotency key already used")
			}
		}
	}
	path.Version = 1
	r.s.paths[path.ID] = clonePath(path)
	return nil
}

func (r *coursePathRepo) GetByID(ctx context.Context, id string) (*coursepath.CoursePath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.paths[id]
	if !ok {
		return nil, shared.ErrCoursePathNotFound
	}
	return clonePath(p), nil
}

func (r *coursePathRepo) GetByIdempotencyKey(ctx context.Context, creatorID shared.UserID, key string) (*coursepath.CoursePath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if key == "" {
		return nil, shared.ErrCoursePathNotFound
	}
	for _, p := range r.s.paths {
		if p.CreatorID == creatorID && p.IdempotencyKey == key {
			return clonePath(p), nil
		}
	}
	return nil, shared.ErrCoursePathNotFound
}

func (r *coursePathRepo) SaveLifecycle(ctx context.Context, path *coursepath.CoursePath) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.paths[path.ID]
	if !ok {
		return shared.ErrCoursePathNotFound
	}
	if stored.Version != path.Version {
		return shared.ErrCoursePathConflict
	}

	next := clonePath(path)
	next.Aggregates = stored.Aggregates
	next.Version = stored.Version + 1
	r.s.paths[path.ID] = next

	path.Aggregates = stored.Aggregates
	path.Version = next.Version
	return nil
}

func (r *coursePathRepo) ListByCreator(ctx context.Context, creatorID shared.UserID) ([]*coursepath.CoursePath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*coursepath.CoursePath, 0)
	for _, p := range r.s.paths {
		if p.CreatorID == creatorID {
			out = append(out, clonePath(p))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *coursePathRepo) ListByIDs(ctx context.Context, ids []string) ([]*coursepath.CoursePath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*coursepath.CoursePath, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.paths[id]; ok {
			out = append(out, clonePath(p))
		}
	}
	return out, nil
}

func (r *coursePathRepo) Search(ctx context.Context, terms []string, page shared.Pagination) ([]*coursepath.CoursePath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}

	matches := make([]*coursepath.CoursePath, 0)
	for _, p := range r.s.paths {
		if p.Status != coursepath.StatusReady || p.IsArchived() {
			continue
		}
		subject := strings.ToLower(p.Subject)
		ok := true
		for _, t := range lowered {
			if !strings.Contains(subject, t) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, p)
		}
	}
	sortNewestFirst(matches)

	start := page.Offset()
	if start >= len(matches) {
		return []*coursepath.CoursePath{}, nil
	}
	end := min(start+page.Limit(), len(matches))
	out := make([]*coursepath.CoursePath, 0, end-start)
	for _, p := range matches[start:end] {
		out = append(out, clonePath(p))
	}
	return out, nil
}

func (r *coursePathRepo) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]*coursepath.CoursePath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*coursepath.CoursePath, 0)
	for _, p := range r.s.paths {
		if p.Status == coursepath.StatusDraft && p.UpdatedAt.Before(before) {
			out = append(out, clonePath(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *coursePathRepo) ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]string, 0, len(r.s.paths))
	for id := range r.s.paths {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func sortNewestFirst(paths []*coursepath.CoursePath) {
	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].CreatedAt.Equal(paths[j].CreatedAt) {
			return paths[i].ID > paths[j].ID
		}
		return paths[i].CreatedAt.After(paths[j].CreatedAt)
	})
}
