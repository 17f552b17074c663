// Package progress содержит модель прогресса пользователя по учебному пути.
// Множество завершённых топиков только растёт; повторная отметка - no-op.
package progress

import (
	"context"
	"sort"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// Record - прогресс пользователя по одному пути. Уникален по (UserID, CoursePathID).
type Record struct {
	UserID         shared.UserID
	CoursePathID   string
	Completed      map[int]struct{}
	Percentage     float64
	LastActivityAt time.Time

	// Version == 0 означает, что запись ещё не сохранена.
	Version int64
}

// NewRecord создаёт пустую запись прогресса.
func NewRecord(userID shared.UserID, coursePathID string) *Record {
	return &Record{
		UserID:       userID,
		CoursePathID: coursePathID,
		Completed:    make(map[int]struct{}),
	}
}

// MarkComplete отмечает топик завершённым и пересчитывает процент.
// Возвращает false, если топик уже был отмечен (запись не меняется).
func (r *Record) MarkComplete(index, totalTopics int, now time.Time) (bool, error) {
	if index < 0 || index >= totalTopics {
		return false, shared.NewValidationError("progress", "MarkComplete", "topicIndex",
			"topic index is out of range")
	}
	if r.Completed == nil {
		r.Completed = make(map[int]struct{})
	}
	if _, ok := r.Completed[index]; ok {
		return false, nil
	}
	r.Completed[index] = struct{}{}
	r.Percentage = Percentage(len(r.Completed), totalTopics)
	r.LastActivityAt = now
	return true, nil
}

// CompletedIndices возвращает отсортированный список индексов.
func (r *Record) CompletedIndices() []int {
	out := make([]int, 0, len(r.Completed))
	for i := range r.Completed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Clone returns a deep copy, so an optimistic retry never sees a half-applied record.
func (r *Record) Clone() *Record {
	c := *r
	c.Completed = make(map[int]struct{}, len(r.Completed))
	for i := range r.Completed {
		c.Completed[i] = struct{}{}
	}
	return &c
}

// Percentage = completed / total * 100, округлено до одного знака.
func Percentage(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return shared.RoundTo(float64(completed)/float64(total)*100, 1)
}

// Repository - хранилище записей прогресса.
type Repository interface {
	// Get возвращает ErrProgressNotFound, если записи нет.
	Get(ctx context.Context, userID shared.UserID, coursePathID string) (*Record, error)

	// Save вставляет запись (Version == 0) или обновляет её при совпадении
	// версии. При успехе Version увеличивается. Конфликт - ErrProgressConflict.
	Save(ctx context.Context, r *Record) error
}
