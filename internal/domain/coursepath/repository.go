package coursepath

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - интерфейс хранилища учебных путей.
// Реализуется в infrastructure/persistence (postgres, memory).
type Repository interface {
	// Create сохраняет новый путь. Конфликт по (creatorId, idempotencyKey)
	// возвращает ошибку с Kind = ErrAlreadyExists.
	Create(ctx context.Context, path *CoursePath) error

	// GetByID находит путь по ID.
	GetByID(ctx context.Context, id string) (*CoursePath, error)

	// GetByIdempotencyKey находит путь, созданный пользователем с данным ключом.
	GetByIdempotencyKey(ctx context.Context, creatorID shared.UserID, key string) (*CoursePath, error)

	// SaveLifecycle сохраняет статус, топики, причину ошибки и архивирование.
	// Агрегаты не затрагиваются. Проверяет path.Version и увеличивает его;
	// несовпадение версии возвращает ErrCoursePathConflict.
	SaveLifecycle(ctx context.Context, path *CoursePath) error

	// ListByCreator возвращает пути пользователя, новые первыми.
	ListByCreator(ctx context.Context, creatorID shared.UserID) ([]*CoursePath, error)

	// ListByIDs возвращает найденные пути в порядке ids; отсутствующие пропускаются.
	ListByIDs(ctx context.Context, ids []string) ([]*CoursePath, error)

	// Search ищет READY пути, тема которых содержит все термы (без учёта регистра).
	Search(ctx context.Context, terms []string, page shared.Pagination) ([]*CoursePath, error)

	// ListStaleDrafts возвращает DRAFT пути, не обновлявшиеся с before.
	ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]*CoursePath, error)

	// ListIDsAfter возвращает ID по возрастанию, начиная после afterID (keyset pagination).
	ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error)
}

// ReconcileResult describes one reconciliation pass over a course path.
type ReconcileResult struct {
	CoursePathID string
	Before       Aggregates
	After        Aggregates
	Repaired     bool
}

// AggregateStore owns the write paths that touch aggregates directly.
type AggregateStore interface {
	// Reconcile locks the course path, recomputes aggregates from source rows
	// with Recompute, and writes them only if they differ. Idempotent.
	Reconcile(ctx context.Context, coursePathID string) (ReconcileResult, error)
}

// TopicGenerator is the AI topic generation capability.
type TopicGenerator interface {
	GenerateTopics(ctx context.Context, subject string, difficulty shared.Difficulty) ([]GeneratedTopic, error)
}
