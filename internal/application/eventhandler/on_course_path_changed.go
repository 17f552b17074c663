// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON COURSE PATH CHANGED HANDLER
// Сбрасывает кэш чтения пути, когда меняется его статус, содержимое или
// агрегаты. Кэш живёт в Redis и общий для всех инстансов, поэтому одного
// сброса достаточно.
// ═══════════════════════════════════════════════════════════════════════════

// CacheInvalidator - часть кэша путей, нужная обработчику.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, coursePathID string) error
}

// InvalidatingEvents - события, после которых кэшированный DTO устаревает.
var InvalidatingEvents = []shared.EventType{
	shared.EventCoursePathReady,
	shared.EventCoursePathFailed,
	shared.EventCoursePathArchived,
	shared.EventAggregatesChanged,
	shared.EventAggregatesRepaired,
	shared.EventUserEnrolled,
	shared.EventUserUnenrolled,
}

// OnCoursePathChangedHandler обрабатывает события изменения пути.
type OnCoursePathChangedHandler struct {
	cache   CacheInvalidator
	log     *logger.Logger
	timeout time.Duration
}

// NewOnCoursePathChangedHandler создаёт обработчик.
func NewOnCoursePathChangedHandler(cache CacheInvalidator, log *logger.Logger) *OnCoursePathChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnCoursePathChangedHandler{
		cache:   cache,
		log:     log.With(logger.String("handler", "on_course_path_changed")),
		timeout: 2 * time.Second,
	}
}

// Register подписывает обработчик на все InvalidatingEvents.
func (h *OnCoursePathChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range InvalidatingEvents {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle реализует shared.EventHandler. Ошибка кэша возвращается шине,
// которая её логирует; TTL кэша ограничивает время жизни устаревшей записи.
func (h *OnCoursePathChangedHandler) Handle(event shared.Event) error {
	id := event.AggregateID()
	if id == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx, id); err != nil {
		return err
	}
	h.log.Debug("course path cache invalidated",
		logger.CoursePathID(id),
		logger.String("event_type", string(event.EventType())),
	)
	return nil
}
