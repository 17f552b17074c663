// Package coursepath содержит доменную модель учебного пути (CoursePath).
//
// Пакет определяет:
//
//   - Сущности: CoursePath, Topic, Resource
//   - Жизненный цикл: DRAFT -> READY | FAILED, FAILED -> DRAFT (только повторная генерация)
//   - Агрегаты: enrollmentCount, averageRating, reviewCount, sentimentSummary
//   - Порты: Repository, AggregateStore, TopicGenerator
//
// # Агрегаты
//
// Агрегаты - это кэш над исходными строками (Enrollment, Review). Источник
// истины - строки; агрегаты можно в любой момент пересчитать через Recompute.
// Инкрементальные переходы (WithReviewInserted, WithReviewUpdated,
// WithEnrollmentDelta) возвращают ErrAggregateInvariant, если сохранённое
// состояние невозможно (отрицательные счётчики, обновление при reviewCount = 0).
// Вызывающий код в этом случае запускает reconciliation и повторяет запись.
//
//	next, err := path.Aggregates.WithReviewInserted(shared.Rating(5), shared.SentimentPositive)
//	if shared.IsDrift(err) {
//	    // reconcile, затем retry
//	}
package coursepath
