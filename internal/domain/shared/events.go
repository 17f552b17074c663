package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Read-side caches and metrics react to these.
const (
	// Course path lifecycle events
	EventCoursePathCreated   EventType = "coursepath.created"
	EventCoursePathReady     EventType = "coursepath.ready"
	EventCoursePathFailed    EventType = "coursepath.failed"
	EventCoursePathArchived  EventType = "coursepath.archived"
	EventAggregatesChanged   EventType = "coursepath.aggregates_changed"
	EventAggregatesRepaired  EventType = "coursepath.aggregates_repaired"

	// Participation events
	EventUserEnrolled    EventType = "enrollment.created"
	EventUserUnenrolled  EventType = "enrollment.deleted"
	EventTopicCompleted  EventType = "progress.topic_completed"
	EventPathCompleted   EventType = "progress.path_completed"

	// Review events
	EventReviewSubmitted EventType = "review.submitted"
	EventReviewVoted     EventType = "review.voted"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Course Path Events
// ═══════════════════════════════════════════════════════════════════════════

// CoursePathLifecycleEvent is emitted on DRAFT creation and on every
// generation outcome. The aggregate id is the course path id.
type CoursePathLifecycleEvent struct {
	BaseEvent
	CreatorID  string `json:"creator_id"`
	Subject    string `json:"subject"`
	TopicCount int    `json:"topic_count"`
	Reason     string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e CoursePathLifecycleEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"creator_id":  e.CreatorID,
		"subject":     e.Subject,
		"topic_count": e.TopicCount,
		"reason":      e.Reason,
	}
}

// NewCoursePathLifecycleEvent creates a lifecycle event of the given type.
func NewCoursePathLifecycleEvent(t EventType, pathID, creatorID, subject string, topics int, reason string) CoursePathLifecycleEvent {
	return CoursePathLifecycleEvent{
		BaseEvent:  NewBaseEvent(t, pathID),
		CreatorID:  creatorID,
		Subject:    subject,
		TopicCount: topics,
		Reason:     reason,
	}
}

// AggregatesChangedEvent is emitted whenever derived counters of a course
// path move, either through normal traffic or through reconciliation.
type AggregatesChangedEvent struct {
	BaseEvent
	EnrollmentCount int `json:"enrollment_count"`
	ReviewCount     int `json:"review_count"`
	Repaired        bool `json:"repaired"`
}

// Payload implements Event interface.
func (e AggregatesChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_count": e.EnrollmentCount,
		"review_count":     e.ReviewCount,
		"repaired":         e.Repaired,
	}
}

// NewAggregatesChangedEvent creates a new AggregatesChangedEvent.
func NewAggregatesChangedEvent(pathID string, enrollments, reviews int, repaired bool) AggregatesChangedEvent {
	t := EventAggregatesChanged
	if repaired {
		t = EventAggregatesRepaired
	}
	return AggregatesChangedEvent{
		BaseEvent:       NewBaseEvent(t, pathID),
		EnrollmentCount: enrollments,
		ReviewCount:     reviews,
		Repaired:        repaired,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Participation Events
// ═══════════════════════════════════════════════════════════════════════════

// EnrollmentEvent is emitted when a user joins or leaves a course path.
type EnrollmentEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

// Payload implements Event interface.
func (e EnrollmentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
	}
}

// NewEnrollmentEvent creates an enrollment event. Use EventUserEnrolled or EventUserUnenrolled.
func NewEnrollmentEvent(t EventType, pathID, userID string) EnrollmentEvent {
	return EnrollmentEvent{
		BaseEvent: NewBaseEvent(t, pathID),
		UserID:    userID,
	}
}

// TopicCompletedEvent is emitted when a topic is newly marked complete.
type TopicCompletedEvent struct {
	BaseEvent
	UserID     string  `json:"user_id"`
	TopicIndex int     `json:"topic_index"`
	Percentage float64 `json:"percentage"`
}

// Payload implements Event interface.
func (e TopicCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"topic_index": e.TopicIndex,
		"percentage":  e.Percentage,
	}
}

// NewTopicCompletedEvent creates a new TopicCompletedEvent. When the path
// reaches 100% the event type is EventPathCompleted.
func NewTopicCompletedEvent(pathID, userID string, index int, pct float64) TopicCompletedEvent {
	t := EventTopicCompleted
	if pct >= 100 {
		t = EventPathCompleted
	}
	return TopicCompletedEvent{
		BaseEvent:  NewBaseEvent(t, pathID),
		UserID:     userID,
		TopicIndex: index,
		Percentage: pct,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Review Events
// ═══════════════════════════════════════════════════════════════════════════

// ReviewSubmittedEvent is emitted after a review insert or update commits.
type ReviewSubmittedEvent struct {
	BaseEvent
	ReviewID  string    `json:"review_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Sentiment Sentiment `json:"sentiment"`
	Updated   bool      `json:"updated"`
}

// Payload implements Event interface.
func (e ReviewSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"review_id": e.ReviewID,
		"user_id":   e.UserID,
		"rating":    e.Rating,
		"sentiment": string(e.Sentiment),
		"updated":   e.Updated,
	}
}

// NewReviewSubmittedEvent creates a new ReviewSubmittedEvent.
func NewReviewSubmittedEvent(pathID, reviewID, userID string, rating int, s Sentiment, updated bool) ReviewSubmittedEvent {
	return ReviewSubmittedEvent{
		BaseEvent: NewBaseEvent(EventReviewSubmitted, pathID),
		ReviewID:  reviewID,
		UserID:    userID,
		Rating:    rating,
		Sentiment: s,
		Updated:   updated,
	}
}

// ReviewVotedEvent is emitted when a review receives a new helpful vote.
type ReviewVotedEvent struct {
	BaseEvent
	VoterID      string `json:"voter_id"`
	HelpfulCount int    `json:"helpful_count"`
}

// Payload implements Event interface.
func (e ReviewVotedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"voter_id":      e.VoterID,
		"helpful_count": e.HelpfulCount,
	}
}

// NewReviewVotedEvent creates a new ReviewVotedEvent keyed by review id.
func NewReviewVotedEvent(reviewID, voterID string, count int) ReviewVotedEvent {
	return ReviewVotedEvent{
		BaseEvent:    NewBaseEvent(EventReviewVoted, reviewID),
		VoterID:      voterID,
		HelpfulCount: count,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events. Useful in tests and CLI tools.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
