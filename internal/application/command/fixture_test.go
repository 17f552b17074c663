package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/persistence/memory"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type stubGenerator struct {
	mu     sync.Mutex
	calls  int
	topics []coursepath.GeneratedTopic
	err    error
	delay  time.Duration
}

func (g *stubGenerator) GenerateTopics(ctx context.Context, _ string, _ shared.Difficulty) ([]coursepath.GeneratedTopic, error) {
	g.mu.Lock()
	g.calls++
	topics, err, delay := g.topics, g.err, g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return topics, err
}

func (g *stubGenerator) set(topics []coursepath.GeneratedTopic, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topics, g.err = topics, err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func sampleTopics(n int) []coursepath.GeneratedTopic {
	out := make([]coursepath.GeneratedTopic, n)
	for i := range out {
		out[i] = coursepath.GeneratedTopic{Title: fmt.Sprintf("Topic %d", i+1)}
	}
	return out
}

// keywordClassifier: "great" is positive, "awful" negative, "boom" fails.
type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, text string) (review.Classification, error) {
	switch {
	case strings.Contains(text, "boom"):
		return review.Classification{}, fmt.Errorf("classifier down")
	case strings.Contains(text, "great"):
		return review.Classification{Label: shared.SentimentPositive, Score: 0.9}, nil
	case strings.Contains(text, "awful"):
		return review.Classification{Label: shared.SentimentNegative, Score: -0.8}, nil
	default:
		return review.Neutral(), nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type fixture struct {
	store  *memory.Store
	gen    *stubGenerator
	events *recordingPublisher
	now    time.Time

	generate  *GenerateCoursePathHandler
	enroll    *EnrollmentHandler
	complete  *MarkTopicCompleteHandler
	review    *SubmitReviewHandler
	helpful   *MarkReviewHelpfulHandler
	catalogue *CatalogueHandler
	reconcile *ReconcileAggregatesHandler
	expire    *ExpireStaleDraftsHandler
	register  *RegisterUserHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:  store,
		gen:    &stubGenerator{topics: sampleTopics(4)},
		events: &recordingPublisher{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	log := logger.Nop()

	f.generate = NewGenerateCoursePathHandler(store.CoursePaths(), f.gen, nil, f.events, log,
		GenerateCoursePathHandlerConfig{Timeout: time.Second, Clock: clock})
	f.enroll = NewEnrollmentHandler(store.CoursePaths(), store.Enrollments(), f.events, log)
	f.complete = NewMarkTopicCompleteHandler(store.CoursePaths(), store.Enrollments(), store.Progress(), f.events, log, 5, clock)

	reviewCfg := DefaultSubmitReviewHandlerConfig()
	reviewCfg.ConflictRetries = 10
	reviewCfg.Clock = clock
	f.review = NewSubmitReviewHandler(store.CoursePaths(), store.Enrollments(), store.Reviews(), store.Aggregates(),
		keywordClassifier{}, f.events, log, reviewCfg)

	f.helpful = NewMarkReviewHelpfulHandler(store.Reviews(), f.events, log)
	f.catalogue = NewCatalogueHandler(store.CoursePaths(), store.LearningPaths(), f.events, log, 3, nil, clock)
	f.reconcile = NewReconcileAggregatesHandler(store.CoursePaths(), store.Aggregates(), f.events, log, 2)
	f.expire = NewExpireStaleDraftsHandler(store.CoursePaths(), f.events, log, clock)
	f.register = NewRegisterUserHandler(store.Users(), log, clock)
	return f
}

// readyPath generates a READY path owned by creator.
func (f *fixture) readyPath(t *testing.T, creator string) *coursepath.CoursePath {
	t.Helper()
	res, err := f.generate.Handle(context.Background(), GenerateCoursePathCommand{
		CreatorID:  creator,
		Subject:    "Python Programming",
		Difficulty: "beginner",
	})
	require.NoError(t, err)
	require.Equal(t, coursepath.StatusReady, res.Status)
	return res.CoursePath
}

func (f *fixture) path(t *testing.T, id string) *coursepath.CoursePath {
	t.Helper()
	p, err := f.store.CoursePaths().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) mustEnroll(t *testing.T, userID, pathID string) {
	t.Helper()
	_, err := f.enroll.Enroll(context.Background(), EnrollCommand{UserID: userID, CoursePathID: pathID})
	require.NoError(t, err)
}
