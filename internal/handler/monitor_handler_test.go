package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
	"github.com/oddiant-techlabs/assessment-engine/internal/service"
)

type stubTestStore struct {
	test *model.Test
}

func (s *stubTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	if s.test == nil || s.test.ID != id {
		return nil, pgx.ErrNoRows
	}
	return s.test, nil
}

func (s *stubTestStore) ListPublished(_ context.Context) ([]model.Test, error) {
	if s.test == nil {
		return nil, nil
	}
	return []model.Test{*s.test}, nil
}

type stubSessionStore struct{}

func (s *stubSessionStore) Create(_ context.Context, _ *model.SessionRecord) error { return nil }

func (s *stubSessionStore) GetByTestAndCandidate(_ context.Context, _, _ uuid.UUID) (*model.SessionRecord, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubSessionStore) GetByID(_ context.Context, _ uuid.UUID) (*model.SessionRecord, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubSessionStore) Finish(_ context.Context, _ uuid.UUID, _ model.SessionOutcome, _ time.Time) error {
	return nil
}

func (s *stubSessionStore) ListByTest(_ context.Context, _ uuid.UUID) ([]model.SessionRecord, error) {
	return nil, nil
}

func monitorFixture(t *testing.T) (*MonitorHandler, *redis.Client, *model.Test) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	test := &model.Test{
		ID:              uuid.New(),
		Name:            "General Aptitude",
		DurationMinutes: 30,
		Status:          model.TestStatusPublished,
	}

	cfg := &config.Config{SessionTTL: time.Hour}
	testService := service.NewTestService(cfg, &stubTestStore{test: test}, rdb)
	sessionService := service.NewSessionService(cfg, testService, &stubSessionStore{}, rdb)
	h := NewMonitorHandler(rdb, testService, sessionService, zerolog.Nop())
	return h, rdb, test
}

func TestMonitorSSEDetachesOnClosedSubscription(t *testing.T) {
	h, rdb, test := monitorFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/staff/tests/"+test.ID.String()+"/monitor", nil)
	c.Params = gin.Params{{Key: "test_id", Value: test.ID.String()}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.MonitorTestSSE(c)
	}()

	// Let the handler subscribe, then tear the connection down underneath it.
	time.Sleep(100 * time.Millisecond)
	rdb.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not detach after the subscription channel closed")
	}
}

func TestMonitorSSERejectsUnknownTest(t *testing.T) {
	h, rdb, _ := monitorFixture(t)
	defer rdb.Close()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/staff/tests/x/monitor", nil)
	c.Params = gin.Params{{Key: "test_id", Value: uuid.New().String()}}

	h.MonitorTestSSE(c)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
