package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// ErrTestNotAvailable is returned for tests that are missing or unpublished.
var ErrTestNotAvailable = errors.New("test is not available")

// TestStore loads test definitions from durable storage.
type TestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListPublished(ctx context.Context) ([]model.Test, error)
}

// TestService serves test definitions and keeps the Redis hot copies (payload,
// duration) warm so the exam path never waits on Postgres.
type TestService struct {
	cfg   *config.Config
	tests TestStore
	rdb   *redis.Client
}

// NewTestService creates a new TestService.
func NewTestService(cfg *config.Config, tests TestStore, rdb *redis.Client) *TestService {
	return &TestService{cfg: cfg, tests: tests, rdb: rdb}
}

// GetTest loads a full test definition, answer key included. Staff only.
func (s *TestService) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return s.tests.GetByID(ctx, id)
}

// GetPublished loads a published test for the candidate flow, validating its
// structure before handing it to the session engine.
func (s *TestService) GetPublished(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusPublished {
		return nil, ErrTestNotAvailable
	}
	if err := test.Validate(); err != nil {
		return nil, fmt.Errorf("test %s failed validation: %w", id, err)
	}
	return test, nil
}

// GetPayload returns the candidate-facing payload for a test, from cache when
// possible. A miss loads from storage and rewarms the cache.
func (s *TestService) GetPayload(ctx context.Context, testID uuid.UUID) (*model.TestPayload, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.TestPayloadKey(testID.String())).Result()
	if err == nil {
		payload := &model.TestPayload{}
		if err := json.Unmarshal([]byte(raw), payload); err == nil {
			return payload, nil
		}
		log.Warn().Str("test_id", testID.String()).Msg("corrupt payload cache, rewarming")
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("payload cache read: %w", err)
	}

	test, err := s.GetPublished(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := s.WarmTestCache(ctx, test); err != nil {
		log.Error().Err(err).Str("test_id", testID.String()).Msg("failed to warm test cache")
	}
	return model.PayloadFor(test), nil
}

// GetDurationSeconds returns the test duration in seconds from the cache,
// falling back to storage on a miss.
func (s *TestService) GetDurationSeconds(ctx context.Context, testID uuid.UUID) (int, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.TestDurationKey(testID.String())).Result()
	if err == nil {
		minutes, convErr := strconv.Atoi(raw)
		if convErr == nil {
			return minutes * 60, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("duration cache read: %w", err)
	}

	test, err := s.GetPublished(ctx, testID)
	if err != nil {
		return 0, err
	}
	return test.DurationMinutes * 60, nil
}

// WarmTestCache writes the candidate payload and the duration for one test
// into Redis. The keys carry no TTL — they are refreshed on publish and at
// startup.
func (s *TestService) WarmTestCache(ctx context.Context, test *model.Test) error {
	payload, err := json.Marshal(model.PayloadFor(test))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	id := test.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestPayloadKey(id), payload, 0)
	pipe.Set(ctx, config.CacheKey.TestDurationKey(id), strconv.Itoa(test.DurationMinutes), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm cache for test %s: %w", id, err)
	}

	log.Info().
		Str("test_id", id).
		Int("questions", test.QuestionCount()).
		Msg("test cache warmed")
	return nil
}

// PrewarmAllCaches warms every published test at startup. A single broken
// test must not hold back the rest.
func (s *TestService) PrewarmAllCaches(ctx context.Context) {
	tests, err := s.tests.ListPublished(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list published tests for prewarm")
		return
	}

	warmed := 0
	for _, t := range tests {
		full, err := s.tests.GetByID(ctx, t.ID)
		if err != nil {
			log.Error().Err(err).Str("test_id", t.ID.String()).Msg("prewarm: load failed")
			continue
		}
		if err := full.Validate(); err != nil {
			log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("prewarm: skipping invalid test")
			continue
		}
		if err := s.WarmTestCache(ctx, full); err != nil {
			log.Error().Err(err).Str("test_id", t.ID.String()).Msg("prewarm: cache write failed")
			continue
		}
		warmed++
	}
	log.Info().Int("tests", warmed).Msg("test cache prewarm complete")
}
