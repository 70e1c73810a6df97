package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// SweepInterval is how often the sweeper scans for stale sessions.
const SweepInterval = 10 * time.Minute

// SweepWorker marks stale attempts abandoned. A session row still IN_PROGRESS
// after its Redis snapshot expired belongs to a candidate who walked away:
// the exam window is long gone and nothing will ever submit it. Rows whose
// snapshot still exists are left alone — the candidate may resume any time.
type SweepWorker struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	maxAge time.Duration
	log    zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker. maxAge should match the Redis
// session TTL so the sweep never races a live snapshot.
func NewSweepWorker(pool *pgxpool.Pool, rdb *redis.Client, maxAge time.Duration, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		pool:   pool,
		rdb:    rdb,
		maxAge: maxAge,
		log:    log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start begins the periodic sweep loop. Call in a goroutine.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", SweepInterval).Msg("Worker started")

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.maxAge)

	rows, err := w.pool.Query(ctx,
		`SELECT id, test_id, candidate_id FROM assessment_sessions
		 WHERE outcome = $1 AND started_at < $2`,
		model.OutcomeInProgress, cutoff,
	)
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep query error")
		return
	}
	defer rows.Close()

	type stale struct {
		id, testID, candidateID uuid.UUID
	}
	var candidates []stale
	for rows.Next() {
		var s stale
		if err := rows.Scan(&s.id, &s.testID, &s.candidateID); err != nil {
			w.log.Error().Err(err).Msg("Sweep scan error")
			return
		}
		candidates = append(candidates, s)
	}
	if rows.Err() != nil {
		w.log.Error().Err(rows.Err()).Msg("Sweep rows error")
		return
	}

	swept := 0
	for _, s := range candidates {
		// A surviving snapshot means the attempt is resumable; skip it.
		key := config.CacheKey.SessionStateKey(s.testID.String(), s.candidateID.String())
		exists, err := w.rdb.Exists(ctx, key).Result()
		if err != nil {
			w.log.Error().Err(err).Msg("Sweep redis error")
			return
		}
		if exists > 0 {
			continue
		}

		// Guarded update; a concurrent submit wins.
		tag, err := w.pool.Exec(ctx,
			`UPDATE assessment_sessions
			 SET outcome = $1, finished_at = $2
			 WHERE id = $3 AND outcome = $4`,
			model.OutcomeAbandoned, time.Now(), s.id, model.OutcomeInProgress,
		)
		if err != nil {
			w.log.Error().Err(err).
				Str("session_id", s.id.String()).
				Msg("Sweep update error")
			continue
		}
		if tag.RowsAffected() > 0 {
			swept++
		}
	}

	if swept > 0 {
		w.log.Info().Int("count", swept).Msg("Marked stale sessions abandoned")
	}
}
