package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// NotifyWorker consumes notify_candidates_queue and writes each declared-
// result notification into the outbox table. The platform's mailer polls the
// outbox; this service never sends email itself.
type NotifyWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewNotifyWorker creates a new NotifyWorker.
func NewNotifyWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "notify_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *NotifyWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.NotifyCandidatesQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job model.NotificationJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed notification job")
		return
	}

	if err := w.writeOutbox(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Str("candidate_id", job.CandidateID.String()).
			Msg("Outbox write error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.NotifyCandidatesQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *NotifyWorker) writeOutbox(ctx context.Context, job *model.NotificationJob) error {
	// One outbox row per (result, kind): a redelivered job cannot double-mail.
	_, err := w.pool.Exec(ctx,
		`INSERT INTO notification_outbox (candidate_id, test_id, result_id, kind, queued_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (result_id, kind) DO NOTHING`,
		job.CandidateID, job.TestID, job.ResultID, job.Kind, job.QueuedAt,
	)
	return err
}

func (w *NotifyWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.NotifyCandidatesQueue).Result()
		if err != nil {
			break
		}

		var job model.NotificationJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.writeOutbox(ctx, &job); err != nil {
			w.log.Error().Err(err).Msg("Drain outbox error")
			w.rdb.RPush(ctx, config.WorkerKey.NotifyCandidatesQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
