// Package janitor is the periodic sweeper: it expires rooms and files past
// their deadline and reconciles the signaling hub's in-memory map with the
// catalog. An asynq.Scheduler drives the cadence by enqueuing one periodic
// sweep task; an asynq.Server/ServeMux processes it.
package janitor

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/websoft9/dropcode/internal/blobstore"
	"github.com/websoft9/dropcode/internal/catalog"
	"github.com/websoft9/dropcode/internal/signaling"
)

// TaskTypeSweep is the single periodic task type this package enqueues and
// handles.
const TaskTypeSweep = "janitor:sweep"

// Janitor owns the asynq scheduler (cron-like periodic enqueue) and server
// (task processing) plus the dependencies a sweep needs.
type Janitor struct {
	cat   *catalog.Catalog
	blobs blobstore.Store
	hub   *signaling.Hub

	interval    time.Duration
	orphanGrace time.Duration

	scheduler *asynq.Scheduler
	server    *asynq.Server
	client    *asynq.Client
}

// New builds a Janitor. redisOpt is the asynq Redis connection shared with
// any other background task producer/consumer in the process.
func New(cat *catalog.Catalog, blobs blobstore.Store, hub *signaling.Hub, redisOpt asynq.RedisClientOpt, interval, orphanGrace time.Duration) *Janitor {
	return &Janitor{
		cat:         cat,
		blobs:       blobs,
		hub:         hub,
		interval:    interval,
		orphanGrace: orphanGrace,
		scheduler:   asynq.NewScheduler(redisOpt, nil),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{"janitor": 1},
		}),
		client: asynq.NewClient(redisOpt),
	}
}

// Start registers the periodic sweep and begins processing it in
// background goroutines. Call Shutdown to stop both.
func (j *Janitor) Start() error {
	task := asynq.NewTask(TaskTypeSweep, nil, asynq.Queue("janitor"))
	cronSpec := "@every " + j.interval.String()
	if _, err := j.scheduler.Register(cronSpec, task); err != nil {
		return err
	}

	go func() {
		if err := j.scheduler.Run(); err != nil {
			log.Error().Err(err).Msg("janitor: scheduler stopped")
		}
	}()

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSweep, j.handleSweep)
	go func() {
		if err := j.server.Run(mux); err != nil {
			log.Error().Err(err).Msg("janitor: server stopped")
		}
	}()

	return nil
}

// Shutdown stops the scheduler, the task server, and closes the client.
func (j *Janitor) Shutdown() {
	j.scheduler.Shutdown()
	j.server.Shutdown()
	_ = j.client.Close()
}

// RunOnce runs one sweep synchronously, bypassing asynq. Used by tests.
func (j *Janitor) RunOnce(ctx context.Context) error {
	return j.sweep(ctx)
}

func (j *Janitor) handleSweep(ctx context.Context, _ *asynq.Task) error {
	return j.sweep(ctx)
}

// sweep runs the sweeper responsibilities in order: expire files, expire
// rooms, reconcile hub orphans. It then drains the orphan-key ledger and
// retries tombstoned files' blob deletes.
func (j *Janitor) sweep(ctx context.Context) error {
	now := time.Now().UTC()

	j.sweepExpiredFiles(ctx, now)
	j.sweepExpiredRooms(ctx, now)
	j.reconcileOrphanRooms()
	j.drainOrphanKeys(ctx)
	j.retryTombstoned(ctx)

	return nil
}

func (j *Janitor) sweepExpiredFiles(ctx context.Context, now time.Time) {
	files, err := j.cat.ListExpiredFiles(now)
	if err != nil {
		log.Error().Err(err).Msg("janitor: list expired files")
		return
	}
	for _, f := range files {
		if err := j.blobs.Delete(ctx, f.StorageKey); err != nil {
			log.Warn().Err(err).Str("fileId", f.ID).Msg("janitor: expired file blob delete failed, recording orphan")
			_ = j.cat.AddOrphanKey(f.StorageKey, "janitor: expiry delete failed")
		}
		if err := j.cat.DeleteFile(f.ID); err != nil {
			log.Error().Err(err).Str("fileId", f.ID).Msg("janitor: delete expired file row")
		}
	}
}

func (j *Janitor) sweepExpiredRooms(ctx context.Context, now time.Time) {
	rooms, err := j.cat.ListExpiredRooms(now)
	if err != nil {
		log.Error().Err(err).Msg("janitor: list expired rooms")
		return
	}
	for _, r := range rooms {
		if j.hub.HasHost(r.RoomCode) {
			j.hub.TearDown(r.RoomCode)
		}
		if err := j.cat.DeleteRoom(r.RoomCode); err != nil {
			log.Error().Err(err).Str("roomCode", r.RoomCode).Msg("janitor: delete expired room row")
		}
	}
}

// reconcileOrphanRooms tears down in-memory rooms whose catalog mirror row
// is missing once they have outlived the grace period.
func (j *Janitor) reconcileOrphanRooms() {
	for _, code := range j.hub.RoomCodes() {
		age, ok := j.hub.RoomAge(code)
		if !ok || age < j.orphanGrace {
			continue
		}
		if _, err := j.cat.GetRoom(code); err != nil {
			log.Info().Str("roomCode", code).Dur("age", age).Msg("janitor: tearing down orphaned in-memory room")
			j.hub.TearDown(code)
		}
	}
}

// drainOrphanKeys retries the blob delete for every key whose owning row is
// already gone.
func (j *Janitor) drainOrphanKeys(ctx context.Context) {
	keys, err := j.cat.ListOrphanKeys()
	if err != nil {
		log.Error().Err(err).Msg("janitor: list orphan keys")
		return
	}
	for _, k := range keys {
		if err := j.blobs.Delete(ctx, k.StorageKey); err != nil {
			log.Debug().Err(err).Str("storageKey", k.StorageKey).Msg("janitor: orphan key delete still failing")
			continue
		}
		if err := j.cat.ClearOrphanKey(k.StorageKey); err != nil {
			log.Error().Err(err).Str("storageKey", k.StorageKey).Msg("janitor: clear orphan key")
		}
	}
}

// retryTombstoned retries the blob delete for files kept as tombstones
// after a failed owner-delete, fully removing the row once the blob
// is finally gone.
func (j *Janitor) retryTombstoned(ctx context.Context) {
	files, err := j.cat.ListTombstoned()
	if err != nil {
		log.Error().Err(err).Msg("janitor: list tombstoned files")
		return
	}
	for _, f := range files {
		if err := j.blobs.Delete(ctx, f.StorageKey); err != nil {
			continue
		}
		if err := j.cat.DeleteFile(f.ID); err != nil {
			log.Error().Err(err).Str("fileId", f.ID).Msg("janitor: delete tombstoned file row")
		}
	}
}
