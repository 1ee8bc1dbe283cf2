package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/media"
)

const cleanupDeleteTimeout = 30 * time.Second

var errCleanupStopped = errors.New("media cleanup stopped")

// MediaCleanup deletes media objects that no material references anymore.
// Keys arrive through material_deleted and material_updated events and are
// removed by a small pool of goroutines off the request path.
type MediaCleanup struct {
	store   media.Store
	logger  *zap.Logger
	workers int

	mu      sync.RWMutex
	stopped bool
	queue   chan string
	wg      sync.WaitGroup
	onDone  func(key string, err error)
}

// NewMediaCleanup builds the worker. Start must be called before events flow.
func NewMediaCleanup(store media.Store, logger *zap.Logger, workers, buffer int) *MediaCleanup {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 128
	}
	return &MediaCleanup{
		store:   store,
		logger:  logger.Named("media_cleanup"),
		workers: workers,
		queue:   make(chan string, buffer),
	}
}

// OnDone installs a hook called after every delete attempt.
func (w *MediaCleanup) OnDone(fn func(key string, err error)) {
	w.onDone = fn
}

// Register subscribes to the events that orphan media.
func (w *MediaCleanup) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventMaterialDeleted, w.handle)
	dispatcher.Subscribe(events.EventMaterialUpdated, w.handle)
}

// Start launches the delete goroutines. They exit once Stop drains the queue.
func (w *MediaCleanup) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for key := range w.queue {
				w.delete(ctx, key)
			}
		}()
	}
}

// Stop refuses new keys, finishes queued ones and waits for the goroutines.
func (w *MediaCleanup) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *MediaCleanup) handle(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MaterialPayload)
	if !ok || len(payload.Assets) == 0 {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return errCleanupStopped
	}
	for i, key := range payload.Assets {
		select {
		case w.queue <- key:
		case <-ctx.Done():
			w.logger.Warn("orphaned media not queued",
				zap.String("event_id", event.ID),
				zap.Strings("keys", payload.Assets[i:]),
				zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
	return nil
}

func (w *MediaCleanup) delete(ctx context.Context, key string) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupDeleteTimeout)
	defer cancel()

	err := w.store.Delete(deleteCtx, key)
	if err != nil {
		w.logger.Warn("orphaned media not deleted", zap.String("key", key), zap.Error(err))
	} else {
		w.logger.Debug("orphaned media deleted", zap.String("key", key))
	}
	if w.onDone != nil {
		w.onDone(key, err)
	}
}
