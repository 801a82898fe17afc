package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatgate/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExchangeStore はユーザー発言→assistant返信の順で2行を書き込みます。
type ExchangeStore interface {
	InsertExchange(ctx context.Context, roomID, userID uint, prompt, reply string) error
}

// Exchange は1回のディスパッチで永続化する発言と返信の組です。
type Exchange struct {
	ID         uuid.UUID
	RoomID     uint
	UserID     uint
	Prompt     string
	Reply      string
	EnqueuedAt time.Time
}

type Stats struct {
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Enqueued  int64 `json:"enqueued"`
	Persisted int64 `json:"persisted"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Writer は上限付きキューを1つのゴルーチンで消化し、レスポンス後にメッセージを書き込みます。
// 書き込みの失敗はログとカウンタにのみ反映され、呼び出し元には返らない
type Writer struct {
	store          ExchangeStore
	queue          chan Exchange
	enqueueTimeout time.Duration
	writeTimeout   time.Duration
	logger         *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	done    chan struct{}

	enqueued  atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewWriter(store ExchangeStore, config models.PersistenceConfig, logger *zap.Logger) *Writer {
	size := config.QueueSize
	if size <= 0 {
		size = 1
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Writer{
		store:          store,
		queue:          make(chan Exchange, size),
		enqueueTimeout: config.EnqueueTimeout,
		writeTimeout:   writeTimeout,
		logger:         logger.With(zap.String("component", "MessageWriter")),
		done:           make(chan struct{}),
	}
}

// Start は書き込み用ゴルーチンを起動します。複数回呼んでも1つしか起動しない
func (w *Writer) Start() {
	w.started.Do(func() {
		w.logger.Info("Starting message writer", zap.Int("capacity", cap(w.queue)))
		go w.run()
	})
}

// Enqueue はキューが空くまで最大enqueueTimeout待ち、それでも満杯なら ErrQueueFull を返します。
func (w *Writer) Enqueue(ex Exchange) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return ErrWriterClosed
	}
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	if ex.EnqueuedAt.IsZero() {
		ex.EnqueuedAt = time.Now()
	}

	select {
	case w.queue <- ex:
		w.enqueued.Add(1)
		return nil
	default:
	}
	if w.enqueueTimeout <= 0 {
		w.dropped.Add(1)
		return ErrQueueFull
	}

	timer := time.NewTimer(w.enqueueTimeout)
	defer timer.Stop()
	select {
	case w.queue <- ex:
		w.enqueued.Add(1)
		return nil
	case <-timer.C:
		w.dropped.Add(1)
		return ErrQueueFull
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for ex := range w.queue {
		w.persist(ex)
	}
	w.logger.Info("Message writer stopped", zap.Any("stats", w.Stats()))
}

func (w *Writer) persist(ex Exchange) {
	logger := w.logger.With(
		zap.String("exchange_id", ex.ID.String()),
		zap.Uint("room_id", ex.RoomID),
		zap.Uint("user_id", ex.UserID),
	)
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			logger.Error("Message writer panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if err := w.store.InsertExchange(ctx, ex.RoomID, ex.UserID, ex.Prompt, ex.Reply); err != nil {
		w.failed.Add(1)
		logger.Error("Failed to persist messages", zap.Error(err))
		return
	}
	w.persisted.Add(1)
	logger.Debug("Messages persisted", zap.Duration("lag", time.Since(ex.EnqueuedAt)))
}

// Close は新規受付を止め、キューに残った分を書き終えるまで待ちます。
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	// 未起動のまま閉じた場合もキューを消化する
	w.Start()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain message queue: %w", ctx.Err())
	}
}

func (w *Writer) Stats() Stats {
	return Stats{
		Queued:    len(w.queue),
		Capacity:  cap(w.queue),
		Enqueued:  w.enqueued.Load(),
		Persisted: w.persisted.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
	}
}
