package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MirrorJob copies one newly ingested record into the vector index
type MirrorJob struct {
	Kind  string
	Key   string
	Owner string
	Text  string
}

type VectorIndex interface {
	UpsertRecord(ctx context.Context, kind, naturalKey, ownerEmail, text string) error
}

// MirrorWorker indexes records in the background so ingestion never waits on
// the vector index.
type MirrorWorker struct {
	index       VectorIndex
	jobQueue    chan MirrorJob
	workerWg    sync.WaitGroup
	workerCount int
	timeout     time.Duration
	started     bool
	stopped     bool
	mu          sync.Mutex
	log         *zap.Logger
}

func NewMirrorWorker(index VectorIndex, workerCount int, log *zap.Logger) *MirrorWorker {
	if workerCount <= 0 {
		workerCount = 3
	}

	return &MirrorWorker{
		index:       index,
		jobQueue:    make(chan MirrorJob, 500),
		workerCount: workerCount,
		timeout:     30 * time.Second,
		log:         log.Named("mirror"),
	}
}

func (w *MirrorWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}

	for i := 0; i < w.workerCount; i++ {
		w.workerWg.Add(1)
		go w.worker()
	}
	w.started = true
	w.log.Info("workers started", zap.Int("count", w.workerCount))
}

// Stop drains the queue and waits for the workers
func (w *MirrorWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.jobQueue)
	w.mu.Unlock()

	w.workerWg.Wait()
	w.log.Info("workers stopped")
}

func (w *MirrorWorker) worker() {
	defer w.workerWg.Done()

	for job := range w.jobQueue {
		w.processJob(job)
	}
}

func (w *MirrorWorker) processJob(job MirrorJob) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.index.UpsertRecord(ctx, job.Kind, job.Key, job.Owner, job.Text); err != nil {
		w.log.Warn("mirror upsert failed", zap.String("kind", job.Kind), zap.String("key", job.Key), zap.Error(err))
	}
}

// Enqueue adds a job without blocking. Returns false when the queue is full
// or the worker is stopped.
func (w *MirrorWorker) Enqueue(job MirrorJob) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}
	select {
	case w.jobQueue <- job:
		return true
	default:
		return false
	}
}
