package scheduler

import (
	"context"
	"sync"
	"time"

	"advisor-backend/internal/instruction/usecase"

	"go.uber.org/zap"
)

// DefaultInterval is how often the instruction check runs
const DefaultInterval = 2 * time.Minute

// InstructionScheduler runs the instruction check on a fixed interval
type InstructionScheduler struct {
	checker  usecase.Checker
	interval time.Duration
	log      *zap.Logger

	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

func NewInstructionScheduler(checker usecase.Checker, interval time.Duration, log *zap.Logger) *InstructionScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InstructionScheduler{
		checker:  checker,
		interval: interval,
		log:      log.Named("scheduler"),
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the scheduler loop
func (s *InstructionScheduler) Start() {
	s.log.Info("starting instruction scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Run immediately on start
		s.runOnce()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				s.log.Info("scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels an in-flight pass and waits for the loop to exit
func (s *InstructionScheduler) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
		s.cancel()
	})
	s.wg.Wait()
}

func (s *InstructionScheduler) runOnce() {
	logs, ran := s.checker.TryRunPass(s.ctx)
	if !ran {
		return
	}
	for _, line := range logs {
		s.log.Info(line)
	}
}
