// Package scheduler runs periodic tasks keyed by feed id. Each feed owns at
// most one live ticker; starting a feed again replaces its previous handle.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is invoked once per tick. The context is cancelled only when the
// scheduler is closed, never by Stop.
type Task func(ctx context.Context)

type handle struct {
	seq      uint64
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// Scheduler owns the mapping from feed id to its cancellation handle.
type Scheduler struct {
	mu     sync.Mutex
	feeds  map[string]*handle
	seq    uint64
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
	logger *zap.Logger
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		feeds:  make(map[string]*handle),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("scheduler"),
	}
}

// Start cancels any handle registered for feedID and starts invoking task
// every interval. Invocations run on their own goroutine, so a slow task does
// not delay the next tick and rounds may overlap.
func (s *Scheduler) Start(feedID string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: feed %q: interval must be positive, got %s", feedID, interval)
	}
	if task == nil {
		return fmt.Errorf("scheduler: feed %q: nil task", feedID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: closed")
	}
	prev := s.feeds[feedID]
	s.seq++
	h := &handle{
		seq:      s.seq,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.feeds[feedID] = h
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		s.logger.Debug("replaced feed handle", zap.String("feed", feedID), zap.Duration("previous", prev.interval))
	}

	go s.loop(feedID, h, task)
	s.logger.Debug("started feed", zap.String("feed", feedID), zap.Duration("interval", interval))
	return nil
}

// Stop cancels the timer for feedID. Task invocations already running are not
// interrupted and may still apply their results afterwards. It reports
// whether a handle was registered.
func (s *Scheduler) Stop(feedID string) bool {
	s.mu.Lock()
	h, ok := s.feeds[feedID]
	if ok {
		delete(s.feeds, feedID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel()
	s.logger.Debug("stopped feed", zap.String("feed", feedID))
	return true
}

// Running reports whether feedID has a live handle.
func (s *Scheduler) Running(feedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.feeds[feedID]
	return ok
}

// Interval returns the tick interval of a live feed.
func (s *Scheduler) Interval(feedID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.feeds[feedID]
	if !ok {
		return 0, false
	}
	return h.interval, true
}

// Feeds returns the ids of all live feeds, sorted.
func (s *Scheduler) Feeds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.feeds))
	for id := range s.feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every feed, cancels the task context and waits for running
// task invocations to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	feeds := s.feeds
	s.feeds = make(map[string]*handle)
	s.mu.Unlock()

	for _, h := range feeds {
		h.cancel()
	}
	s.cancel()
	s.tasks.Wait()
}

func (s *Scheduler) loop(feedID string, h *handle, task Task) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case <-h.stop:
				return
			default:
			}
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.tasks.Add(1)
			s.mu.Unlock()
			go func() {
				defer s.tasks.Done()
				s.run(feedID, h.seq, task)
			}()
		case <-h.stop:
			return
		}
	}
}

func (s *Scheduler) run(feedID string, seq uint64, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("feed task panicked", zap.String("feed", feedID), zap.Uint64("handle", seq), zap.Any("panic", r))
		}
	}()
	task(s.ctx)
}

// cancel closes the stop channel and waits for the ticker loop to exit, so no
// tick fires after it returns.
func (h *handle) cancel() {
	close(h.stop)
	<-h.done
}
