package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler runs named jobs on fixed intervals with an explicit start/stop
// lifecycle. Each job holds a run flag: if a run overlaps the next tick, the
// tick is skipped instead of starting a second concurrent run.
type Scheduler struct {
	jobs   []*job
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error

	running sync.Mutex

	mu      sync.Mutex
	lastRun time.Time
}

func (j *job) setLastRun(t time.Time) {
	j.mu.Lock()
	j.lastRun = t
	j.mu.Unlock()
}

func (j *job) getLastRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("scheduler: Add after Start")
	}
	s.jobs = append(s.jobs, &job{name: name, interval: interval, run: run})
}

// Start launches one goroutine per job. Jobs fire after their first full
// interval, never immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	log.Printf("[INFO] scheduler: started %d jobs", len(s.jobs))
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	if !j.running.TryLock() {
		log.Printf("[WARN] scheduler: job %s still running, skipping tick", j.name)
		return
	}
	defer j.running.Unlock()

	started := time.Now().UTC()
	if err := j.run(ctx); err != nil {
		log.Printf("[ERROR] scheduler: job %s failed after %s: %v", j.name, time.Since(started), err)
		return
	}
	j.setLastRun(started)
}

// LastRun reports the start time of the named job's last successful run, for
// operational introspection. Zero if it has not completed a run.
func (s *Scheduler) LastRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j.getLastRun()
		}
	}
	return time.Time{}
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	log.Printf("[INFO] scheduler: stopped")
}
