package ingest

import (
	"sync"
)

// Serializer runs jobs one at a time per key, in submission order. Jobs for
// different keys run concurrently, bounded by the worker limit.
type Serializer struct {
	mu         sync.Mutex
	queues     map[int64]*keyQueue
	slots      chan struct{}
	maxPending int
	closed     bool
	wg         sync.WaitGroup
}

type keyQueue struct {
	jobs []func()
}

// NewSerializer creates a Serializer. workers bounds concurrent jobs across
// keys; maxPending bounds queued jobs per key. Non-positive values select
// the defaults.
func NewSerializer(workers, maxPending int) *Serializer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Serializer{
		queues:     make(map[int64]*keyQueue),
		slots:      make(chan struct{}, workers),
		maxPending: maxPending,
	}
}

// Submit queues job behind every job already submitted for key. It returns
// ErrQueueFull when key has maxPending jobs waiting and ErrClosed after Close.
func (s *Serializer) Submit(key int64, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if q, ok := s.queues[key]; ok {
		if len(q.jobs) >= s.maxPending {
			return ErrQueueFull
		}
		q.jobs = append(q.jobs, job)
		return nil
	}
	q := &keyQueue{jobs: []func(){job}}
	s.queues[key] = q
	s.wg.Add(1)
	go s.drain(key, q)
	return nil
}

// drain is the single consumer of one key's queue. It exits once the queue
// is empty; the next Submit for the key starts a new one.
func (s *Serializer) drain(key int64, q *keyQueue) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(q.jobs) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		s.mu.Unlock()

		s.slots <- struct{}{}
		job()
		<-s.slots
	}
}

// Pending returns the number of queued, not yet started jobs for key.
func (s *Serializer) Pending(key int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[key]; ok {
		return len(q.jobs)
	}
	return 0
}

// Close rejects new jobs and waits until every queued job has run.
func (s *Serializer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
