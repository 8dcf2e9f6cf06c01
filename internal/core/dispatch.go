package core

import (
	"fmt"
	"sync"
)

// jobQueueDepth bounds how many submitted operations may wait for a
// dispatcher goroutine.
const jobQueueDepth = 128

// Job is one queued asynchronous operation. Execute runs on a dispatcher
// goroutine; Done is then invoked exactly once with its result. The Job owns
// copies of every input it needs, so no caller-side buffer has to outlive
// the submission.
type Job struct {
	Execute func() Response
	Done    func(Response)
}

// Dispatcher owns the goroutines that complete asynchronous container
// operations. Each job is consumed off the queue by exactly one worker, which
// gives the exactly-once completion guarantee without any per-job bookkeeping.
type Dispatcher struct {
	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines consuming the job queue.
func NewDispatcher(workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{jobs: make(chan Job, jobQueueDepth)}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.loop()
	}
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for job := range d.jobs {
		job.Done(job.Execute())
	}
}

// Submit enqueues a job. It never blocks on job execution, only on queue
// space. Submitting to a closed dispatcher is a checked error; the job's
// callback is then never invoked.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("dispatcher is closed")
	}
	d.jobs <- job
	return nil
}

// Close stops accepting jobs, drains the queue, and waits for the workers
// to exit. Jobs already submitted still complete, callbacks included.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
