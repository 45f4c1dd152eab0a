package http

import (
	"sync"
	"sync/atomic"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
)

// workItem is either a connection to serve or a shutdown pill.
type workItem struct {
	conn     *HTTPConnection
	shutdown bool
}

// workerPool is a fixed set of goroutines draining a FIFO work queue.
//
// The queue is a buffered channel: every send makes exactly one item
// available and every receive claims exactly one, so no worker ever observes
// an empty queue and no item is served twice. A worker that receives a
// shutdown pill returns without passing it on.
//
// Thread safety:
// submit and stop may be called from any goroutine, but stop must only be
// called once no further submit can happen, so that every pill is queued
// behind every connection.
type workerPool struct {
	queue   chan workItem
	workers int
	serve   func(*HTTPConnection)
	metrics metrics.HTTPMetrics

	wg   sync.WaitGroup
	busy atomic.Int32
}

func newWorkerPool(workers, depth int, serve func(*HTTPConnection), m metrics.HTTPMetrics) *workerPool {
	if m == nil {
		m = metrics.NewNoopHTTPMetrics()
	}
	return &workerPool{
		queue:   make(chan workItem, depth),
		workers: workers,
		serve:   serve,
		metrics: m,
	}
}

// start launches the workers.
func (p *workerPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	logger.Debug("HTTP worker pool started: workers=%d queue_depth=%d", p.workers, cap(p.queue))
}

// submit queues a connection, blocking while the queue is full.
func (p *workerPool) submit(c *HTTPConnection) {
	p.queue <- workItem{conn: c}
	p.metrics.SetQueueDepth(len(p.queue))
}

// stop queues one shutdown pill per worker. It blocks while the queue is full.
func (p *workerPool) stop() {
	for i := 0; i < p.workers; i++ {
		p.queue <- workItem{shutdown: true}
	}
}

// wait blocks until every worker has consumed its pill.
func (p *workerPool) wait() {
	p.wg.Wait()
}

// depth returns the number of items waiting in the queue.
func (p *workerPool) depth() int {
	return len(p.queue)
}

// busyWorkers returns the number of workers serving a connection.
func (p *workerPool) busyWorkers() int32 {
	return p.busy.Load()
}

func (p *workerPool) run(id int) {
	defer p.wg.Done()

	for item := range p.queue {
		if item.shutdown {
			logger.Debug("HTTP worker %d stopped", id)
			return
		}
		p.metrics.SetQueueDepth(len(p.queue))

		p.metrics.SetBusyWorkers(p.busy.Add(1))
		p.serve(item.conn)
		p.metrics.SetBusyWorkers(p.busy.Add(-1))
	}
}
