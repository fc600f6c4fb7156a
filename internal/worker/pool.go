package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
)

const (
	errorBackoff        = time.Second
	queueReportInterval = 15 * time.Second
)

// Handler processes one job id.
type Handler interface {
	Handle(ctx context.Context, jobID string) error
}

// Options size the pool.
type Options struct {
	Workers     int
	PollTimeout time.Duration
	JobTimeout  time.Duration
}

// Pool pulls job ids from the queue and hands them to the handler, one job per worker at a time.
type Pool struct {
	queue   repository.QueueRepository
	handler Handler
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPool(queue repository.QueueRepository, handler Handler, opts Options, m *metrics.Metrics, logger *zap.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pool{
		queue:    queue,
		handler:  handler,
		opts:     opts,
		metrics:  m,
		logger:   logger.Named("worker_pool"),
		stopChan: make(chan struct{}),
	}
}

// Start launches the workers. They run until Stop is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.reportQueueDepth(ctx)
	p.logger.Info("worker pool started", zap.Int("workers", p.opts.Workers))
}

// Stop lets in-flight jobs finish and waits for every worker to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) stopped(ctx context.Context) bool {
	select {
	case <-p.stopChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for !p.stopped(ctx) {
		kind, jobID, err := p.queue.Pop(ctx, p.opts.PollTimeout, entity.JobKinds...)
		if errors.Is(err, repository.ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to pop job", zap.Error(err))
			p.sleep(ctx, errorBackoff)
			continue
		}
		p.process(ctx, log, kind, jobID)
	}
}

func (p *Pool) process(ctx context.Context, log *zap.Logger, kind entity.JobKind, jobID string) {
	jctx := ctx
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}
	if err := p.handler.Handle(jctx, jobID); err != nil {
		// The orchestrator has already recorded the failure on the job.
		log.Warn("job returned error", zap.String("job_id", jobID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stopChan:
	case <-ctx.Done():
	}
}

func (p *Pool) reportQueueDepth(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(queueReportInterval)
	defer ticker.Stop()
	for {
		p.observeQueues(ctx)
		select {
		case <-ticker.C:
		case <-p.stopChan:
			p.observeQueues(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) observeQueues(ctx context.Context) {
	for _, kind := range entity.JobKinds {
		n, err := p.queue.Size(ctx, kind)
		if err != nil {
			p.logger.Debug("failed to read queue size", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		p.metrics.JobsInQueue.WithLabelValues(string(kind)).Set(float64(n))
	}
}
