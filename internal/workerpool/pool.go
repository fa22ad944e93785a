package workerpool

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
)

// Task 定义任务函数类型
type Task func()

// Pool 按 key 分片的 Worker Pool
// 相同 key 的任务路由到同一个 worker，保证同 key 任务按提交顺序执行；
// 不同 key 的任务并行执行
type Pool struct {
	workers int
	queues  []chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// New 创建一个新的 Worker Pool
// workers: worker 数量；queueSize: 每个 worker 的任务队列大小
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 16
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers: workers,
		queues:  make([]chan Task, workers),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}

	for i := 0; i < workers; i++ {
		pool.queues[i] = make(chan Task, queueSize)
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		"workers", workers,
		"queue_size", queueSize)

	return pool
}

// worker 工作协程
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queues[id]:
			if !ok {
				return
			}

			// 执行任务，捕获 panic
			func() {
				defer func() {
					if r := recover(); r != nil {
						p.logger.Error("Task panic recovered",
							"worker_id", id,
							"panic", r)
					}
				}()
				task()
			}()
		}
	}
}

// Submit 按 key 提交任务
// 如果对应 worker 的队列满了，会阻塞直到有空位或 pool 被关闭
func (p *Pool) Submit(key string, task Task) bool {
	q := p.queues[p.shard(key)]
	select {
	case <-p.ctx.Done():
		return false
	case q <- task:
		return true
	}
}

// TrySubmit 尝试按 key 提交任务，队列满了立即返回 false
func (p *Pool) TrySubmit(key string, task Task) bool {
	q := p.queues[p.shard(key)]
	select {
	case <-p.ctx.Done():
		return false
	case q <- task:
		return true
	default:
		return false
	}
}

func (p *Pool) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.workers))
}

// Shutdown 优雅关闭 Worker Pool，等待所有任务完成
func (p *Pool) Shutdown() {
	p.cancel()
	for _, q := range p.queues {
		close(q)
	}
	p.wg.Wait()
	p.logger.Info("Worker pool shutdown completed")
}
