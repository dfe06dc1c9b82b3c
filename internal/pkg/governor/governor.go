package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"lime/internal/model/pipeline"
)

// Governor 资源调度器
// 管理 GPU/CPU 渲染容量：Acquire 按 FIFO 顺序授予租约，
// 任意时刻未释放租约的 cost 总和不超过配置容量
type Governor struct {
	capacity int64
	sem      *semaphore.Weighted
	inUse    atomic.Int64
}

// New 创建资源调度器
// capacity 为并发渲染容量（通常为每块 GPU 一到几个槽位）
func New(capacity int64) *Governor {
	if capacity <= 0 {
		capacity = 1
	}
	return &Governor{
		capacity: capacity,
		sem:      semaphore.NewWeighted(capacity),
	}
}

// Lease 资源租约
// Release 必须且只能调用一次；重复调用安全（no-op）
type Lease struct {
	g    *Governor
	cost int64
	once sync.Once
}

// Release 归还容量
func (l *Lease) Release() {
	l.once.Do(func() {
		l.g.inUse.Add(-l.cost)
		l.g.sem.Release(l.cost)
	})
}

// Cost 租约占用的容量
func (l *Lease) Cost() int64 { return l.cost }

// Acquire 申请 cost 个容量单位，阻塞直到可用或 ctx 结束
// ctx 超时/取消返回 ResourceTimeoutError
func (g *Governor) Acquire(ctx context.Context, cost int64) (*Lease, error) {
	if cost <= 0 {
		cost = 1
	}
	if cost > g.capacity {
		return nil, fmt.Errorf("cost %d exceeds governor capacity %d", cost, g.capacity)
	}

	if err := g.sem.Acquire(ctx, cost); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &pipeline.ResourceTimeoutError{
				Message: fmt.Sprintf("waiting for %d slot(s): %v", cost, err),
			}
		}
		return nil, err
	}

	g.inUse.Add(cost)
	return &Lease{g: g, cost: cost}, nil
}

// TryAcquire 非阻塞申请，拿不到立即返回 nil
func (g *Governor) TryAcquire(cost int64) *Lease {
	if cost <= 0 {
		cost = 1
	}
	if !g.sem.TryAcquire(cost) {
		return nil
	}
	g.inUse.Add(cost)
	return &Lease{g: g, cost: cost}
}

// Capacity 配置容量
func (g *Governor) Capacity() int64 { return g.capacity }

// InUse 当前已租出的容量
func (g *Governor) InUse() int64 { return g.inUse.Load() }
