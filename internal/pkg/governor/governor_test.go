package governor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"lime/internal/model/pipeline"
)

func TestGovernor_Acquire(t *testing.T) {
	Convey("Governor.Acquire 基本行为", t, func() {
		g := New(2)

		Convey("容量内的申请立即成功", func() {
			lease, err := g.Acquire(context.Background(), 1)
			So(err, ShouldBeNil)
			So(lease, ShouldNotBeNil)
			So(g.InUse(), ShouldEqual, 1)
			lease.Release()
			So(g.InUse(), ShouldEqual, 0)
		})

		Convey("cost 超过总容量直接报错", func() {
			lease, err := g.Acquire(context.Background(), 3)
			So(err, ShouldNotBeNil)
			So(lease, ShouldBeNil)
		})

		Convey("cost 为 0 或负数按 1 处理", func() {
			lease, err := g.Acquire(context.Background(), 0)
			So(err, ShouldBeNil)
			So(lease.Cost(), ShouldEqual, 1)
			lease.Release()
		})

		Convey("容量耗尽时等待，超时返回 ResourceTimeoutError", func() {
			l1, err := g.Acquire(context.Background(), 2)
			So(err, ShouldBeNil)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			l2, err := g.Acquire(ctx, 1)
			So(l2, ShouldBeNil)
			var rte *pipeline.ResourceTimeoutError
			So(errors.As(err, &rte), ShouldBeTrue)

			l1.Release()
		})

		Convey("Release 重复调用是 no-op", func() {
			lease, err := g.Acquire(context.Background(), 2)
			So(err, ShouldBeNil)
			lease.Release()
			lease.Release()
			So(g.InUse(), ShouldEqual, 0)

			// 容量确实只归还了一次
			l2, err := g.Acquire(context.Background(), 2)
			So(err, ShouldBeNil)
			l2.Release()
		})
	})
}

func TestGovernor_TryAcquire(t *testing.T) {
	Convey("Governor.TryAcquire 非阻塞申请", t, func() {
		g := New(1)

		l1 := g.TryAcquire(1)
		So(l1, ShouldNotBeNil)

		So(g.TryAcquire(1), ShouldBeNil)

		l1.Release()
		l2 := g.TryAcquire(1)
		So(l2, ShouldNotBeNil)
		l2.Release()
	})
}

// 属性测试：随机并发 acquire/release 下，已租容量总和never超过配置容量
func TestGovernor_CapacityInvariant(t *testing.T) {
	Convey("并发场景下租约总量不超过容量", t, func() {
		const capacity = 4
		const workers = 32

		g := New(capacity)
		var outstanding atomic.Int64
		var maxSeen atomic.Int64
		var wg sync.WaitGroup

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				for i := 0; i < 50; i++ {
					cost := int64(rng.Intn(capacity) + 1)
					lease, err := g.Acquire(context.Background(), cost)
					if err != nil {
						continue
					}
					cur := outstanding.Add(cost)
					for {
						prev := maxSeen.Load()
						if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
							break
						}
					}
					time.Sleep(time.Duration(rng.Intn(300)) * time.Microsecond)
					outstanding.Add(-cost)
					lease.Release()
				}
			}(int64(w))
		}
		wg.Wait()

		So(maxSeen.Load(), ShouldBeLessThanOrEqualTo, capacity)
		So(g.InUse(), ShouldEqual, 0)
	})
}

// 容量为 1 时，任意时刻最多一个租约在外
func TestGovernor_SingleSlotSerialization(t *testing.T) {
	Convey("容量=1 时渲染互斥", t, func() {
		g := New(1)
		var concurrent atomic.Int64
		var violated atomic.Bool
		var wg sync.WaitGroup

		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lease, err := g.Acquire(context.Background(), 1)
				if err != nil {
					return
				}
				defer lease.Release()
				if concurrent.Add(1) > 1 {
					violated.Store(true)
				}
				time.Sleep(5 * time.Millisecond)
				concurrent.Add(-1)
			}()
		}
		wg.Wait()

		So(violated.Load(), ShouldBeFalse)
	})
}

// FIFO：先排队的请求先拿到槽位
func TestGovernor_FIFOOrder(t *testing.T) {
	Convey("租约按申请顺序授予", t, func() {
		g := New(1)
		first, err := g.Acquire(context.Background(), 1)
		So(err, ShouldBeNil)

		var order []int
		var mu sync.Mutex
		var wg sync.WaitGroup

		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				lease, err := g.Acquire(context.Background(), 1)
				if err != nil {
					return
				}
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				lease.Release()
			}(i)
			// 保证排队顺序与编号一致
			time.Sleep(20 * time.Millisecond)
		}

		first.Release()
		wg.Wait()

		So(order, ShouldResemble, []int{0, 1, 2, 3})
	})
}
