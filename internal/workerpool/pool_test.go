package workerpool

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_SameKeyOrdering(t *testing.T) {
	pool := New(4, 64, slog.Default())
	defer pool.Shutdown()

	var mu sync.Mutex
	var got []int

	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		ok := pool.Submit("conv-1", func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		if !ok {
			t.Fatalf("Submit failed at %d", i)
		}
	}
	wg.Wait()

	// 同 key 任务必须按提交顺序执行
	for i, v := range got {
		if v != i {
			t.Fatalf("Expected task %d at position %d, got %d", i, i, v)
		}
	}
}

func TestPool_DifferentKeysParallel(t *testing.T) {
	pool := New(2, 16, slog.Default())
	defer pool.Shutdown()

	// 找一个与 key-a 不同分片的 key
	other := ""
	for i := 0; i < 64; i++ {
		key := "key-" + string(rune('b'+i))
		if pool.shard(key) != pool.shard("key-a") {
			other = key
			break
		}
	}
	if other == "" {
		t.Fatal("Could not find a key on a different shard")
	}

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	// key-a 占住一个 worker
	pool.Submit("key-a", func() {
		close(started)
		<-release
	})
	<-started

	// 另一个分片的 key 不应被阻塞
	done := make(chan struct{})
	pool.Submit(other, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Task on a different shard was blocked")
	}
}

func TestPool_TrySubmitFullQueue(t *testing.T) {
	pool := New(1, 1, slog.Default())
	defer pool.Shutdown()

	block := make(chan struct{})
	pool.Submit("k", func() { <-block })

	// 队列容量 1：第一个排队成功，第二个必须立即失败
	time.Sleep(50 * time.Millisecond)
	pool.TrySubmit("k", func() {})
	if pool.TrySubmit("k", func() {}) {
		close(block)
		t.Fatal("Expected TrySubmit to fail on full queue")
	}
	close(block)
}

func TestPool_PanicRecovery(t *testing.T) {
	pool := New(1, 8, slog.Default())
	defer pool.Shutdown()

	pool.Submit("k", func() { panic("boom") })

	var ran int32
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Submit("k", func() {
		atomic.StoreInt32(&ran, 1)
		wg.Done()
	})
	wg.Wait()

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("Worker did not survive a panicking task")
	}
}
