package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	executed  *int32
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	if p := NewPool(5); p.Workers() != 5 {
		t.Errorf("expected 5 workers, got %d", p.Workers())
	}
	if p := NewPool(0); p.Workers() != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p.Workers())
	}
	if p := NewPool(-1); p.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p.Workers())
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(2)

	var executed int32
	count := 10
	jobs := make([]Job, count)
	for i := range jobs {
		jobs[i] = &mockJob{id: i, executed: &executed}
	}

	results := pool.Run(context.Background(), jobs)

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

func TestPool_ResultsInJobOrder(t *testing.T) {
	pool := NewPool(4)

	// Earlier jobs finish last
	jobs := make([]Job, 8)
	for i := range jobs {
		jobs[i] = &mockJob{id: i, duration: time.Duration(len(jobs)-i) * 5 * time.Millisecond}
	}

	results := pool.Run(context.Background(), jobs)
	for i, r := range results {
		if got := r.(*mockResult).id; got != i {
			t.Errorf("result %d belongs to job %d", i, got)
		}
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPool(workers)

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	totalJobs := 50
	jobs := make([]Job, totalJobs)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 10 * time.Millisecond,
		}
	}

	pool.Run(context.Background(), jobs)

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
	if max <= 1 {
		t.Logf("Warning: max concurrency was %d, expected > 1", max)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPool(2)

	results := pool.Run(context.Background(), []Job{
		&mockJob{id: 0, shouldErr: true},
		&mockJob{id: 1},
		&mockJob{id: 2, shouldErr: true},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].GetError() == nil || results[2].GetError() == nil {
		t.Error("expected failing jobs to carry their error")
	}
	if results[1].GetError() != nil {
		t.Errorf("unexpected error for job 1: %v", results[1].GetError())
	}
}

func TestPool_ManyJobsFewWorkers(t *testing.T) {
	// More jobs than any internal buffer must not block
	pool := NewPool(1)
	jobs := make([]Job, 200)
	for i := range jobs {
		jobs[i] = &mockJob{id: i}
	}

	done := make(chan []Result)
	go func() { done <- pool.Run(context.Background(), jobs) }()

	select {
	case results := <-done:
		if len(results) != 200 {
			t.Errorf("expected 200 results, got %d", len(results))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked")
	}
}

func TestPool_CancelledContext(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Run(ctx, []Job{&mockJob{duration: time.Second}, &mockJob{duration: time.Second}})
	for i, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("result %d: expected context.Canceled, got %v", i, r.GetError())
		}
	}
}

func TestMap_Empty(t *testing.T) {
	out := Map(context.Background(), 4, []string{}, func(ctx context.Context, i int, s string) int { return i })
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", out)
	}
}

func TestMap_Index(t *testing.T) {
	items := []string{"a", "bb", "ccc"}
	out := Map(context.Background(), 0, items, func(ctx context.Context, i int, s string) int {
		return len(s)*10 + i
	})
	want := []int{10, 21, 32}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Map()[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}
