package dispatchq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"monitoring/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInProcQueueProcessesJobs(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	queue := NewInProcQueue(16, 2, testLogger(), func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.ID)
		return nil
	})

	for i := 0; i < 5; i++ {
		job := Job{ID: string(rune('a' + i)), Kind: KindNotification}
		if err := queue.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("processed %d jobs, want 5", len(seen))
	}
}

func TestInProcQueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	processed := 0
	var mu sync.Mutex
	queue := NewInProcQueue(1, 1, testLogger(), func(_ context.Context, _ Job) error {
		<-release
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	// First job occupies the worker, second fills the buffer; give the
	// worker a moment to pick the first one up so the state is stable.
	_ = queue.Enqueue(context.Background(), Job{ID: "1"})
	time.Sleep(20 * time.Millisecond)
	_ = queue.Enqueue(context.Background(), Job{ID: "2"})
	if err := queue.Enqueue(context.Background(), Job{ID: "3"}); err != nil {
		t.Fatalf("full-buffer enqueue must not error, got %v", err)
	}

	close(release)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if processed != 2 {
		t.Fatalf("processed = %d, want 2 (third job dropped)", processed)
	}
}

func TestInProcQueueCloseIsIdempotentAndStopsIntake(t *testing.T) {
	t.Parallel()

	processed := 0
	var mu sync.Mutex
	queue := NewInProcQueue(4, 1, testLogger(), func(_ context.Context, _ Job) error {
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := queue.Enqueue(context.Background(), Job{ID: "late"}); err != nil {
		t.Fatalf("post-close enqueue must be a no-op, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if processed != 0 {
		t.Fatalf("processed = %d, want 0", processed)
	}
}

func TestInProcQueueSurvivesHandlerErrors(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	queue := NewInProcQueue(4, 1, testLogger(), func(_ context.Context, _ Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("send failed")
	})

	_ = queue.Enqueue(context.Background(), Job{ID: "1"})
	_ = queue.Enqueue(context.Background(), Job{ID: "2"})
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestBuildJobIDIsStablePerTransition(t *testing.T) {
	t.Parallel()

	notification := domain.Notification{
		AlertID:   "rule/high-latency/1",
		Status:    domain.StatusActive,
		Severity:  domain.SeverityHigh,
		Message:   "latency high",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	first := BuildJobID(KindNotification, "slack", "", notification)
	second := BuildJobID(KindNotification, "slack", "", notification)
	if first != second {
		t.Fatal("identical transitions must share an id")
	}
	if BuildJobID(KindNotification, "email", "", notification) == first {
		t.Fatal("channel must contribute to the id")
	}

	escalated := notification
	escalated.EscalationLevel = 1
	if BuildJobID(KindNotification, "slack", "", escalated) == first {
		t.Fatal("escalation level must contribute to the id")
	}
}
