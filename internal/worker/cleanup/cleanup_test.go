package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type mockSessionDeleter struct {
	deleteExpiredFn func(ctx context.Context) (int64, error)
	callCount       int
}

func (m *mockSessionDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	m.callCount++
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

type mockDeletionRecorder struct {
	recorded []int
}

func (m *mockDeletionRecorder) RecordSessionsDeleted(count int) {
	m.recorded = append(m.recorded, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestCleanupJob_Run_DeletesExpiredSessions(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockSessionDeleter{
		deleteExpiredFn: func(ctx context.Context) (int64, error) {
			return 5, nil
		},
	}
	recorder := &mockDeletionRecorder{}
	job := NewCleanupJob(deleter, recorder, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if deleter.callCount != 1 {
		t.Errorf("DeleteExpired call count = %d, want 1", deleter.callCount)
	}
	if len(recorder.recorded) != 1 || recorder.recorded[0] != 5 {
		t.Errorf("recorded = %v, want [5]", recorder.recorded)
	}

	// 完了ログに削除件数が含まれること
	var logEntry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if logEntry["deleted_count"] != float64(5) {
		t.Errorf("deleted_count = %v, want 5", logEntry["deleted_count"])
	}
}

func TestCleanupJob_Run_NoExpiredSessions_Succeeds(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockSessionDeleter{}
	job := NewCleanupJob(deleter, nil, newTestLogger(&buf))

	// 削除対象ゼロでもエラーにならない（冪等）
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestCleanupJob_Run_NilMetrics_DoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockSessionDeleter{
		deleteExpiredFn: func(ctx context.Context) (int64, error) {
			return 2, nil
		},
	}
	job := NewCleanupJob(deleter, nil, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestCleanupJob_Run_DeleteFails_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockSessionDeleter{
		deleteExpiredFn: func(ctx context.Context) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}
	job := NewCleanupJob(deleter, nil, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return error when delete fails")
	}
	if !strings.Contains(err.Error(), "セッションクリーンアップの実行に失敗") {
		t.Errorf("error = %v, want wrapped cleanup error", err)
	}
}

func TestCleanupJob_RunLoop_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockSessionDeleter{}
	job := NewCleanupJob(deleter, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		job.RunLoop(ctx, time.Hour)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop should stop after context cancel")
	}
}

func TestCleanupJob_RunLoop_RunsOnTick(t *testing.T) {
	var buf bytes.Buffer

	ran := make(chan struct{}, 1)
	deleter := &mockSessionDeleter{
		deleteExpiredFn: func(ctx context.Context) (int64, error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return 1, nil
		},
	}
	job := NewCleanupJob(deleter, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go job.RunLoop(ctx, 10*time.Millisecond)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop should run the job on tick")
	}
}
