package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecContextの呼び出し内容を記録する。
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestNewTokenCleanupJob_Defaults(t *testing.T) {
	job := NewTokenCleanupJob(&mockExecutor{}, slog.Default())
	if job.GracePeriod != 24*time.Hour {
		t.Errorf("GracePeriod = %v, want 24h", job.GracePeriod)
	}
}

func TestTokenCleanupJob_Run_DeletesBeforeCutoff(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 42}}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf))
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if !strings.Contains(mock.query, "DELETE FROM verification_tokens") {
		t.Errorf("query = %q", mock.query)
	}
	if len(mock.args) != 1 {
		t.Fatalf("args = %v, want 1 arg", mock.args)
	}
	cutoff, ok := mock.args[0].(time.Time)
	if !ok || !cutoff.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("cutoff = %v, want %v", mock.args[0], now.Add(-24*time.Hour))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["deleted_count"] != float64(42) {
		t.Errorf("deleted_count = %v, want 42", entry["deleted_count"])
	}
}

func TestTokenCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error on DB failure")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected ERROR log, got: %s", buf.String())
	}
}

func TestTokenCleanupJob_Run_Idempotent(t *testing.T) {
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewTokenCleanupJob(mock, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d returned error: %v", i+1, err)
		}
	}
}

func TestTokenCleanupJob_Start_RunsUntilCanceled(t *testing.T) {
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewTokenCleanupJob(mock, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for mock.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 runs, got %d", mock.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
