package worker

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nobat/internal/database"
	"nobat/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSyncWorker(db, sheets, nil, RetryPolicy{}, nil)

	appt := &models.Appointment{
		ID:          1,
		Timeslot:    "2026-09-01 10:00",
		PhoneNumber: "5551234567",
		CreatedAt:   time.Now(),
	}

	ctx := context.Background()
	if err := worker.EnqueueAppointment(ctx, appt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "completed" {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if len(sheets.appended) != 1 || sheets.appended[0].Timeslot != "2026-09-01 10:00" {
		t.Fatalf("unexpected appended rows: %+v", sheets.appended)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSyncWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	appt := &models.Appointment{ID: 2, Timeslot: "2026-09-01 10:45", PhoneNumber: "5551234567"}

	ctx := context.Background()
	if err := worker.EnqueueAppointment(ctx, appt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "retry" {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSyncWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)

	appt := &models.Appointment{ID: 3, Timeslot: "2026-09-01 11:30", PhoneNumber: "5551234567"}

	ctx := context.Background()
	worker.EnqueueAppointment(ctx, appt)
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != "failed" {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestEnqueueAppointmentValidation(t *testing.T) {
	db := newTestDB(t)
	worker := NewSyncWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)

	if err := worker.EnqueueAppointment(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil appointment")
	}
	if err := worker.EnqueueAppointment(context.Background(), &models.Appointment{}); err == nil {
		t.Fatalf("expected error for missing appointment id")
	}
}

func TestEnqueueThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSyncWorker(db, sheets, client, RetryPolicy{}, nil)

	appt := &models.Appointment{ID: 4, Timeslot: "2026-09-01 12:15", PhoneNumber: "5559876543"}

	ctx := context.Background()
	if err := worker.EnqueueAppointment(ctx, appt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("task should have gone to redis, not the local queue")
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	if len(sheets.appended) != 1 {
		t.Fatalf("expected 1 appended row, got %d", len(sheets.appended))
	}
	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != "completed" {
		t.Fatalf("expected status=completed, got %s", status)
	}
}

func TestDeadLetterOnExhaustion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("down")}
	worker := NewSyncWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)

	appt := &models.Appointment{ID: 5, Timeslot: "2026-09-01 13:00", PhoneNumber: "5551112222"}

	ctx := context.Background()
	worker.EnqueueAppointment(ctx, appt)
	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	dead, err := client.LLen(ctx, worker.deadLetterKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if dead != 1 {
		t.Fatalf("expected 1 dead letter, got %d", dead)
	}
}

func TestHandleUnknownTaskType(t *testing.T) {
	worker := NewSyncWorker(nil, &fakeSheets{}, nil, RetryPolicy{}, nil)
	if err := worker.handleTask(context.Background(), "nonsense", taskPayload{}); err == nil {
		t.Fatalf("expected error for unknown task type")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

// Helpers

type fakeSheets struct {
	err      error
	appended []*models.Appointment
}

func (f *fakeSheets) AppendAppointment(ctx context.Context, appt *models.Appointment) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, appt)
	return nil
}

func (f *fakeSheets) TestConnection(ctx context.Context) error {
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
