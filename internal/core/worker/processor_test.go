package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/E5GEN2/highbid.ai/internal/adapter/storage"
)

// mockJobStore implements JobStore for testing.
type mockJobStore struct {
	ClaimFunc func(ctx context.Context) (*storage.WebhookJob, error)

	completed   []string
	failed      []string
	rescheduled []string
	nextRuns    []time.Time
}

func (m *mockJobStore) ClaimJob(ctx context.Context) (*storage.WebhookJob, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx)
	}
	return nil, nil
}

func (m *mockJobStore) CompleteJob(_ context.Context, id string) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockJobStore) RescheduleJob(_ context.Context, id string, nextRun time.Time) error {
	m.rescheduled = append(m.rescheduled, id)
	m.nextRuns = append(m.nextRuns, nextRun)
	return nil
}

func (m *mockJobStore) FailJob(_ context.Context, id string) error {
	m.failed = append(m.failed, id)
	return nil
}

func claimOnce(job *storage.WebhookJob) func(ctx context.Context) (*storage.WebhookJob, error) {
	claimed := false
	return func(context.Context) (*storage.WebhookJob, error) {
		if claimed {
			return nil, nil
		}
		claimed = true
		return job, nil
	}
}

func TestProcessJobsDeliversAndCompletes(t *testing.T) {
	store := &mockJobStore{
		ClaimFunc: claimOnce(&storage.WebhookJob{ID: "job1", URL: "https://ops.example.com", Payload: []byte(`{"event":"topup.settled"}`)}),
	}

	var sentURL string
	var sentSecret string
	send := func(url string, payload []byte, secret string) error {
		sentURL = url
		sentSecret = secret
		return nil
	}

	processJobs(store, "ops-secret", send)

	if sentURL != "https://ops.example.com" || sentSecret != "ops-secret" {
		t.Errorf("sent url/secret = %q/%q", sentURL, sentSecret)
	}
	if len(store.completed) != 1 || store.completed[0] != "job1" {
		t.Errorf("completed = %v, want [job1]", store.completed)
	}
	if len(store.failed) != 0 || len(store.rescheduled) != 0 {
		t.Errorf("failed = %v, rescheduled = %v, want none", store.failed, store.rescheduled)
	}
}

func TestProcessJobsReschedulesOnError(t *testing.T) {
	store := &mockJobStore{
		ClaimFunc: claimOnce(&storage.WebhookJob{ID: "job1", URL: "https://ops.example.com", Payload: []byte(`{}`), Attempts: 2}),
	}
	send := func(string, []byte, string) error { return errors.New("receiver down") }

	before := time.Now()
	processJobs(store, "", send)

	if len(store.rescheduled) != 1 || store.rescheduled[0] != "job1" {
		t.Fatalf("rescheduled = %v, want [job1]", store.rescheduled)
	}
	// attempts*10+10 seconds of backoff.
	wantDelay := 30 * time.Second
	if got := store.nextRuns[0].Sub(before); got < wantDelay || got > wantDelay+time.Second {
		t.Errorf("backoff = %v, want ~%v", got, wantDelay)
	}
	if len(store.completed) != 0 || len(store.failed) != 0 {
		t.Errorf("completed = %v, failed = %v, want none", store.completed, store.failed)
	}
}

func TestProcessJobsFailsAfterMaxAttempts(t *testing.T) {
	store := &mockJobStore{
		ClaimFunc: claimOnce(&storage.WebhookJob{ID: "job1", URL: "https://ops.example.com", Payload: []byte(`{}`), Attempts: maxAttempts}),
	}
	send := func(string, []byte, string) error { return errors.New("receiver down") }

	processJobs(store, "", send)

	if len(store.failed) != 1 || store.failed[0] != "job1" {
		t.Errorf("failed = %v, want [job1]", store.failed)
	}
	if len(store.rescheduled) != 0 {
		t.Errorf("rescheduled = %v, want none", store.rescheduled)
	}
}

func TestProcessJobsInvalidPayload(t *testing.T) {
	store := &mockJobStore{
		ClaimFunc: claimOnce(&storage.WebhookJob{ID: "job1", URL: "https://ops.example.com", Payload: []byte(`{broken`)}),
	}
	sent := false
	send := func(string, []byte, string) error { sent = true; return nil }

	processJobs(store, "", send)

	if sent {
		t.Error("delivery attempted for invalid payload")
	}
	if len(store.failed) != 1 {
		t.Errorf("failed = %v, want [job1]", store.failed)
	}
}

func TestProcessJobsNothingDue(t *testing.T) {
	store := &mockJobStore{}
	send := func(string, []byte, string) error {
		t.Error("delivery attempted with empty queue")
		return nil
	}

	processJobs(store, "", send)

	if len(store.completed)+len(store.failed)+len(store.rescheduled) != 0 {
		t.Error("status mutations with empty queue")
	}
}
