package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/E5GEN2/highbid.ai/internal/adapter/storage"
	"github.com/E5GEN2/highbid.ai/internal/core/notifications"
)

const maxAttempts = 5

// JobStore is the slice of the ledger the worker needs. ClaimJob must flip
// the row out of PENDING atomically so concurrent instances never deliver
// the same job twice.
type JobStore interface {
	ClaimJob(ctx context.Context) (*storage.WebhookJob, error)
	CompleteJob(ctx context.Context, id string) error
	RescheduleJob(ctx context.Context, id string, nextRun time.Time) error
	FailJob(ctx context.Context, id string) error
}

type sendFunc func(url string, payload []byte, secret string) error

// StartWebhookWorker drains queued payment lifecycle events and delivers
// them to the operator alert URL with retry.
func StartWebhookWorker(store JobStore, secret string) {
	go func() {
		slog.Info("👷 Webhook worker started")
		for {
			processJobs(store, secret, notifications.SendWebhook)
			time.Sleep(5 * time.Second)
		}
	}()
}

func processJobs(store JobStore, secret string, send sendFunc) {
	ctx := context.Background()

	job, err := store.ClaimJob(ctx)
	if err != nil {
		slog.Error("Worker: claim failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	if !json.Valid(job.Payload) {
		slog.Error("Worker: invalid job payload", "job_id", job.ID)
		store.FailJob(ctx, job.ID)
		return
	}

	slog.Info("Worker: delivering event", "url", job.URL, "job_id", job.ID)

	if sendErr := send(job.URL, job.Payload, secret); sendErr != nil {
		slog.Error("Worker: delivery failed", "error", sendErr, "attempts", job.Attempts, "job_id", job.ID)

		if job.Attempts >= maxAttempts {
			store.FailJob(ctx, job.ID)
			slog.Error("Worker: job marked FAILED (max attempts reached)", "job_id", job.ID)
			return
		}

		nextRun := time.Now().Add(time.Duration(job.Attempts*10+10) * time.Second)
		store.RescheduleJob(ctx, job.ID, nextRun)
		slog.Info("Worker: retry scheduled", "job_id", job.ID, "next_run", nextRun)
		return
	}

	slog.Info("✅ Worker: event delivered", "job_id", job.ID)
	store.CompleteJob(ctx, job.ID)
}
