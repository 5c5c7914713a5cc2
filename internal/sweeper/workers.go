// Package sweeper holds the periodic background jobs: expiring stale service
// requests and pausing idle chat sessions. Both delegate to the owning
// service, which makes each row's transition idempotent, so a rescheduled or
// retried job is harmless.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// RequestExpirer is the request-engine slice the sweep needs.
type RequestExpirer interface {
	AutoExpireStale(ctx context.Context, threshold time.Duration) (int, error)
}

// SessionPauser is the session-engine slice the sweep needs.
type SessionPauser interface {
	AutoPauseInactive(ctx context.Context, idleAfter time.Duration) (int, error)
}

type ExpireStaleRequestsArgs struct {
	ThresholdDays int `json:"threshold_days"`
}

func (ExpireStaleRequestsArgs) Kind() string { return "expire_stale_requests" }

type ExpireStaleRequestsWorker struct {
	river.WorkerDefaults[ExpireStaleRequestsArgs]
	requests RequestExpirer
	logger   *slog.Logger
}

func NewExpireStaleRequestsWorker(requests RequestExpirer, logger *slog.Logger) *ExpireStaleRequestsWorker {
	return &ExpireStaleRequestsWorker{requests: requests, logger: logger}
}

func (w *ExpireStaleRequestsWorker) Work(ctx context.Context, job *river.Job[ExpireStaleRequestsArgs]) error {
	threshold := time.Duration(job.Args.ThresholdDays) * 24 * time.Hour
	expired, err := w.requests.AutoExpireStale(ctx, threshold)
	if err != nil {
		return err
	}
	if expired > 0 {
		w.logger.Info("expired stale service requests", "count", expired)
	}
	return nil
}

type AutoPauseSessionsArgs struct {
	IdleMinutes int `json:"idle_minutes"`
}

func (AutoPauseSessionsArgs) Kind() string { return "auto_pause_sessions" }

type AutoPauseSessionsWorker struct {
	river.WorkerDefaults[AutoPauseSessionsArgs]
	sessions SessionPauser
	logger   *slog.Logger
}

func NewAutoPauseSessionsWorker(sessions SessionPauser, logger *slog.Logger) *AutoPauseSessionsWorker {
	return &AutoPauseSessionsWorker{sessions: sessions, logger: logger}
}

func (w *AutoPauseSessionsWorker) Work(ctx context.Context, job *river.Job[AutoPauseSessionsArgs]) error {
	swept, err := w.sessions.AutoPauseInactive(ctx, time.Duration(job.Args.IdleMinutes)*time.Minute)
	if err != nil {
		return err
	}
	if swept > 0 {
		w.logger.Info("paused inactive chat sessions", "count", swept)
	}
	return nil
}
