package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

const scanLockKey = "helpdesk-sla:escalation-scan-lock"

// ScanRunner runs one escalation scan.
type ScanRunner interface {
	RunScan(ctx context.Context) (*service.ScanSummary, error)
}

// EscalationWorker drives the periodic escalation scan. The timer tick and
// the manual admin trigger share one code path; an in-process single-flight
// guard serializes them, and a redis lock extends the guarantee across
// instances. Without the guard two overlapping scans could double-escalate
// inside the dedup window, so it is a correctness requirement, not a
// nice-to-have.
type EscalationWorker struct {
	scanner  ScanRunner
	redis    *persistence.Redis
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	lockTTL  time.Duration
	inFlight atomic.Bool
}

// NewEscalationWorker constructs the worker. redis may be nil in
// single-instance deployments.
func NewEscalationWorker(scanner ScanRunner, redis *persistence.Redis, logger *zap.Logger, metrics *observability.Metrics, interval, lockTTL time.Duration) *EscalationWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &EscalationWorker{
		scanner:  scanner,
		redis:    redis,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		lockTTL:  lockTTL,
	}
}

// Start launches the recurring scan loop. It returns immediately; the loop
// stops when ctx is cancelled. A scan failure is logged and the next tick
// fires regardless.
func (w *EscalationWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("escalation worker stopped")
				return
			case <-ticker.C:
				if _, err := w.runGuarded(ctx); err != nil && !isBusy(err) {
					w.logger.Error("scheduled scan failed", zap.Error(err))
				}
			}
		}
	}()
}

// TriggerNow runs a scan on demand. A trigger arriving while a scan is in
// flight is rejected with a conflict rather than run in parallel.
func (w *EscalationWorker) TriggerNow(ctx context.Context) (*service.ScanSummary, error) {
	return w.runGuarded(ctx)
}

func (w *EscalationWorker) runGuarded(ctx context.Context) (*service.ScanSummary, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.metrics.RecordScanSkipped()
		return nil, apperrors.NewConflict("scan already in progress", nil)
	}
	defer w.inFlight.Store(false)

	if !w.acquireLock(ctx) {
		w.metrics.RecordScanSkipped()
		return nil, apperrors.NewConflict("scan running on another instance", nil)
	}
	defer w.releaseLock(ctx)

	start := time.Now()
	summary, err := w.scanner.RunScan(ctx)
	if err != nil {
		return nil, err
	}
	took := time.Since(start)
	w.metrics.RecordScan(summary.Succeeded, summary.Failed, took)
	w.logger.Info("escalation scan finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", took))
	return summary, nil
}

// acquireLock takes the cross-instance scan lock. The TTL frees the lock if
// an instance dies mid-scan. No redis configured means single-instance mode
// and the in-process guard suffices.
func (w *EscalationWorker) acquireLock(ctx context.Context) bool {
	if w.redis == nil || w.redis.Client == nil {
		return true
	}
	ok, err := w.redis.Client.SetNX(ctx, scanLockKey, time.Now().Format(time.RFC3339), w.lockTTL).Result()
	if err != nil {
		w.logger.Warn("scan lock unavailable; proceeding on in-process guard", zap.Error(err))
		return true
	}
	return ok
}

func (w *EscalationWorker) releaseLock(ctx context.Context) {
	if w.redis == nil || w.redis.Client == nil {
		return
	}
	if err := w.redis.Client.Del(ctx, scanLockKey).Err(); err != nil {
		w.logger.Warn("scan lock release failed", zap.Error(err))
	}
}

func isBusy(err error) bool {
	domainErr := apperrors.ToDomainError(err)
	return domainErr != nil && domainErr.Code == "CONFLICT"
}
