package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/salemap/saled/internal/lifecycle"
	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/pkg/model"
)

// ErrRunInProgress is returned when a manual run overlaps a scheduled one.
var ErrRunInProgress = errors.New("status reconciliation already running")

// SaleLister loads every sale record.
type SaleLister interface {
	ListSales(ctx context.Context) ([]model.Sale, error)
}

// EventPublisher emits domain events. Failures never fail the job.
type EventPublisher interface {
	PublishEvent(ctx context.Context, subject, eventType string, payload any) error
}

const (
	SubjectStatusChanged      = "evt.sale.status_changed.v1"
	SubjectStatusesReconciled = "evt.sale.statuses_reconciled.v1"
)

// RunReport summarizes one sweep.
type RunReport struct {
	Scanned     int                  `json:"scanned"`
	Pending     int                  `json:"pending"`
	Committed   int                  `json:"committed"`
	Transitions map[model.Status]int `json:"transitions"`
	Duration    time.Duration        `json:"duration"`
}

// StatusReconciler periodically recomputes every sale's status from its
// schedule and writes only the records whose stored status differs.
type StatusReconciler struct {
	logger    *zap.Logger
	sales     SaleLister
	committer *BatchCommitter
	publisher EventPublisher
	interval  time.Duration
	chunkSize int
	now       func() time.Time

	running  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStatusReconciler constructs the job. publisher may be nil.
func NewStatusReconciler(
	logger *zap.Logger,
	sales SaleLister,
	committer *BatchCommitter,
	publisher EventPublisher,
	interval time.Duration,
	chunkSize int,
) *StatusReconciler {
	return &StatusReconciler{
		logger:    logger,
		sales:     sales,
		committer: committer,
		publisher: publisher,
		interval:  interval,
		chunkSize: chunkSize,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the reconciliation loop until Stop is called or ctx is done.
func (r *StatusReconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler.started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ticker.C:
			if _, err := r.Trigger(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				r.logger.Warn("reconciler.run_failed", zap.Error(err))
			}
		case <-r.stopCh:
			r.logger.Info("reconciler.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("reconciler.stopped (context canceled)")
			return
		}
	}
}

// Stop halts the loop. It is safe to call more than once.
func (r *StatusReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Trigger runs one sweep at the current wall-clock time unless one is already running.
func (r *StatusReconciler) Trigger(ctx context.Context) (RunReport, error) {
	if !r.running.TryLock() {
		return RunReport{}, ErrRunInProgress
	}
	defer r.running.Unlock()
	return r.RunOnce(ctx, r.now())
}

// RunOnce performs a full sweep as of now.
func (r *StatusReconciler) RunOnce(ctx context.Context, now time.Time) (RunReport, error) {
	start := time.Now()
	report := RunReport{Transitions: map[model.Status]int{}}

	sales, err := r.sales.ListSales(ctx)
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		r.logger.Error("reconciler.load_failed", zap.Error(err))
		return report, err
	}
	report.Scanned = len(sales)

	updates := Diff(now, sales)
	report.Pending = len(updates)

	if len(updates) == 0 {
		report.Duration = time.Since(start)
		r.finish(report, nil)
		return report, nil
	}

	committed, err := r.committer.Commit(ctx, updates, r.chunkSize)
	report.Committed = committed
	for _, u := range updates[:committed] {
		report.Transitions[u.Status]++
		metrics.StatusTransitionsTotal.WithLabelValues(string(u.Status)).Inc()
	}
	report.Duration = time.Since(start)

	r.publishTransitions(ctx, updates[:committed], now)
	r.finish(report, err)
	if err == nil {
		r.publishSummary(ctx, report, now)
	}
	return report, err
}

// Diff returns one update per sale whose stored status differs from the classified one.
func Diff(now time.Time, sales []model.Sale) []model.StatusUpdate {
	var updates []model.StatusUpdate
	for _, s := range sales {
		desired := lifecycle.ClassifySale(now, s)
		if desired != s.Status {
			updates = append(updates, model.StatusUpdate{SaleID: s.ID, Status: desired})
		}
	}
	return updates
}

func (r *StatusReconciler) finish(report RunReport, err error) {
	metrics.ReconcileDuration.Observe(report.Duration.Seconds())

	if err != nil {
		result := "error"
		if report.Committed > 0 {
			result = "partial"
		}
		metrics.ReconcileRunsTotal.WithLabelValues(result).Inc()
		r.logger.Error("reconciler.commit_failed",
			zap.Int("scanned", report.Scanned),
			zap.Int("pending", report.Pending),
			zap.Int("committed", report.Committed),
			zap.Error(err))
		return
	}

	metrics.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	metrics.SetLastReconcile(time.Now())
	r.logger.Info("reconciler.success",
		zap.Int("scanned", report.Scanned),
		zap.Int("committed", report.Committed),
		zap.Duration("duration", report.Duration))
}

func (r *StatusReconciler) publishTransitions(ctx context.Context, updates []model.StatusUpdate, now time.Time) {
	if r.publisher == nil {
		return
	}
	for _, u := range updates {
		evt := model.SaleStatusChanged{SaleID: u.SaleID, Status: u.Status, Timestamp: now.UTC()}
		if err := r.publisher.PublishEvent(ctx, SubjectStatusChanged, model.EventSaleStatusChanged, evt); err != nil {
			r.logger.Warn("reconciler.publish_failed",
				zap.String("sale_id", u.SaleID),
				zap.Error(err))
		}
	}
}

func (r *StatusReconciler) publishSummary(ctx context.Context, report RunReport, now time.Time) {
	if r.publisher == nil {
		return
	}
	summary := map[string]any{
		"as_of":       now.UTC(),
		"scanned":     report.Scanned,
		"committed":   report.Committed,
		"transitions": report.Transitions,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if err := r.publisher.PublishEvent(ctx, SubjectStatusesReconciled, model.EventStatusesSwept, summary); err != nil {
		r.logger.Warn("reconciler.summary_publish_failed", zap.Error(err))
	}
}
