package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/metrics"
	"github.com/jjenkins/scorestream/internal/model"
)

// Trigger names what started an ingestion attempt
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Outcome is how an ingestion attempt ended
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkippedFresh   Outcome = "skipped_fresh"
	OutcomeSkippedRunning Outcome = "skipped_running"
)

// finishTimeout bounds the state write and seeding after a run, which use a
// context detached from the caller so a cancelled run still records its end
const finishTimeout = 30 * time.Second

const (
	finishAttempts      = 4
	finishRetryInterval = 500 * time.Millisecond
)

// Ingester runs one ingestion pass over the configured endpoints
type Ingester interface {
	Ingest(ctx context.Context, endpoints []model.CatalogEndpoint) (*IngestSummary, error)
}

// CatalogStore is the catalog view the coordinator needs: counts to decide
// on seeding and writes to seed
type CatalogStore interface {
	CatalogWriter
	CountOrganizations(ctx context.Context) (int, error)
	CountPrograms(ctx context.Context) (int, error)
}

// RunResult reports one ingestion attempt
type RunResult struct {
	Trigger  Trigger          `json:"trigger"`
	Outcome  Outcome          `json:"outcome"`
	Status   model.SyncStatus `json:"status,omitempty"`
	Summary  *IngestSummary   `json:"summary,omitempty"`
	Seeded   *SeedStats       `json:"seeded,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// StatusReport is the operator view of sync state
type StatusReport struct {
	model.SyncState
	Organizations int `json:"organizations"`
	Programs      int `json:"programs"`
}

// Coordinator schedules catalog ingestion, keeps it single-flight, and
// seeds fallback data when the source is unreachable and the catalog empty
type Coordinator struct {
	ingester  Ingester
	catalog   CatalogStore
	state     *StateMachine
	endpoints []model.CatalogEndpoint
	interval  time.Duration
	freshness time.Duration
	logger    *zap.Logger
	now       func() time.Time
	wg        sync.WaitGroup

	// finishRetry is the first backoff interval for the closing state write
	finishRetry time.Duration
	// orphaned records that this process left the persisted status at
	// running. Read and written only with the guard held.
	orphaned bool
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(
	ingester Ingester,
	catalog CatalogStore,
	state *StateMachine,
	endpoints []model.CatalogEndpoint,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		ingester:  ingester,
		catalog:   catalog,
		state:     state,
		endpoints: endpoints,
		interval:  cfg.Interval,
		freshness: cfg.Freshness,
		logger:    logger,
		now:       time.Now,

		finishRetry: finishRetryInterval,
	}
}

// Start recovers an interrupted run, performs the startup attempt, then
// re-checks on every interval until ctx is cancelled. It waits for
// background runs started by TriggerAsync before returning.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info("starting sync coordinator",
		zap.Duration("interval", c.interval),
		zap.Duration("freshness", c.freshness),
		zap.Int("endpoints", len(c.endpoints)))

	c.Startup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Run(ctx, TriggerScheduled)
		case <-ctx.Done():
			c.logger.Info("sync coordinator stopping")
			c.Wait()
			return nil
		}
	}
}

// Startup marks a run left behind by a crashed process as failed, then
// attempts ingestion unless the catalog is fresh
func (c *Coordinator) Startup(ctx context.Context) RunResult {
	c.Recover(ctx)
	return c.Run(ctx, TriggerStartup)
}

// Recover marks a persisted running status as failed. Call it only when no
// other process can be mid-run, such as at process start.
func (c *Coordinator) Recover(ctx context.Context) {
	recovered, err := c.state.RecoverInterrupted(ctx)
	if err != nil {
		c.logger.Error("failed to recover sync state", zap.Error(err))
	} else if recovered {
		c.logger.Warn("previous sync was interrupted, marked failed")
	}
}

// Run performs one ingestion attempt. Startup and scheduled triggers skip
// a fresh catalog; manual triggers always run. A second concurrent call
// returns OutcomeSkippedRunning without touching state.
func (c *Coordinator) Run(ctx context.Context, trigger Trigger) RunResult {
	if trigger != TriggerManual {
		fresh, err := c.isFresh(ctx)
		if err != nil {
			c.logger.Warn("could not read sync state, treating catalog as stale", zap.Error(err))
		}
		if fresh {
			c.logger.Debug("catalog is fresh, skipping sync", zap.String("trigger", string(trigger)))
			metrics.SyncRuns.WithLabelValues(string(trigger), string(OutcomeSkippedFresh)).Inc()
			return RunResult{Trigger: trigger, Outcome: OutcomeSkippedFresh, Status: model.SyncComplete}
		}
	}

	if !c.state.TryAcquire() {
		return c.skippedRunning(trigger)
	}
	defer c.state.Release()

	return c.runLocked(ctx, trigger)
}

// TriggerAsync starts a manual run in the background and returns at once.
// It reports false when a run is already in flight. ctx bounds the run and
// should outlive the request that asked for it.
func (c *Coordinator) TriggerAsync(ctx context.Context) bool {
	if !c.state.TryAcquire() {
		c.skippedRunning(TriggerManual)
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.state.Release()
		c.runLocked(ctx, TriggerManual)
	}()
	return true
}

// Wait blocks until background runs started by TriggerAsync finish
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Status reports the persisted sync state with catalog counts
func (c *Coordinator) Status(ctx context.Context) (*StatusReport, error) {
	st, err := c.state.State(ctx)
	if err != nil {
		return nil, err
	}

	orgs, err := c.catalog.CountOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count organizations: %w", err)
	}
	programs, err := c.catalog.CountPrograms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count programs: %w", err)
	}

	return &StatusReport{SyncState: st, Organizations: orgs, Programs: programs}, nil
}

func (c *Coordinator) skippedRunning(trigger Trigger) RunResult {
	c.logger.Info("sync already running, skipping", zap.String("trigger", string(trigger)))
	metrics.SyncRuns.WithLabelValues(string(trigger), string(OutcomeSkippedRunning)).Inc()
	return RunResult{Trigger: trigger, Outcome: OutcomeSkippedRunning, Status: model.SyncRunning}
}

func (c *Coordinator) isFresh(ctx context.Context) (bool, error) {
	st, err := c.state.State(ctx)
	if err != nil {
		return false, err
	}
	if st.Status != model.SyncComplete || st.LastSyncAt == nil {
		return false, nil
	}
	return c.now().Sub(*st.LastSyncAt) < c.freshness, nil
}

// runLocked runs ingestion with the guard held by the caller
func (c *Coordinator) runLocked(ctx context.Context, trigger Trigger) RunResult {
	start := c.now()
	result := RunResult{Trigger: trigger}
	logger := c.logger.With(zap.String("trigger", string(trigger)))

	prev, err := c.state.State(ctx)
	if err != nil {
		return c.finish(result, start, OutcomeFailed, err)
	}

	err = c.state.Transition(ctx, model.SyncRunning, nil)
	if errors.Is(err, ErrInvalidTransition) && c.orphaned {
		logger.Warn("reclaiming sync state left running by an earlier attempt")
		if err = c.reclaim(ctx); err == nil {
			prev.Status = model.SyncFailed
		}
	}
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Another process holds the persisted running state.
			return c.skippedRunning(trigger)
		}
		return c.finish(result, start, OutcomeFailed, err)
	}
	c.orphaned = false
	logger.Info("catalog sync started", zap.String("previous_status", string(prev.Status)))

	summary, ingestErr := c.ingester.Ingest(ctx, c.endpoints)
	result.Summary = summary

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if ingestErr == nil {
		if err := c.record(finishCtx, model.SyncComplete, nil); err != nil {
			logger.Error("failed to record sync completion", zap.Error(err))
			return c.finish(result, start, OutcomeFailed, err)
		}
		result.Status = model.SyncComplete
		logger.Info("catalog sync complete", zap.Int("stored", summary.Stored()))
		return c.finish(result, start, OutcomeCompleted, nil)
	}

	logger.Error("catalog sync failed", zap.Error(ingestErr))
	result.Seeded = c.seedIfEmpty(finishCtx, logger)

	target := model.SyncFailed
	if prev.Status == model.SyncFailed || prev.Status == model.SyncPending {
		target = model.SyncPending
	}
	if err := c.record(finishCtx, target, ingestErr); err != nil {
		logger.Error("failed to record sync failure", zap.Error(err))
	} else {
		result.Status = target
	}

	return c.finish(result, start, OutcomeFailed, ingestErr)
}

// record writes the closing transition of a run, retrying store errors.
// When every attempt fails the persisted status is still running and the
// next attempt in this process reclaims it.
func (c *Coordinator) record(ctx context.Context, to model.SyncStatus, cause error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.finishRetry

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.state.Transition(ctx, to, cause)
		if errors.Is(err, ErrInvalidTransition) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(finishAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("failed to write sync state, retrying",
				zap.String("status", string(to)), zap.Error(err), zap.Duration("next", next))
		}),
	)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		c.orphaned = true
	}
	return err
}

// reclaim moves a running status this process abandoned to failed and
// enters running again
func (c *Coordinator) reclaim(ctx context.Context) error {
	if _, err := c.state.RecoverInterrupted(ctx); err != nil {
		return err
	}
	return c.state.Transition(ctx, model.SyncRunning, nil)
}

// seedIfEmpty seeds the fallback catalog only when the store holds no
// organizations. Existing data, however partial, is left alone.
func (c *Coordinator) seedIfEmpty(ctx context.Context, logger *zap.Logger) *SeedStats {
	count, err := c.catalog.CountOrganizations(ctx)
	if err != nil {
		logger.Error("failed to count organizations, not seeding", zap.Error(err))
		return nil
	}
	if count > 0 {
		logger.Info("keeping existing catalog", zap.Int("organizations", count))
		return nil
	}

	stats, err := SeedFallback(ctx, c.catalog, logger)
	if err != nil {
		logger.Error("failed to seed fallback catalog", zap.Error(err))
	}
	return stats
}

func (c *Coordinator) finish(result RunResult, start time.Time, outcome Outcome, err error) RunResult {
	result.Outcome = outcome
	result.Duration = c.now().Sub(start)
	if err != nil {
		result.Error = err.Error()
	}

	metrics.SyncRuns.WithLabelValues(string(result.Trigger), string(outcome)).Inc()
	metrics.SyncDuration.Observe(result.Duration.Seconds())
	return result
}
