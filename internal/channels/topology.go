package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/metrics"
	"github.com/jjenkins/scorestream/internal/platform"
)

// ErrSyncInProgress is returned when a topology sync is already running
var ErrSyncInProgress = errors.New("topology sync already in progress")

// Platform is the part of the platform client topology sync drives
type Platform interface {
	ResolveProfileIDs(ctx context.Context, policy config.ProfilePolicy) ([]int, error)
	GetOrCreateGroup(ctx context.Context, name string) (int, error)
	GetOrCreateStream(ctx context.Context, name, url string, groupID int) (int, error)
	UpsertChannel(ctx context.Context, spec platform.ChannelSpec) (int, platform.UpsertResult, error)
}

// ChannelOutcome is one reconciled channel
type ChannelOutcome struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Number    int    `json:"number"`
	ChannelID int    `json:"channel_id"`
	StreamURL string `json:"stream_url"`
}

// ChannelError is one channel that could not be reconciled
type ChannelError struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// TopologyResult partitions a run's channels by what happened to them
type TopologyResult struct {
	GroupID   int              `json:"group_id"`
	Created   []ChannelOutcome `json:"created"`
	Updated   []ChannelOutcome `json:"updated"`
	Unchanged []ChannelOutcome `json:"unchanged"`
	Errors    []ChannelError   `json:"errors"`
}

// StreamURL is the playback URL registered for a channel id
func StreamURL(baseURL, id string) string {
	return strings.TrimSuffix(baseURL, "/") + "/hls/" + id + ".m3u8"
}

// StreamName is the stream name registered for a channel id
func StreamName(id string) string {
	return "scorestream-" + id
}

// Syncer converges the platform's group, streams and channels to the
// channel configuration. One run at a time.
type Syncer struct {
	client        Platform
	streamBaseURL string
	logger        *zap.Logger
	running       sync.Mutex
	wg            sync.WaitGroup
}

// NewSyncer creates a new Syncer
func NewSyncer(client Platform, streamBaseURL string, logger *zap.Logger) *Syncer {
	return &Syncer{
		client:        client,
		streamBaseURL: streamBaseURL,
		logger:        logger,
	}
}

// Run resolves the profile policy and target group once, then gets or
// creates each channel's stream and channel. A failing channel is recorded
// and the rest still run. An error is returned only when the run could not
// start: another run holds the guard, or profiles or the group could not
// be resolved.
func (s *Syncer) Run(ctx context.Context, cfg *config.ChannelConfig) (*TopologyResult, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	return s.runLocked(ctx, cfg)
}

// TriggerAsync starts a run in the background and returns at once. It
// reports false when a run is already in flight. ctx bounds the run; Wait
// blocks until it finishes.
func (s *Syncer) TriggerAsync(ctx context.Context, cfg *config.ChannelConfig) bool {
	if !s.running.TryLock() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		if _, err := s.runLocked(ctx, cfg); err != nil {
			s.logger.Error("background topology sync failed", zap.Error(err))
		}
	}()
	return true
}

// Wait blocks until background runs started by TriggerAsync finish
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// runLocked runs a sync with the guard held by the caller
func (s *Syncer) runLocked(ctx context.Context, cfg *config.ChannelConfig) (*TopologyResult, error) {
	profileIDs, err := s.client.ResolveProfileIDs(ctx, cfg.Platform.Profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profiles: %w", err)
	}

	groupID, err := s.client.GetOrCreateGroup(ctx, cfg.Platform.GroupName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve group %q: %w", cfg.Platform.GroupName, err)
	}

	result := &TopologyResult{
		GroupID:   groupID,
		Created:   []ChannelOutcome{},
		Updated:   []ChannelOutcome{},
		Unchanged: []ChannelOutcome{},
		Errors:    []ChannelError{},
	}

	for _, ch := range Build(cfg) {
		outcome := ChannelOutcome{
			ID:        ch.ID,
			Name:      ch.Name,
			Number:    ch.Number,
			StreamURL: StreamURL(s.streamBaseURL, ch.ID),
		}

		upsert, err := s.reconcile(ctx, groupID, profileIDs, &outcome)
		if err != nil {
			s.logger.Error("failed to reconcile channel",
				zap.String("channel", ch.ID), zap.Int("number", ch.Number), zap.Error(err))
			result.Errors = append(result.Errors, ChannelError{ID: ch.ID, Name: ch.Name, Error: err.Error()})
			metrics.TopologyChannels.WithLabelValues("error").Inc()
			continue
		}

		switch upsert {
		case platform.ChannelCreated:
			result.Created = append(result.Created, outcome)
		case platform.ChannelUpdated:
			result.Updated = append(result.Updated, outcome)
		default:
			result.Unchanged = append(result.Unchanged, outcome)
		}
		metrics.TopologyChannels.WithLabelValues(string(upsert)).Inc()
	}

	s.logger.Info("topology sync finished",
		zap.Int("created", len(result.Created)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func (s *Syncer) reconcile(ctx context.Context, groupID int, profileIDs []int, outcome *ChannelOutcome) (platform.UpsertResult, error) {
	streamID, err := s.client.GetOrCreateStream(ctx, StreamName(outcome.ID), outcome.StreamURL, groupID)
	if err != nil {
		return "", fmt.Errorf("stream: %w", err)
	}

	channelID, upsert, err := s.client.UpsertChannel(ctx, platform.ChannelSpec{
		Name:       outcome.Name,
		Number:     outcome.Number,
		GroupID:    groupID,
		StreamIDs:  []int{streamID},
		ProfileIDs: profileIDs,
	})
	if err != nil {
		return "", fmt.Errorf("channel: %w", err)
	}

	outcome.ChannelID = channelID
	return upsert, nil
}

// Start runs a sync immediately and then every interval until ctx is
// cancelled. The channel configuration is reloaded for every run so saved
// changes apply on the next cycle. Failures are logged; the next tick is
// the retry. It waits for runs started by TriggerAsync before returning.
func (s *Syncer) Start(ctx context.Context, interval time.Duration, load func() (*config.ChannelConfig, error)) error {
	s.logger.Info("starting topology sync loop", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx, load)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Info("topology sync loop stopping")
			s.Wait()
			return nil
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context, load func() (*config.ChannelConfig, error)) {
	cfg, err := load()
	if err != nil {
		s.logger.Error("failed to load channel configuration", zap.Error(err))
		return
	}

	if _, err := s.Run(ctx, cfg); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Info("topology sync already running, skipping")
			return
		}
		s.logger.Error("topology sync failed", zap.Error(err))
	}
}
