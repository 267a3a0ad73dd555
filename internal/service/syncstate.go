package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jjenkins/scorestream/internal/model"
)

// ErrInvalidTransition is returned when the persisted status does not allow
// the requested transition
var ErrInvalidTransition = errors.New("invalid sync state transition")

// SettingsRepository is the durable key/value store holding sync state
type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	CompareAndSet(ctx context.Context, key string, expected []string, values map[string]string) (bool, error)
}

// transitions lists, per target status, the statuses it may be entered from.
// An empty string is a settings table that was never seeded.
var transitions = map[model.SyncStatus][]model.SyncStatus{
	model.SyncRunning:  {"", model.SyncNever, model.SyncComplete, model.SyncFailed, model.SyncPending},
	model.SyncComplete: {model.SyncRunning},
	model.SyncFailed:   {model.SyncRunning},
	model.SyncPending:  {model.SyncRunning},
}

// StateMachine owns the persisted sync status and the in-process guard that
// keeps ingestion single-flight. Status changes go through Transition, which
// is an atomic compare-and-set against the settings store.
type StateMachine struct {
	guard sync.Mutex
	repo  SettingsRepository
	now   func() time.Time
}

// NewStateMachine creates a StateMachine over repo
func NewStateMachine(repo SettingsRepository) *StateMachine {
	return &StateMachine{repo: repo, now: time.Now}
}

// TryAcquire takes the ingestion guard without blocking. It reports false
// when another ingestion holds it.
func (m *StateMachine) TryAcquire() bool {
	return m.guard.TryLock()
}

// Release gives up the ingestion guard taken by TryAcquire
func (m *StateMachine) Release() {
	m.guard.Unlock()
}

// State reads the persisted sync state
func (m *StateMachine) State(ctx context.Context) (model.SyncState, error) {
	settings, err := m.repo.GetAll(ctx)
	if err != nil {
		return model.SyncState{}, fmt.Errorf("failed to read sync state: %w", err)
	}

	state := model.SyncState{
		Status:      model.SyncStatus(settings[model.SettingSyncStatus]),
		LastSyncAt:  parseTimestamp(settings[model.SettingLastSyncAt]),
		LastAttempt: parseTimestamp(settings[model.SettingLastAttempt]),
		LastError:   settings[model.SettingLastSyncErr],
	}
	if state.Status == "" {
		state.Status = model.SyncNever
	}
	return state, nil
}

// Transition moves the persisted status to `to`. Entering running stamps
// the attempt time; entering complete stamps the sync time and clears the
// last error; failed and pending record cause.
func (m *StateMachine) Transition(ctx context.Context, to model.SyncStatus, cause error) error {
	from, ok := transitions[to]
	if !ok {
		return fmt.Errorf("%w: unknown target %q", ErrInvalidTransition, to)
	}

	now := m.now().UTC().Format(time.RFC3339Nano)
	values := map[string]string{model.SettingSyncStatus: string(to)}
	switch to {
	case model.SyncRunning:
		values[model.SettingLastAttempt] = now
	case model.SyncComplete:
		values[model.SettingLastSyncAt] = now
		values[model.SettingLastSyncErr] = ""
	default:
		msg := "unknown error"
		if cause != nil {
			msg = cause.Error()
		}
		values[model.SettingLastSyncErr] = msg
	}

	expected := make([]string, len(from))
	for i, s := range from {
		expected[i] = string(s)
	}

	swapped, err := m.repo.CompareAndSet(ctx, model.SettingSyncStatus, expected, values)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: cannot enter %s", ErrInvalidTransition, to)
	}
	return nil
}

// RecoverInterrupted marks a run left in running by a previous process as
// failed. It reports whether a stale run was found.
func (m *StateMachine) RecoverInterrupted(ctx context.Context) (bool, error) {
	return m.repo.CompareAndSet(ctx, model.SettingSyncStatus,
		[]string{string(model.SyncRunning)},
		map[string]string{
			model.SettingSyncStatus:  string(model.SyncFailed),
			model.SettingLastSyncErr: "interrupted before completion",
		})
}

func parseTimestamp(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}
