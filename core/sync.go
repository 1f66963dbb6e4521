package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"modelmap/logger"
	"modelmap/models"
)

// DefaultSaveDebounce is the quiet period after the last mutation before state is saved.
const DefaultSaveDebounce = 500 * time.Millisecond

// Backend persists the rule store's collections.
type Backend interface {
	Load(ctx context.Context) (models.MappingState, error)
	Save(ctx context.Context, state models.MappingState) error
}

// EventPublisher receives notifications about persisted changes.
type EventPublisher interface {
	Publish(eventType string, data interface{}) error
}

// Event types published by the sync adapter and channel service.
const (
	EventRulesSaved     = "rules.saved"
	EventChannelUpdated = "channel.updated"
)

// SyncAdapter loads the rule store from a Backend and writes it back after edits.
//
// Saves are debounced: each mutation re-arms a timer and only the last one in a burst fires.
// A timer that fires while a save is in flight is dropped. Save failures are logged and not
// retried. Nothing is saved before the first successful Load.
type SyncAdapter struct {
	store    *RuleStore
	backend  Backend
	debounce time.Duration
	events   EventPublisher

	mu      sync.Mutex
	timer   *time.Timer
	loading bool
	loaded  bool
	closed  bool

	saveMu sync.Mutex
	saving atomic.Bool
}

// NewSyncAdapter wires store to backend. A non-positive debounce uses DefaultSaveDebounce.
func NewSyncAdapter(store *RuleStore, backend Backend, debounce time.Duration) *SyncAdapter {
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	a := &SyncAdapter{
		store:    store,
		backend:  backend,
		debounce: debounce,
	}
	store.OnChange(a.ScheduleSave)
	return a
}

// SetEventPublisher sets where save notifications go. nil disables them.
func (a *SyncAdapter) SetEventPublisher(p EventPublisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = p
}

// Load replaces the store's state with the backend's. A call made while another load is in
// flight returns nil without loading. On error the store is left as it was.
func (a *SyncAdapter) Load(ctx context.Context) error {
	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		logger.Debug("SyncAdapter.Load: load already in flight, skipping")
		return nil
	}
	a.loading = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.loading = false
		a.mu.Unlock()
	}()

	state, err := a.backend.Load(ctx)
	if err != nil {
		logger.Error("SyncAdapter.Load: failed to load mapping state: %v", err)
		return fmt.Errorf("loading mapping state: %w", err)
	}

	a.store.Replace(state)

	a.mu.Lock()
	a.loaded = true
	a.mu.Unlock()

	logger.Info("SyncAdapter.Load: loaded %d rules, %d custom rules, %d channel exclusions",
		len(state.Rules), len(state.CustomReplaceRules), len(state.Exclusions))
	return nil
}

// Loaded reports whether a load has completed successfully.
func (a *SyncAdapter) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

// Saving reports whether a save is in flight.
func (a *SyncAdapter) Saving() bool {
	return a.saving.Load()
}

// ScheduleSave (re)arms the debounce timer. It is the store's change hook.
func (a *SyncAdapter) ScheduleSave() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded || a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.debounce, a.fire)
}

func (a *SyncAdapter) fire() {
	if !a.saveMu.TryLock() {
		logger.Debug("SyncAdapter: save already in flight, dropping debounced save")
		return
	}
	defer a.saveMu.Unlock()
	if err := a.saveLocked(context.Background()); err != nil {
		logger.Error("SyncAdapter: failed to save mapping state: %v", err)
	}
}

// Flush cancels any pending timer and saves immediately, waiting for an in-flight save first.
// Unlike debounced saves, the error is returned.
func (a *SyncAdapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	return a.saveLocked(ctx)
}

func (a *SyncAdapter) saveLocked(ctx context.Context) error {
	a.saving.Store(true)
	defer a.saving.Store(false)

	state := a.store.Snapshot()
	if err := a.backend.Save(ctx, state); err != nil {
		return fmt.Errorf("saving mapping state: %w", err)
	}
	logger.Debug("SyncAdapter: saved %d rules, %d custom rules, %d channel exclusions",
		len(state.Rules), len(state.CustomReplaceRules), len(state.Exclusions))

	a.mu.Lock()
	events := a.events
	a.mu.Unlock()
	if events != nil {
		payload := map[string]int{
			"rules":       len(state.Rules),
			"customRules": len(state.CustomReplaceRules),
			"exclusions":  len(state.Exclusions),
		}
		if err := events.Publish(EventRulesSaved, payload); err != nil {
			logger.Warn("SyncAdapter: failed to publish %s: %v", EventRulesSaved, err)
		}
	}
	return nil
}

// Close stops the timer and, if state was loaded, flushes it one last time.
func (a *SyncAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	loaded := a.loaded
	a.mu.Unlock()
	if !loaded {
		return nil
	}
	return a.Flush(ctx)
}
