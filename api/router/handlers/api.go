package handlers

import (
	"context"
	"time"

	"modelmap/core"
)

// API holds the services the HTTP handlers operate on.
type API struct {
	Store    *core.RuleStore
	Sync     *core.SyncAdapter    // nil when running without persistence
	Channels *core.ChannelService // nil when no upstream is wired
	Now      func() time.Time
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// reload re-reads persisted state into the store after the database was written directly.
func (a *API) reload(ctx context.Context) error {
	if a.Sync == nil {
		return nil
	}
	return a.Sync.Load(ctx)
}
