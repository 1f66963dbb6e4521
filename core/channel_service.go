package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"modelmap/logger"
	"modelmap/models"

	"github.com/sourcegraph/conc/pool"
)

// ErrChannelNotFound is returned for channel ids that are not in the loaded channel list.
var ErrChannelNotFound = errors.New("channel not found")

// ErrDuplicateTargets is returned by Apply when the generated config hides source models
// behind a shared target and the caller did not force the push.
var ErrDuplicateTargets = errors.New("generated config maps several source models onto one target")

// DefaultFetchConcurrency bounds concurrent fetch_models calls.
const DefaultFetchConcurrency = 8

// ChannelSource is the subset of the gateway API the channel service needs.
type ChannelSource interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)
	FetchModels(ctx context.Context, channelID int64) ([]string, error)
	UpdateChannel(ctx context.Context, update models.ChannelUpdate) error
}

// SourceProvider returns the gateway client to use. It is called per operation so that
// upstream settings changed at runtime take effect.
type SourceProvider func(ctx context.Context) (ChannelSource, error)

// ModelFetchSummary counts the outcome of LoadAllUpstreamModels.
type ModelFetchSummary struct {
	Channels int `json:"channels"`
	Fetched  int `json:"fetched"`
	FellBack int `json:"fellBack"`
}

// ChannelService caches upstream channels and turns the rule store into channel updates.
type ChannelService struct {
	store       *RuleStore
	source      SourceProvider
	concurrency int
	events      EventPublisher

	mu       sync.RWMutex
	channels []models.Channel
}

// NewChannelService returns a service with an empty channel cache.
func NewChannelService(store *RuleStore, source SourceProvider, concurrency int) *ChannelService {
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	return &ChannelService{
		store:       store,
		source:      source,
		concurrency: concurrency,
	}
}

// SetEventPublisher sets where channel update notifications go. nil disables them.
func (s *ChannelService) SetEventPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = p
}

// LoadChannels refreshes the cache from the gateway, newest channel first. Upstream model lists
// already fetched for a channel are carried over.
func (s *ChannelService) LoadChannels(ctx context.Context) ([]models.Channel, error) {
	src, err := s.source(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := src.ListChannels(ctx)
	if err != nil {
		logger.Error("ChannelService.LoadChannels: %v", err)
		return nil, err
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].ID > channels[j].ID
	})

	s.mu.Lock()
	previous := make(map[int64][]string, len(s.channels))
	for _, ch := range s.channels {
		if len(ch.UpstreamModels) > 0 {
			previous[ch.ID] = ch.UpstreamModels
		}
	}
	for i := range channels {
		if len(channels[i].UpstreamModels) == 0 {
			channels[i].UpstreamModels = previous[channels[i].ID]
		}
	}
	s.channels = channels
	s.mu.Unlock()

	logger.Info("ChannelService: loaded %d channels", len(channels))
	return s.Channels(), nil
}

// Channels returns a copy of the cached channel list.
func (s *ChannelService) Channels() []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Channel, len(s.channels))
	for i, ch := range s.channels {
		ch.UpstreamModels = append([]string(nil), ch.UpstreamModels...)
		out[i] = ch
	}
	return out
}

// HasCachedData reports whether channels have been loaded.
func (s *ChannelService) HasCachedData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels) > 0
}

// Channel returns the cached channel with the given id.
func (s *ChannelService) Channel(channelID int64) (models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(channelID)
	if i == -1 {
		return models.Channel{}, fmt.Errorf("channel %d: %w", channelID, ErrChannelNotFound)
	}
	ch := s.channels[i]
	ch.UpstreamModels = append([]string(nil), ch.UpstreamModels...)
	return ch, nil
}

func (s *ChannelService) indexLocked(channelID int64) int {
	for i := range s.channels {
		if s.channels[i].ID == channelID {
			return i
		}
	}
	return -1
}

// LoadUpstreamModels fetches the provider's model list for one channel and caches it. When the
// gateway call fails the channel's enabled models, mapped back through its rename map, are
// cached instead; the fetch error is logged and reported through the returned bool.
func (s *ChannelService) LoadUpstreamModels(ctx context.Context, channelID int64) ([]string, bool, error) {
	ch, err := s.Channel(channelID)
	if err != nil {
		return nil, false, err
	}

	var fetched []string
	src, err := s.source(ctx)
	if err == nil {
		fetched, err = src.FetchModels(ctx, channelID)
	}
	ok := err == nil
	if !ok {
		logger.Warn("ChannelService: fetch_models for channel %d (%s) failed, falling back to configured models: %v", ch.ID, ch.Name, err)
		fetched = ch.OriginalModels()
	}

	s.mu.Lock()
	if i := s.indexLocked(channelID); i != -1 {
		s.channels[i].UpstreamModels = fetched
	}
	s.mu.Unlock()

	return append([]string(nil), fetched...), ok, nil
}

// LoadAllUpstreamModels refreshes every cached channel's model list using a bounded worker
// pool. Every channel is attempted; failures fall back as in LoadUpstreamModels.
func (s *ChannelService) LoadAllUpstreamModels(ctx context.Context) ModelFetchSummary {
	channels := s.Channels()
	summary := ModelFetchSummary{Channels: len(channels)}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, ch := range channels {
		id := ch.ID
		p.Go(func() {
			_, ok, err := s.LoadUpstreamModels(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				logger.Warn("ChannelService: channel %d vanished while loading models: %v", id, err)
			case ok:
				summary.Fetched++
			default:
				summary.FellBack++
			}
		})
	}
	p.Wait()

	logger.Info("ChannelService: upstream models for %d channels (fetched=%d, fallback=%d)",
		summary.Channels, summary.Fetched, summary.FellBack)
	return summary
}

// ChannelModels returns the cached upstream models of a channel, or its configured models mapped
// back to provider names when none were fetched. Unknown channels yield an empty list.
func (s *ChannelService) ChannelModels(channelID int64) []string {
	ch, err := s.Channel(channelID)
	if err != nil {
		return []string{}
	}
	if len(ch.UpstreamModels) > 0 {
		return ch.UpstreamModels
	}
	return ch.OriginalModels()
}

// Preview generates the config a channel would be pushed with and the conflicts it contains.
func (s *ChannelService) Preview(channelID int64) (models.ChannelPreview, error) {
	ch, err := s.Channel(channelID)
	if err != nil {
		return models.ChannelPreview{}, err
	}
	upstream := s.ChannelModels(channelID)
	cfg := s.store.GenerateChannelConfig(channelID, upstream)
	mapping, err := cfg.ModelMapping()
	if err != nil {
		return models.ChannelPreview{}, fmt.Errorf("encoding rename map of channel %d: %w", channelID, err)
	}
	return models.ChannelPreview{
		ChannelID:      ch.ID,
		ChannelName:    ch.Name,
		UpstreamModels: upstream,
		Config:         cfg,
		Models:         cfg.Models(),
		ModelMapping:   mapping,
		Conflicts:      s.store.DetectDuplicateTargets(channelID, upstream),
	}, nil
}

// Apply pushes the generated config to the gateway. It refuses with ErrDuplicateTargets when the
// config has conflicts unless force is set. The cached channel is updated on success.
func (s *ChannelService) Apply(ctx context.Context, channelID int64, force bool) (models.ChannelPreview, error) {
	preview, err := s.Preview(channelID)
	if err != nil {
		return models.ChannelPreview{}, err
	}
	if len(preview.Conflicts) > 0 && !force {
		return preview, fmt.Errorf("channel %d has %d conflicting targets: %w", channelID, len(preview.Conflicts), ErrDuplicateTargets)
	}

	src, err := s.source(ctx)
	if err != nil {
		return preview, err
	}
	update := models.ChannelUpdate{
		ID:           channelID,
		Models:       preview.Models,
		ModelMapping: preview.ModelMapping,
	}
	if err := src.UpdateChannel(ctx, update); err != nil {
		logger.Error("ChannelService.Apply: %v", err)
		return preview, err
	}

	s.mu.Lock()
	if i := s.indexLocked(channelID); i != -1 {
		s.channels[i].Models = update.Models
		s.channels[i].ModelMapping = update.ModelMapping
	}
	events := s.events
	s.mu.Unlock()

	logger.Info("ChannelService: applied %d models to channel %d (%s)", len(preview.Config.EnabledModels), channelID, preview.ChannelName)
	if events != nil {
		if err := events.Publish(EventChannelUpdated, update); err != nil {
			logger.Warn("ChannelService: failed to publish %s: %v", EventChannelUpdated, err)
		}
	}
	return preview, nil
}

// ImportFromChannels derives rules from the cached channels, loading them first when the cache
// is empty.
func (s *ChannelService) ImportFromChannels(ctx context.Context) (models.ImportFromChannelsResult, error) {
	if !s.HasCachedData() {
		if _, err := s.LoadChannels(ctx); err != nil {
			return models.ImportFromChannelsResult{}, err
		}
	}
	return s.store.ImportFromChannels(s.Channels()), nil
}
