package cmd

import (
	"context"
	"fmt"

	"modelmap/broker"
	"modelmap/config"
	"modelmap/core"
	"modelmap/database"
	"modelmap/logger"
	"modelmap/models"
)

// services bundles everything a command needs to work on the rule set.
type services struct {
	store     *core.RuleStore
	sync      *core.SyncAdapter
	channels  *core.ChannelService
	publisher *broker.Publisher
}

// resolveUpstream picks the upstream settings to use: the ones saved at runtime when complete,
// otherwise the file/env configuration.
func resolveUpstream() (models.UpstreamConfig, error) {
	stored, ok, err := database.GetUpstreamConfig()
	if err != nil {
		logger.Error("resolveUpstream: reading stored upstream settings: %v", err)
	}
	if ok {
		if resolved, err := core.ResolveUpstreamConfig(stored); err == nil {
			return resolved, nil
		}
		logger.Debug("resolveUpstream: stored upstream settings incomplete, falling back to config")
	}
	return core.ResolveUpstreamConfig(config.AppConfig.UpstreamSettings())
}

func upstreamSource(ctx context.Context) (core.ChannelSource, error) {
	cfg, err := resolveUpstream()
	if err != nil {
		return nil, err
	}
	client, err := core.NewUpstreamClient(cfg, config.AppConfig.Upstream.PageSize, config.AppConfig.Upstream.Timeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newServices builds the store, loads it from the database and wires the upstream and broker.
func newServices(ctx context.Context, withBroker bool) (*services, error) {
	store := core.NewRuleStore()
	adapter := core.NewSyncAdapter(store, database.NewMappingBackend(nil), config.AppConfig.Sync.SaveDebounce)
	if err := adapter.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	channels := core.NewChannelService(store, upstreamSource, config.AppConfig.Upstream.FetchConcurrency)
	svc := &services{store: store, sync: adapter, channels: channels}

	if withBroker && config.AppConfig.Broker.URL != "" {
		pub, err := broker.NewPublisher(broker.Config{
			URL:         config.AppConfig.Broker.URL,
			ClientID:    config.AppConfig.Broker.ClientID,
			Username:    config.AppConfig.Broker.Username,
			Password:    config.AppConfig.Broker.Password,
			TopicPrefix: config.AppConfig.Broker.TopicPrefix,
		})
		if err != nil {
			logger.Error("Broker unavailable, continuing without notifications: %v", err)
		} else {
			svc.publisher = pub
			adapter.SetEventPublisher(pub)
			channels.SetEventPublisher(pub)
		}
	}
	return svc, nil
}

// close flushes unsaved edits and disconnects the broker.
func (s *services) close(ctx context.Context) error {
	err := s.sync.Close(ctx)
	if s.publisher != nil {
		s.publisher.Close()
	}
	return err
}
