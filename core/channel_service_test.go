package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"modelmap/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	channels []models.Channel
	models   map[int64][]string
	listErr  error
	updates  []models.ChannelUpdate
}

func (f *fakeSource) ListChannels(ctx context.Context) ([]models.Channel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Channel(nil), f.channels...), nil
}

func (f *fakeSource) FetchModels(ctx context.Context, channelID int64) ([]string, error) {
	list, ok := f.models[channelID]
	if !ok {
		return nil, &UpstreamError{Message: "provider unreachable"}
	}
	return list, nil
}

func (f *fakeSource) UpdateChannel(ctx context.Context, update models.ChannelUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return nil
}

func staticSource(src ChannelSource) SourceProvider {
	return func(ctx context.Context) (ChannelSource, error) { return src, nil }
}

func testChannels() []models.Channel {
	return []models.Channel{
		{ID: 1, Name: "old", Models: "gpt-4", ModelMapping: `{"gpt-4":"gpt-4-0613"}`},
		{ID: 3, Name: "newest", Models: "claude-3"},
		{ID: 2, Name: "middle", Models: "a,b"},
	}
}

func TestLoadChannelsSortsNewestFirst(t *testing.T) {
	svc := NewChannelService(NewRuleStore(), staticSource(&fakeSource{channels: testChannels()}), 2)
	assert.False(t, svc.HasCachedData())

	channels, err := svc.LoadChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{channels[0].ID, channels[1].ID, channels[2].ID})
	assert.True(t, svc.HasCachedData())

	_, err = svc.Channel(42)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestLoadChannelsErrors(t *testing.T) {
	svc := NewChannelService(NewRuleStore(), func(ctx context.Context) (ChannelSource, error) {
		return nil, ErrUpstreamNotConfigured
	}, 0)
	_, err := svc.LoadChannels(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamNotConfigured)

	boom := errors.New("boom")
	svc = NewChannelService(NewRuleStore(), staticSource(&fakeSource{listErr: boom}), 0)
	_, err = svc.LoadChannels(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLoadUpstreamModelsFallsBack(t *testing.T) {
	src := &fakeSource{channels: testChannels(), models: map[int64][]string{3: {"claude-3-opus", "claude-3-haiku"}}}
	svc := NewChannelService(NewRuleStore(), staticSource(src), 2)
	_, err := svc.LoadChannels(context.Background())
	require.NoError(t, err)

	list, ok, err := svc.LoadUpstreamModels(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"claude-3-opus", "claude-3-haiku"}, list)

	list, ok, err = svc.LoadUpstreamModels(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"gpt-4-0613"}, list, "configured models mapped back to provider names")

	_, _, err = svc.LoadUpstreamModels(context.Background(), 99)
	assert.ErrorIs(t, err, ErrChannelNotFound)

	// A reload keeps the fetched lists.
	_, err = svc.LoadChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-3-opus", "claude-3-haiku"}, svc.ChannelModels(3))
}

func TestLoadAllUpstreamModels(t *testing.T) {
	src := &fakeSource{channels: testChannels(), models: map[int64][]string{2: {"a", "b", "c"}, 3: {"claude-3"}}}
	svc := NewChannelService(NewRuleStore(), staticSource(src), 2)
	_, err := svc.LoadChannels(context.Background())
	require.NoError(t, err)

	summary := svc.LoadAllUpstreamModels(context.Background())
	assert.Equal(t, ModelFetchSummary{Channels: 3, Fetched: 2, FellBack: 1}, summary)
	assert.Equal(t, []string{"a", "b", "c"}, svc.ChannelModels(2))
	assert.Equal(t, []string{}, svc.ChannelModels(404))
}

func TestPreviewAndApply(t *testing.T) {
	store := NewRuleStore()
	store.AddRule("claude-3-opus-20240229", "claude-3-opus")
	store.AddRule("claude-3-opus-latest", "claude-3-opus")

	src := &fakeSource{
		channels: []models.Channel{{ID: 5, Name: "anthropic", Models: "x"}},
		models:   map[int64][]string{5: {"claude-3-opus-20240229", "claude-3-opus-latest", "claude-3-haiku"}},
	}
	svc := NewChannelService(store, staticSource(src), 1)
	pub := &recordingPublisher{}
	svc.SetEventPublisher(pub)
	_, err := svc.LoadChannels(context.Background())
	require.NoError(t, err)
	_, _, err = svc.LoadUpstreamModels(context.Background(), 5)
	require.NoError(t, err)

	preview, err := svc.Preview(5)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus,claude-3-haiku", preview.Models)
	assert.JSONEq(t, `{"claude-3-opus":"claude-3-opus-latest"}`, preview.ModelMapping)
	require.Len(t, preview.Conflicts, 1)

	_, err = svc.Apply(context.Background(), 5, false)
	assert.ErrorIs(t, err, ErrDuplicateTargets)
	assert.Empty(t, src.updates)

	store.SetChannelExclusion(5, []string{"claude-3-opus-latest"})
	applied, err := svc.Apply(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Empty(t, applied.Conflicts)
	require.Len(t, src.updates, 1)
	assert.Equal(t, models.ChannelUpdate{
		ID:           5,
		Models:       "claude-3-opus,claude-3-haiku",
		ModelMapping: `{"claude-3-opus":"claude-3-opus-20240229"}`,
	}, src.updates[0])
	assert.Equal(t, 1, pub.count())

	ch, err := svc.Channel(5)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus,claude-3-haiku", ch.Models)

	_, err = svc.Preview(6)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestApplyForceIgnoresConflicts(t *testing.T) {
	store := NewRuleStore()
	store.AddRule("a1", "a")
	store.AddRule("a2", "a")
	src := &fakeSource{channels: []models.Channel{{ID: 1, Models: "a1,a2"}}}
	svc := NewChannelService(store, staticSource(src), 1)
	_, err := svc.LoadChannels(context.Background())
	require.NoError(t, err)

	preview, err := svc.Apply(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Len(t, preview.Conflicts, 1)
	assert.Len(t, src.updates, 1)
}

func TestImportFromChannelsLoadsWhenEmpty(t *testing.T) {
	store := NewRuleStore()
	svc := NewChannelService(store, staticSource(&fakeSource{channels: testChannels()}), 1)

	result, err := svc.ImportFromChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Imported)
	target, ok := store.GetTargetModel("gpt-4-0613")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4", target)
}
