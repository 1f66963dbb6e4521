package database

import (
	"context"
	"path/filepath"
	"testing"

	"modelmap/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "data", "modelmap.db")))
	t.Cleanup(func() { CloseDB() })
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelmap.db")
	require.NoError(t, InitDB(path))
	require.NoError(t, CloseDB())
	require.NoError(t, InitDB(path))
	require.NoError(t, CloseDB())
}

func TestMappingRulesRoundTrip(t *testing.T) {
	setupTestDB(t)

	rules, err := GetMappingRules()
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, ReplaceMappingRules([]models.MappingRule{
		{SourceModel: "z-model", TargetModel: "z"},
		{SourceModel: "", TargetModel: "dropped"},
		{SourceModel: "a-model", TargetModel: "a"},
		{SourceModel: "z-model", TargetModel: "ignored"},
	}))

	rules, err = GetMappingRules()
	require.NoError(t, err)
	assert.Equal(t, []models.MappingRule{
		{SourceModel: "z-model", TargetModel: "z"},
		{SourceModel: "a-model", TargetModel: "a"},
	}, rules, "insertion order is kept and the first source wins")

	require.NoError(t, ReplaceMappingRules(nil))
	rules, err = GetMappingRules()
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCustomRulesRoundTrip(t *testing.T) {
	setupTestDB(t)

	in := []models.CustomReplaceRule{
		{ID: "b", Priority: 2, Search: "-preview", Replace: "", Enabled: true},
		{ID: "", Priority: 9, Search: "no id"},
		{ID: "a", Priority: 1, Search: "GPT", Replace: "gpt", Enabled: false},
	}
	require.NoError(t, ReplaceCustomRules(in))

	out, err := GetCustomRules()
	require.NoError(t, err)
	assert.Equal(t, []models.CustomReplaceRule{in[0], in[2]}, out)
}

func TestChannelExclusionsRoundTrip(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, ReplaceChannelExclusions([]models.ChannelExclusion{
		{ChannelID: 3, ExcludedModels: []string{"a", "b"}},
		{ChannelID: 1, ExcludedModels: nil},
	}))
	_, err := DB.Exec("INSERT INTO channel_exclusions (channel_id, position, excluded_models) VALUES (9, 5, '{broken')")
	require.NoError(t, err)

	out, err := GetChannelExclusions()
	require.NoError(t, err)
	assert.Equal(t, []models.ChannelExclusion{
		{ChannelID: 3, ExcludedModels: []string{"a", "b"}},
		{ChannelID: 1, ExcludedModels: []string{}},
		{ChannelID: 9, ExcludedModels: []string{}},
	}, out)
}

func TestAppConfig(t *testing.T) {
	setupTestDB(t)

	cfg, err := GetAppConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.SyncMode)
	assert.Nil(t, cfg.ProcessConfig)

	mode := models.SyncModeOverwrite
	pc := models.ProcessRuleConfig{FormatModelName: true}
	require.NoError(t, SetAppConfig(models.AppConfig{SyncMode: &mode, ProcessConfig: &pc}))

	raw, err := GetSetting(models.SyncModeKey)
	require.NoError(t, err)
	assert.Equal(t, `"overwrite"`, raw, "settings are stored JSON-encoded")

	cfg, err = GetAppConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.SyncMode)
	require.NotNil(t, cfg.ProcessConfig)
	assert.Equal(t, mode, *cfg.SyncMode)
	assert.Equal(t, pc, *cfg.ProcessConfig)
}

func TestAppConfigTolerantDecoding(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetSetting(models.SyncModeKey, "append"))
	require.NoError(t, SetSetting(models.ProcessConfigKey, `{"formatModelName":true}`))

	cfg, err := GetAppConfig()
	require.NoError(t, err)
	assert.Equal(t, models.SyncModeAppend, *cfg.SyncMode, "raw values are accepted")
	assert.Equal(t, models.ProcessRuleConfig{FormatModelName: true, ToLowerCase: true}, *cfg.ProcessConfig,
		"missing booleans keep their default")

	require.NoError(t, SetSetting(models.ProcessConfigKey, `not json`))
	cfg, err = GetAppConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.ProcessConfig)
}

func TestSettings(t *testing.T) {
	setupTestDB(t)

	value, err := GetSetting("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, SetSettingsJSON(map[string]interface{}{
		"syncMode": "overwrite",
		"limits":   map[string]int{"pages": 3},
	}))
	require.NoError(t, SetSetting("plain", "not-json"))

	all, err := GetAllSettings()
	require.NoError(t, err)
	assert.Equal(t, "overwrite", all["syncMode"])
	assert.Equal(t, map[string]interface{}{"pages": float64(3)}, all["limits"])
	assert.Equal(t, "not-json", all["plain"])
}

func TestUpstreamConfigSetting(t *testing.T) {
	setupTestDB(t)

	_, ok, err := GetUpstreamConfig()
	require.NoError(t, err)
	assert.False(t, ok)

	want := models.UpstreamConfig{BaseURL: "https://gw.example.com", Token: "t", UserID: "1"}
	require.NoError(t, SetUpstreamConfig(want))

	got, ok, err := GetUpstreamConfig()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestMappingBackendSaveLoad(t *testing.T) {
	setupTestDB(t)
	backend := NewMappingBackend(nil)
	ctx := context.Background()

	empty, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Rules)
	assert.Nil(t, empty.Config.SyncMode)

	mode := models.SyncModeAppend
	pc := models.DefaultProcessConfig()
	state := models.MappingState{
		Rules:              []models.MappingRule{{SourceModel: "a", TargetModel: "A"}},
		CustomReplaceRules: []models.CustomReplaceRule{{ID: "1", Priority: 1, Search: "x", Enabled: true}},
		Config:             models.AppConfig{SyncMode: &mode, ProcessConfig: &pc},
		Exclusions:         []models.ChannelExclusion{{ChannelID: 4, ExcludedModels: []string{"m"}}},
	}
	require.NoError(t, backend.Save(ctx, state))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	// Save is a full replace.
	state.Rules = []models.MappingRule{{SourceModel: "b", TargetModel: "B"}}
	state.Exclusions = []models.ChannelExclusion{}
	require.NoError(t, backend.Save(ctx, state))
	loaded, err = backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Rules, loaded.Rules)
	assert.Empty(t, loaded.Exclusions)
}

func TestMappingBackendWithoutDB(t *testing.T) {
	require.NoError(t, CloseDB())
	_, err := NewMappingBackend(nil).Load(context.Background())
	assert.Error(t, err)
}
