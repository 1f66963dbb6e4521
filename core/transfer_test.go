package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"modelmap/models"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportRulesGolden(t *testing.T) {
	s := newTestStore()
	s.SetClock(func() time.Time {
		return time.Date(2024, 5, 6, 9, 8, 9, 123456789, time.FixedZone("CEST", 2*3600))
	})
	s.AddRule("gpt-4-0613", "gpt-4")
	s.AddCustomRule("-preview", "")

	data, err := s.ExportRules()
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "export", data)
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "mapping-rules-2025-01-01.json", ExportFileName(ts))
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore()
	src.AddRule("a", "A")
	src.AddRule("b", "B")
	src.AddCustomRule("x", "y")
	src.SetProcessConfig(models.ProcessRuleConfig{FormatModelName: true, EnableCustomRules: true})

	data, err := src.ExportRules()
	require.NoError(t, err)

	dst := newTestStore()
	result, err := dst.ImportRules(data, models.SyncModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, src.Rules(), dst.Rules())
	assert.Equal(t, src.CustomRules(), dst.CustomRules())
	assert.Equal(t, src.ProcessConfig(), dst.ProcessConfig())
}

func TestImportRulesValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		mode    models.SyncMode
		message string
	}{
		{"bad mode", `{"rules":[]}`, "merge", `unknown import mode "merge"`},
		{"not json", `{"rules":`, models.SyncModeAppend, "failed to parse JSON"},
		{"missing rules", `{"version":1}`, models.SyncModeAppend, "missing rules array"},
		{"rules not an array", `{"rules":{}}`, models.SyncModeAppend, "missing rules array"},
		{
			"non-string field",
			`{"rules":[{"sourceModel":"a","targetModel":"A"},{"sourceModel":"b","targetModel":2}]}`,
			models.SyncModeOverwrite,
			"invalid rule at index 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			s.AddRule("keep", "me")

			_, err := s.ImportRules([]byte(tt.payload), tt.mode)

			var validation *ValidationError
			require.True(t, errors.As(err, &validation))
			assert.Contains(t, validation.Message, tt.message)
			assert.Equal(t, []models.MappingRule{{SourceModel: "keep", TargetModel: "me"}}, s.Rules(), "nothing is mutated")
		})
	}
}

const importDoc = `{
  "version": 1,
  "rules": [
    {"sourceModel": "a", "targetModel": "imported-a"},
    {"sourceModel": "c", "targetModel": "C"}
  ],
  "customReplaceRules": [
    {"id": "keep-id", "priority": 5, "search": "x", "replace": "y", "enabled": false},
    {"search": "new", "replace": ""}
  ],
  "processConfig": {"formatModelName": true, "toLowerCase": false}
}`

func TestImportRulesAppend(t *testing.T) {
	s := newTestStore()
	s.AddRule("a", "A")
	s.AddCustomRule("x", "y")
	before := s.ProcessConfig()

	result, err := s.ImportRules([]byte(importDoc), models.SyncModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	assert.Equal(t, []models.MappingRule{
		{SourceModel: "a", TargetModel: "A"},
		{SourceModel: "c", TargetModel: "C"},
	}, s.Rules())

	custom := s.CustomRules()
	require.Len(t, custom, 2, "the x/y pair already exists")
	assert.Equal(t, "id-1", custom[0].ID)
	assert.Equal(t, "new", custom[1].Search)
	assert.Equal(t, 2, custom[1].Priority)
	assert.True(t, custom[1].Enabled)

	assert.Equal(t, before, s.ProcessConfig(), "append leaves the process config alone")
}

func TestImportRulesOverwrite(t *testing.T) {
	s := newTestStore()
	s.AddRule("a", "A")
	s.AddRule("b", "B")
	s.AddCustomRule("old", "")

	_, err := s.ImportRules([]byte(importDoc), models.SyncModeOverwrite)
	require.NoError(t, err)

	assert.Equal(t, []models.MappingRule{
		{SourceModel: "a", TargetModel: "imported-a"},
		{SourceModel: "c", TargetModel: "C"},
	}, s.Rules())
	assert.Equal(t, []models.CustomReplaceRule{
		{ID: "keep-id", Priority: 5, Search: "x", Replace: "y", Enabled: false},
		{ID: "id-2", Priority: 2, Search: "new", Enabled: true},
	}, s.CustomRules())
	assert.Equal(t, models.ProcessRuleConfig{FormatModelName: true, EnableCustomRules: false, ToLowerCase: false}, s.ProcessConfig())
}

func TestImportRulesOverwriteKeepsFirstDuplicate(t *testing.T) {
	s := newTestStore()
	s.AddRule("old", "")

	doc := `{"rules":[
		{"sourceModel":"x","targetModel":"1"},
		{"sourceModel":"y","targetModel":"y"},
		{"sourceModel":"x","targetModel":"2"}
	]}`
	result, err := s.ImportRules([]byte(doc), models.SyncModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, []models.MappingRule{
		{SourceModel: "x", TargetModel: "1"},
		{SourceModel: "y", TargetModel: "y"},
	}, s.Rules())

	s.RemoveRule("x")
	assert.False(t, s.HasRule("x"))
}

func TestImportRulesWithoutCustomRulesKeepsThem(t *testing.T) {
	s := newTestStore()
	s.AddCustomRule("x", "y")

	_, err := s.ImportRules([]byte(`{"rules":[]}`), models.SyncModeOverwrite)
	require.NoError(t, err)
	assert.Empty(t, s.Rules())
	assert.Len(t, s.CustomRules(), 1)
}

func TestImportFromChannels(t *testing.T) {
	s := newTestStore()
	s.AddRule("claude-3", "claude-3")

	channels := []models.Channel{
		{
			ID:           2,
			Name:         "primary",
			Models:       "gpt-4, claude-3,,",
			ModelMapping: `{"gpt-4":"gpt-4-0613","zeta":"zeta-src","alpha":"alpha-src","blank":"","num":3}`,
		},
		{ID: 3, Name: "broken", Models: "ignored", ModelMapping: `{not json`},
		{ID: 4, Name: "plain", Models: "mistral-large"},
	}

	result := s.ImportFromChannels(channels)

	assert.Equal(t, models.ImportFromChannelsResult{Imported: 4, Skipped: 1}, result)
	assert.Equal(t, []models.MappingRule{
		{SourceModel: "claude-3", TargetModel: "claude-3"},
		{SourceModel: "gpt-4-0613", TargetModel: "gpt-4"},
		{SourceModel: "alpha-src", TargetModel: "alpha"},
		{SourceModel: "zeta-src", TargetModel: "zeta"},
		{SourceModel: "mistral-large", TargetModel: "mistral-large"},
	}, s.Rules())
}

func TestImportFromChannelsRerun(t *testing.T) {
	s := newTestStore()
	channels := []models.Channel{{ID: 1, Models: "a,b", ModelMapping: `{"a":"a-orig"}`}}

	assert.Equal(t, models.ImportFromChannelsResult{Imported: 2, Skipped: 0}, s.ImportFromChannels(channels))
	assert.Equal(t, models.ImportFromChannelsResult{Imported: 0, Skipped: 2}, s.ImportFromChannels(channels))
	assert.Equal(t, []models.MappingRule{
		{SourceModel: "a-orig", TargetModel: "a"},
		{SourceModel: "b", TargetModel: "b"},
	}, s.Rules())
}

func TestExportDocumentShape(t *testing.T) {
	s := newTestStore()
	data, err := s.ExportRules()
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `[]`, string(doc["rules"]))
	assert.JSONEq(t, `[]`, string(doc["customReplaceRules"]))
	assert.JSONEq(t, `1`, string(doc["version"]))
}
