package models

// SyncMode controls how imported rule sets are merged with the local rule set.
type SyncMode string

const (
	SyncModeAppend    SyncMode = "append"
	SyncModeOverwrite SyncMode = "overwrite"
)

// Valid reports whether m is one of the known sync modes.
func (m SyncMode) Valid() bool {
	return m == SyncModeAppend || m == SyncModeOverwrite
}

// MappingRule renames an upstream (source) model to its canonical (target) name.
type MappingRule struct {
	SourceModel string `json:"sourceModel" yaml:"sourceModel" example:"gpt-4-0613"` // Model name as advertised by the upstream channel.
	TargetModel string `json:"targetModel" yaml:"targetModel" example:"gpt-4"`      // Canonical name exposed to clients.
}

// CustomReplaceRule is a literal substring substitution applied by the transform pipeline.
type CustomReplaceRule struct {
	ID       string `json:"id" yaml:"id" readOnly:"true"`
	Priority int    `json:"priority" yaml:"priority" example:"1"` // Lower runs earlier. Not required to be unique.
	Search   string `json:"search" yaml:"search" example:"-Preview"`
	Replace  string `json:"replace" yaml:"replace" example:""`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// CustomRuleUpdate carries a partial update for a CustomReplaceRule. Nil fields are left untouched.
type CustomRuleUpdate struct {
	Priority *int    `json:"priority,omitempty"`
	Search   *string `json:"search,omitempty"`
	Replace  *string `json:"replace,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// ProcessRuleConfig selects the steps of the transform pipeline.
type ProcessRuleConfig struct {
	FormatModelName   bool `json:"formatModelName" yaml:"formatModelName"`
	EnableCustomRules bool `json:"enableCustomRules" yaml:"enableCustomRules"`
	ToLowerCase       bool `json:"toLowerCase" yaml:"toLowerCase"`
}

// DefaultProcessConfig returns the process configuration a fresh store starts with.
func DefaultProcessConfig() ProcessRuleConfig {
	return ProcessRuleConfig{
		FormatModelName:   false,
		EnableCustomRules: false,
		ToLowerCase:       true,
	}
}

// ChannelExclusion lists source models that must be left out of a channel's generated config.
type ChannelExclusion struct {
	ChannelID      int64    `json:"channelId" yaml:"channelId"`
	ExcludedModels []string `json:"excludedModels" yaml:"excludedModels"`
}

// DuplicateInfo reports several source models collapsing onto one target model.
type DuplicateInfo struct {
	TargetModel  string   `json:"targetModel"`
	SourceModels []string `json:"sourceModels"`
}

// AppConfig is the persisted engine configuration. Nil fields were absent in storage.
type AppConfig struct {
	SyncMode      *SyncMode          `json:"syncMode,omitempty"`
	ProcessConfig *ProcessRuleConfig `json:"processConfig,omitempty"`
}

// MappingState is the full set of collections exchanged with the persistence backend.
type MappingState struct {
	Rules              []MappingRule       `json:"rules"`
	CustomReplaceRules []CustomReplaceRule `json:"customReplaceRules"`
	Config             AppConfig           `json:"config"`
	Exclusions         []ChannelExclusion  `json:"exclusions"`
}

// ExportDocument is the backup/restore format of a rule set.
type ExportDocument struct {
	Version            int                 `json:"version" yaml:"version"`
	ExportTime         string              `json:"exportTime" yaml:"exportTime"`
	Rules              []MappingRule       `json:"rules" yaml:"rules"`
	CustomReplaceRules []CustomReplaceRule `json:"customReplaceRules" yaml:"customReplaceRules"`
	ProcessConfig      ProcessRuleConfig   `json:"processConfig" yaml:"processConfig"`
}

// ExportVersion is the current ExportDocument version.
const ExportVersion = 1

// ImportRulesResult summarizes a successful ImportRules call.
type ImportRulesResult struct {
	Imported int    `json:"imported"`
	Message  string `json:"message"`
}

// ImportFromChannelsResult tallies rules derived from observed channel state.
type ImportFromChannelsResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
