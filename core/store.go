package core

import (
	"sync"
	"time"

	"modelmap/models"

	"github.com/google/uuid"
)

// RuleStore owns the mapping rules, custom replace rules, channel exclusions, process
// configuration and sync mode. All access goes through its methods; every mutation completes
// under the store lock before any other call observes state, and then fires the change hook.
type RuleStore struct {
	mu sync.Mutex

	rules         []models.MappingRule
	customRules   []models.CustomReplaceRule
	exclusions    []models.ChannelExclusion
	processConfig models.ProcessRuleConfig
	syncMode      models.SyncMode

	newID    func() string
	now      func() time.Time
	onChange func()
}

// NewRuleStore returns an empty store with default settings.
func NewRuleStore() *RuleStore {
	return &RuleStore{
		rules:         []models.MappingRule{},
		customRules:   []models.CustomReplaceRule{},
		exclusions:    []models.ChannelExclusion{},
		processConfig: models.DefaultProcessConfig(),
		syncMode:      models.SyncModeAppend,
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
	}
}

// SetIDGenerator replaces the id generator used for new custom rules.
func (s *RuleStore) SetIDGenerator(gen func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = gen
}

// SetClock replaces the clock used to stamp exports.
func (s *RuleStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnChange registers fn to be called after every mutation. fn runs outside the store lock.
func (s *RuleStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// mutate runs fn under the lock and fires the change hook when fn reports a change.
func (s *RuleStore) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	hook := s.onChange
	s.mu.Unlock()
	if changed && hook != nil {
		hook()
	}
}

func (s *RuleStore) findRule(sourceModel string) int {
	for i := range s.rules {
		if s.rules[i].SourceModel == sourceModel {
			return i
		}
	}
	return -1
}

// AddRule appends a rule unless one already exists for sourceModel. An empty targetModel
// defaults to sourceModel. It reports whether the rule was added.
func (s *RuleStore) AddRule(sourceModel, targetModel string) bool {
	var added bool
	s.mutate(func() bool {
		added = s.addRuleLocked(sourceModel, targetModel)
		return added
	})
	return added
}

func (s *RuleStore) addRuleLocked(sourceModel, targetModel string) bool {
	if s.findRule(sourceModel) != -1 {
		return false
	}
	if targetModel == "" {
		targetModel = sourceModel
	}
	s.rules = append(s.rules, models.MappingRule{SourceModel: sourceModel, TargetModel: targetModel})
	return true
}

// RemoveRule deletes the rule for sourceModel, if any.
func (s *RuleStore) RemoveRule(sourceModel string) {
	s.mutate(func() bool {
		i := s.findRule(sourceModel)
		if i == -1 {
			return false
		}
		s.rules = append(s.rules[:i], s.rules[i+1:]...)
		return true
	})
}

// UpdateTargetModel changes the target of an existing rule. Unknown sources are ignored.
func (s *RuleStore) UpdateTargetModel(sourceModel, targetModel string) {
	s.mutate(func() bool {
		i := s.findRule(sourceModel)
		if i == -1 {
			return false
		}
		s.rules[i].TargetModel = targetModel
		return true
	})
}

// HasRule reports whether a rule exists for sourceModel.
func (s *RuleStore) HasRule(sourceModel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findRule(sourceModel) != -1
}

// GetTargetModel returns the target for sourceModel and whether a rule was found.
func (s *RuleStore) GetTargetModel(sourceModel string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findRule(sourceModel)
	if i == -1 {
		return "", false
	}
	return s.rules[i].TargetModel, true
}

// ClearRules removes every mapping rule. Custom rules and exclusions are kept.
func (s *RuleStore) ClearRules() {
	s.mutate(func() bool {
		s.rules = []models.MappingRule{}
		return true
	})
}

// Rules returns a copy of the mapping rules in insertion order.
func (s *RuleStore) Rules() []models.MappingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MappingRule{}, s.rules...)
}

// RuleCount returns the number of mapping rules.
func (s *RuleStore) RuleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// AutoProcessRules rewrites every rule's target model through the transform pipeline.
// The pipeline is applied to the current target, not the source.
func (s *RuleStore) AutoProcessRules() {
	s.mutate(func() bool {
		for i := range s.rules {
			s.rules[i].TargetModel = ApplyProcessRules(s.rules[i].TargetModel, s.processConfig, s.customRules)
		}
		return len(s.rules) > 0
	})
}

// AddCustomRule appends an enabled custom rule with a fresh id and a priority one above the
// current maximum (or 1 when there is none).
func (s *RuleStore) AddCustomRule(search, replace string) models.CustomReplaceRule {
	var rule models.CustomReplaceRule
	s.mutate(func() bool {
		maxPriority := 0
		for _, r := range s.customRules {
			if r.Priority > maxPriority {
				maxPriority = r.Priority
			}
		}
		rule = models.CustomReplaceRule{
			ID:       s.newID(),
			Priority: maxPriority + 1,
			Search:   search,
			Replace:  replace,
			Enabled:  true,
		}
		s.customRules = append(s.customRules, rule)
		return true
	})
	return rule
}

func (s *RuleStore) findCustomRule(id string) int {
	for i := range s.customRules {
		if s.customRules[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveCustomRule deletes the custom rule with the given id, if any.
func (s *RuleStore) RemoveCustomRule(id string) {
	s.mutate(func() bool {
		i := s.findCustomRule(id)
		if i == -1 {
			return false
		}
		s.customRules = append(s.customRules[:i], s.customRules[i+1:]...)
		return true
	})
}

// UpdateCustomRule applies the non-nil fields of upd to the custom rule with the given id.
// It reports whether the rule exists.
func (s *RuleStore) UpdateCustomRule(id string, upd models.CustomRuleUpdate) bool {
	var found bool
	s.mutate(func() bool {
		i := s.findCustomRule(id)
		if i == -1 {
			return false
		}
		found = true
		r := &s.customRules[i]
		if upd.Priority != nil {
			r.Priority = *upd.Priority
		}
		if upd.Search != nil {
			r.Search = *upd.Search
		}
		if upd.Replace != nil {
			r.Replace = *upd.Replace
		}
		if upd.Enabled != nil {
			r.Enabled = *upd.Enabled
		}
		return true
	})
	return found
}

// CustomRules returns a copy of the custom replace rules in insertion order.
func (s *RuleStore) CustomRules() []models.CustomReplaceRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CustomReplaceRule{}, s.customRules...)
}

func (s *RuleStore) findExclusion(channelID int64) int {
	for i := range s.exclusions {
		if s.exclusions[i].ChannelID == channelID {
			return i
		}
	}
	return -1
}

// GetChannelExclusion returns the excluded models of a channel; empty for unknown channels.
func (s *RuleStore) GetChannelExclusion(channelID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exclusionLocked(channelID)
}

func (s *RuleStore) exclusionLocked(channelID int64) []string {
	i := s.findExclusion(channelID)
	if i == -1 {
		return []string{}
	}
	return append([]string{}, s.exclusions[i].ExcludedModels...)
}

// SetChannelExclusion replaces the exclusion set of a channel, creating it when missing.
func (s *RuleStore) SetChannelExclusion(channelID int64, excludedModels []string) {
	s.mutate(func() bool {
		set := dedupe(excludedModels)
		if i := s.findExclusion(channelID); i != -1 {
			s.exclusions[i].ExcludedModels = set
		} else {
			s.exclusions = append(s.exclusions, models.ChannelExclusion{ChannelID: channelID, ExcludedModels: set})
		}
		return true
	})
}

// ToggleModelExclusion flips whether model is excluded on the channel.
func (s *RuleStore) ToggleModelExclusion(channelID int64, model string) {
	s.mutate(func() bool {
		i := s.findExclusion(channelID)
		if i == -1 {
			s.exclusions = append(s.exclusions, models.ChannelExclusion{ChannelID: channelID, ExcludedModels: []string{model}})
			return true
		}
		excl := &s.exclusions[i]
		for j, m := range excl.ExcludedModels {
			if m == model {
				excl.ExcludedModels = append(excl.ExcludedModels[:j], excl.ExcludedModels[j+1:]...)
				return true
			}
		}
		excl.ExcludedModels = append(excl.ExcludedModels, model)
		return true
	})
}

// IsModelExcluded reports whether model is excluded on the channel.
func (s *RuleStore) IsModelExcluded(channelID int64, model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findExclusion(channelID)
	if i == -1 {
		return false
	}
	return containsString(s.exclusions[i].ExcludedModels, model)
}

// ChannelExclusions returns a deep copy of every exclusion record.
func (s *RuleStore) ChannelExclusions() []models.ChannelExclusion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyExclusions(s.exclusions)
}

// ProcessConfig returns the current process configuration.
func (s *RuleStore) ProcessConfig() models.ProcessRuleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processConfig
}

// SetProcessConfig replaces the process configuration.
func (s *RuleStore) SetProcessConfig(cfg models.ProcessRuleConfig) {
	s.mutate(func() bool {
		s.processConfig = cfg
		return true
	})
}

// SyncMode returns the merge policy used by imports.
func (s *RuleStore) SyncMode() models.SyncMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncMode
}

// SetSyncMode changes the merge policy. Unknown modes are ignored and reported as false.
func (s *RuleStore) SetSyncMode(mode models.SyncMode) bool {
	if !mode.Valid() {
		return false
	}
	s.mutate(func() bool {
		s.syncMode = mode
		return true
	})
	return true
}

// GenerateChannelConfig builds a channel's config from the current rules and its exclusions.
func (s *RuleStore) GenerateChannelConfig(channelID int64, upstreamModels []string) models.ChannelConfig {
	s.mu.Lock()
	rules := append([]models.MappingRule{}, s.rules...)
	excluded := s.exclusionLocked(channelID)
	s.mu.Unlock()
	return GenerateChannelConfig(rules, upstreamModels, excluded)
}

// DetectDuplicateTargets reports target collisions for a channel given its exclusions.
func (s *RuleStore) DetectDuplicateTargets(channelID int64, upstreamModels []string) []models.DuplicateInfo {
	s.mu.Lock()
	rules := append([]models.MappingRule{}, s.rules...)
	excluded := s.exclusionLocked(channelID)
	s.mu.Unlock()
	return DetectDuplicateTargets(rules, upstreamModels, excluded)
}

// Snapshot copies the whole store into a MappingState suitable for persistence.
func (s *RuleStore) Snapshot() models.MappingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := s.syncMode
	cfg := s.processConfig
	return models.MappingState{
		Rules:              append([]models.MappingRule{}, s.rules...),
		CustomReplaceRules: append([]models.CustomReplaceRule{}, s.customRules...),
		Config:             models.AppConfig{SyncMode: &mode, ProcessConfig: &cfg},
		Exclusions:         copyExclusions(s.exclusions),
	}
}

// Replace swaps in state loaded from storage. Rules, custom rules and exclusions are replaced
// outright; sync mode is taken only when valid and process config only when present.
// The change hook is not fired.
func (s *RuleStore) Replace(state models.MappingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]models.MappingRule{}, state.Rules...)
	s.customRules = append([]models.CustomReplaceRule{}, state.CustomReplaceRules...)
	s.exclusions = copyExclusions(state.Exclusions)
	if state.Config.SyncMode != nil && state.Config.SyncMode.Valid() {
		s.syncMode = *state.Config.SyncMode
	}
	if state.Config.ProcessConfig != nil {
		s.processConfig = *state.Config.ProcessConfig
	}
}

func copyExclusions(in []models.ChannelExclusion) []models.ChannelExclusion {
	out := make([]models.ChannelExclusion, 0, len(in))
	for _, e := range in {
		out = append(out, models.ChannelExclusion{
			ChannelID:      e.ChannelID,
			ExcludedModels: append([]string{}, e.ExcludedModels...),
		})
	}
	return out
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
