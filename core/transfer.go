package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"modelmap/logger"
	"modelmap/models"

	"github.com/tidwall/gjson"
)

// exportTimeLayout matches ISO-8601 timestamps with millisecond precision in UTC.
const exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ValidationError reports a rejected import payload. Nothing was mutated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ExportDocument builds the backup document for the current rules, custom rules and
// process configuration.
func (s *RuleStore) ExportDocument() models.ExportDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ExportDocument{
		Version:            models.ExportVersion,
		ExportTime:         s.now().UTC().Format(exportTimeLayout),
		Rules:              append([]models.MappingRule{}, s.rules...),
		CustomReplaceRules: append([]models.CustomReplaceRule{}, s.customRules...),
		ProcessConfig:      s.processConfig,
	}
}

// ExportRules serializes the export document as indented JSON.
func (s *RuleStore) ExportRules() ([]byte, error) {
	doc := s.ExportDocument()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling export document: %w", err)
	}
	return data, nil
}

// ImportRules loads an export document. The whole payload is validated before anything is
// changed; a *ValidationError is returned on the first invalid rule.
//
// In overwrite mode rules and custom rules are replaced and the process config booleans present
// in the document are applied. In append mode existing rules win, and custom rules are added
// only when no rule with the same search/replace pair exists.
func (s *RuleStore) ImportRules(data []byte, mode models.SyncMode) (models.ImportRulesResult, error) {
	if !mode.Valid() {
		return models.ImportRulesResult{}, &ValidationError{Message: fmt.Sprintf("unknown import mode %q", mode)}
	}
	if !gjson.ValidBytes(data) {
		return models.ImportRulesResult{}, &ValidationError{Message: "failed to parse JSON: invalid document"}
	}
	doc := gjson.ParseBytes(data)

	rulesResult := doc.Get("rules")
	if !rulesResult.IsArray() {
		return models.ImportRulesResult{}, &ValidationError{Message: "invalid rules file: missing rules array"}
	}
	parsed := make([]models.MappingRule, 0, len(rulesResult.Array()))
	seen := make(map[string]struct{}, len(rulesResult.Array()))
	for i, r := range rulesResult.Array() {
		src, tgt := r.Get("sourceModel"), r.Get("targetModel")
		if src.Type != gjson.String || tgt.Type != gjson.String {
			return models.ImportRulesResult{}, &ValidationError{
				Message: fmt.Sprintf("invalid rule at index %d: rules must contain string sourceModel and targetModel", i),
			}
		}
		// One rule per source model; the first occurrence wins, as with AddRule.
		if _, dup := seen[src.String()]; dup {
			continue
		}
		seen[src.String()] = struct{}{}
		parsed = append(parsed, models.MappingRule{SourceModel: src.String(), TargetModel: tgt.String()})
	}

	customResult := doc.Get("customReplaceRules")
	processResult := doc.Get("processConfig")

	s.mutate(func() bool {
		if mode == models.SyncModeOverwrite {
			s.rules = parsed
		} else {
			for _, rule := range parsed {
				if s.findRule(rule.SourceModel) == -1 {
					s.rules = append(s.rules, rule)
				}
			}
		}

		if customResult.IsArray() {
			if mode == models.SyncModeOverwrite {
				items := customResult.Array()
				replaced := make([]models.CustomReplaceRule, 0, len(items))
				for i, raw := range items {
					replaced = append(replaced, s.normalizeCustomRule(raw, i+1, true))
				}
				s.customRules = replaced
			} else {
				for _, raw := range customResult.Array() {
					rule := s.normalizeCustomRule(raw, len(s.customRules)+1, false)
					if !s.hasCustomPairLocked(rule.Search, rule.Replace) {
						s.customRules = append(s.customRules, rule)
					}
				}
			}
		}

		if mode == models.SyncModeOverwrite && processResult.IsObject() {
			s.processConfig = mergeProcessConfig(s.processConfig, processResult)
		}
		return true
	})

	logger.Info("ImportRules: imported %d rules (mode=%s)", len(parsed), mode)
	return models.ImportRulesResult{
		Imported: len(parsed),
		Message:  fmt.Sprintf("imported %d rules", len(parsed)),
	}, nil
}

func (s *RuleStore) hasCustomPairLocked(search, replace string) bool {
	for _, r := range s.customRules {
		if r.Search == search && r.Replace == replace {
			return true
		}
	}
	return false
}

// normalizeCustomRule fills in defaults for missing or ill-typed fields of an imported rule.
func (s *RuleStore) normalizeCustomRule(raw gjson.Result, fallbackPriority int, keepID bool) models.CustomReplaceRule {
	rule := models.CustomReplaceRule{
		Priority: fallbackPriority,
		Enabled:  true,
	}
	if id := raw.Get("id"); keepID && id.Type == gjson.String && id.String() != "" {
		rule.ID = id.String()
	} else {
		rule.ID = s.newID()
	}
	if p := raw.Get("priority"); p.Type == gjson.Number {
		rule.Priority = int(p.Int())
	}
	if v := raw.Get("search"); v.Type == gjson.String {
		rule.Search = v.String()
	}
	if v := raw.Get("replace"); v.Type == gjson.String {
		rule.Replace = v.String()
	}
	if v := raw.Get("enabled"); v.IsBool() {
		rule.Enabled = v.Bool()
	}
	return rule
}

func mergeProcessConfig(cfg models.ProcessRuleConfig, raw gjson.Result) models.ProcessRuleConfig {
	if v := raw.Get("formatModelName"); v.IsBool() {
		cfg.FormatModelName = v.Bool()
	}
	if v := raw.Get("enableCustomRules"); v.IsBool() {
		cfg.EnableCustomRules = v.Bool()
	}
	if v := raw.Get("toLowerCase"); v.IsBool() {
		cfg.ToLowerCase = v.Bool()
	}
	return cfg
}

// ImportFromChannels derives rules from channel state observed on the upstream gateway.
//
// For each channel the enabled models are the targets; each target's source is looked up in
// the channel's model_mapping and falls back to the target itself. Mapping entries whose target
// is not enabled are added afterwards. Existing rules are never overwritten. A channel whose
// model_mapping cannot be parsed is logged and skipped.
func (s *RuleStore) ImportFromChannels(channels []models.Channel) models.ImportFromChannelsResult {
	var result models.ImportFromChannelsResult

	type candidate struct{ source, target string }
	var candidates []candidate
	for _, ch := range channels {
		mapping, err := ch.ParseModelMapping()
		if err != nil {
			logger.Warn("ImportFromChannels: failed to parse model_mapping of channel %d (%s): %v", ch.ID, ch.Name, err)
			continue
		}

		enabled := ch.EnabledModels()
		enabledSet := toSet(enabled)
		for _, target := range enabled {
			source, ok := mapping[target]
			if !ok || source == "" {
				source = target
			}
			candidates = append(candidates, candidate{source: source, target: target})
		}

		stale := make([]string, 0)
		for target := range mapping {
			if _, ok := enabledSet[target]; !ok && mapping[target] != "" {
				stale = append(stale, target)
			}
		}
		sort.Strings(stale)
		for _, target := range stale {
			candidates = append(candidates, candidate{source: mapping[target], target: target})
		}
	}

	s.mutate(func() bool {
		for _, c := range candidates {
			if s.addRuleLocked(c.source, c.target) {
				result.Imported++
			} else {
				result.Skipped++
			}
		}
		return result.Imported > 0
	})

	logger.Info("ImportFromChannels: %d channels, imported=%d skipped=%d", len(channels), result.Imported, result.Skipped)
	return result
}

// ExportFileName returns the conventional download name for an export taken at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("mapping-rules-%s.json", t.UTC().Format("2006-01-02"))
}
