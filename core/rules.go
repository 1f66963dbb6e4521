package core

import (
	"sort"
	"strings"

	"modelmap/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// lowerCaser folds with Unicode default casing, including the context-sensitive final sigma.
var lowerCaser = cases.Lower(language.Und)

// ApplyProcessRules runs one model name through the transform pipeline.
//
// Steps always run in the same order: trim, custom replace rules, lower-case. Custom rules are
// literal replace-all substitutions applied in ascending priority order; rules with equal
// priority keep their relative order.
func ApplyProcessRules(name string, cfg models.ProcessRuleConfig, customRules []models.CustomReplaceRule) string {
	result := name

	if cfg.FormatModelName {
		result = strings.TrimSpace(result)
	}

	if cfg.EnableCustomRules {
		for _, rule := range activeCustomRules(customRules) {
			result = strings.ReplaceAll(result, rule.Search, rule.Replace)
		}
	}

	if cfg.ToLowerCase {
		result = lowerCaser.String(result)
	}

	return result
}

func activeCustomRules(customRules []models.CustomReplaceRule) []models.CustomReplaceRule {
	active := make([]models.CustomReplaceRule, 0, len(customRules))
	for _, rule := range customRules {
		if rule.Enabled && rule.Search != "" {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}

func indexRules(rules []models.MappingRule) map[string]models.MappingRule {
	idx := make(map[string]models.MappingRule, len(rules))
	for _, rule := range rules {
		if _, ok := idx[rule.SourceModel]; !ok {
			idx[rule.SourceModel] = rule
		}
	}
	return idx
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// GenerateChannelConfig derives the enabled models and rename map for one channel.
//
// Upstream models are visited in order; excluded ones are skipped. A matched rule contributes
// its target model, an unmatched model passes through under its own name. Enabled models keep
// first-seen order with duplicates collapsed. RenameMap is keyed by target model and is
// last-write-wins, so when two sources collide only the later one survives.
func GenerateChannelConfig(rules []models.MappingRule, upstreamModels []string, excludedModels []string) models.ChannelConfig {
	idx := indexRules(rules)
	excluded := toSet(excludedModels)

	cfg := models.ChannelConfig{
		EnabledModels: []string{},
		RenameMap:     map[string]string{},
	}
	seen := make(map[string]struct{})

	for _, model := range upstreamModels {
		if _, skip := excluded[model]; skip {
			continue
		}

		target := model
		rule, ok := idx[model]
		if ok {
			target = rule.TargetModel
			if rule.SourceModel != rule.TargetModel {
				cfg.RenameMap[rule.TargetModel] = rule.SourceModel
			}
		}

		if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			cfg.EnabledModels = append(cfg.EnabledModels, target)
		}
	}

	return cfg
}

// DetectDuplicateTargets finds target models that two or more distinct, non-excluded upstream
// source models map onto. Groups are returned in first-seen target order.
func DetectDuplicateTargets(rules []models.MappingRule, upstreamModels []string, excludedModels []string) []models.DuplicateInfo {
	idx := indexRules(rules)
	excluded := toSet(excludedModels)

	var order []string
	groups := make(map[string][]string)
	for _, model := range upstreamModels {
		if _, skip := excluded[model]; skip {
			continue
		}
		rule, ok := idx[model]
		if !ok {
			continue
		}
		sources, exists := groups[rule.TargetModel]
		if !exists {
			order = append(order, rule.TargetModel)
		}
		if !containsString(sources, model) {
			groups[rule.TargetModel] = append(sources, model)
		}
	}

	duplicates := []models.DuplicateInfo{}
	for _, target := range order {
		if sources := groups[target]; len(sources) > 1 {
			duplicates = append(duplicates, models.DuplicateInfo{TargetModel: target, SourceModels: sources})
		}
	}
	return duplicates
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
