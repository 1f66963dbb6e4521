package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"modelmap/logger"
	"modelmap/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func GetMappingRules() ([]models.MappingRule, error) {
	return getMappingRules(DB)
}

func getMappingRules(q querier) ([]models.MappingRule, error) {
	rows, err := q.Query("SELECT source_model, target_model FROM mapping_rules ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("querying mapping rules: %w", err)
	}
	defer rows.Close()

	rules := []models.MappingRule{}
	for rows.Next() {
		var r models.MappingRule
		if err := rows.Scan(&r.SourceModel, &r.TargetModel); err != nil {
			return nil, fmt.Errorf("scanning mapping rule row: %w", err)
		}
		rules = append(rules, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mapping rule rows: %w", err)
	}
	return rules, nil
}

// ReplaceMappingRules swaps the stored mapping rules for rules. Rules with an empty source or
// target are dropped, as is any rule repeating an earlier source.
func ReplaceMappingRules(rules []models.MappingRule) error {
	return withTx(context.Background(), func(tx *sql.Tx) error {
		return replaceMappingRules(tx, rules)
	})
}

func replaceMappingRules(q querier, rules []models.MappingRule) error {
	if _, err := q.Exec("DELETE FROM mapping_rules"); err != nil {
		return fmt.Errorf("clearing mapping rules: %w", err)
	}
	for i, r := range rules {
		if r.SourceModel == "" || r.TargetModel == "" {
			logger.Debug("replaceMappingRules: dropping incomplete rule %+v", r)
			continue
		}
		_, err := q.Exec("INSERT OR IGNORE INTO mapping_rules (position, source_model, target_model) VALUES (?, ?, ?)",
			i, r.SourceModel, r.TargetModel)
		if err != nil {
			return fmt.Errorf("inserting mapping rule %q: %w", r.SourceModel, err)
		}
	}
	return nil
}

func GetCustomRules() ([]models.CustomReplaceRule, error) {
	return getCustomRules(DB)
}

func getCustomRules(q querier) ([]models.CustomReplaceRule, error) {
	rows, err := q.Query("SELECT id, priority, search, replace, enabled FROM custom_replace_rules ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("querying custom replace rules: %w", err)
	}
	defer rows.Close()

	rules := []models.CustomReplaceRule{}
	for rows.Next() {
		var r models.CustomReplaceRule
		if err := rows.Scan(&r.ID, &r.Priority, &r.Search, &r.Replace, &r.Enabled); err != nil {
			return nil, fmt.Errorf("scanning custom replace rule row: %w", err)
		}
		rules = append(rules, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating custom replace rule rows: %w", err)
	}
	return rules, nil
}

// ReplaceCustomRules swaps the stored custom replace rules. Rules without an id are dropped.
func ReplaceCustomRules(rules []models.CustomReplaceRule) error {
	return withTx(context.Background(), func(tx *sql.Tx) error {
		return replaceCustomRules(tx, rules)
	})
}

func replaceCustomRules(q querier, rules []models.CustomReplaceRule) error {
	if _, err := q.Exec("DELETE FROM custom_replace_rules"); err != nil {
		return fmt.Errorf("clearing custom replace rules: %w", err)
	}
	for i, r := range rules {
		if r.ID == "" {
			logger.Debug("replaceCustomRules: dropping rule without id (search=%q)", r.Search)
			continue
		}
		_, err := q.Exec(`INSERT OR REPLACE INTO custom_replace_rules (id, position, priority, search, replace, enabled)
			VALUES (?, ?, ?, ?, ?, ?)`, r.ID, i, r.Priority, r.Search, r.Replace, r.Enabled)
		if err != nil {
			return fmt.Errorf("inserting custom replace rule %s: %w", r.ID, err)
		}
	}
	return nil
}

func GetChannelExclusions() ([]models.ChannelExclusion, error) {
	return getChannelExclusions(DB)
}

func getChannelExclusions(q querier) ([]models.ChannelExclusion, error) {
	rows, err := q.Query("SELECT channel_id, excluded_models FROM channel_exclusions ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("querying channel exclusions: %w", err)
	}
	defer rows.Close()

	exclusions := []models.ChannelExclusion{}
	for rows.Next() {
		var e models.ChannelExclusion
		var raw string
		if err := rows.Scan(&e.ChannelID, &raw); err != nil {
			return nil, fmt.Errorf("scanning channel exclusion row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.ExcludedModels); err != nil {
			logger.Warn("getChannelExclusions: channel %d has malformed excluded_models, treating as empty: %v", e.ChannelID, err)
		}
		if e.ExcludedModels == nil {
			e.ExcludedModels = []string{}
		}
		exclusions = append(exclusions, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel exclusion rows: %w", err)
	}
	return exclusions, nil
}

// ReplaceChannelExclusions swaps the stored channel exclusions. A later record for the same
// channel replaces an earlier one.
func ReplaceChannelExclusions(exclusions []models.ChannelExclusion) error {
	return withTx(context.Background(), func(tx *sql.Tx) error {
		return replaceChannelExclusions(tx, exclusions)
	})
}

func replaceChannelExclusions(q querier, exclusions []models.ChannelExclusion) error {
	if _, err := q.Exec("DELETE FROM channel_exclusions"); err != nil {
		return fmt.Errorf("clearing channel exclusions: %w", err)
	}
	for i, e := range exclusions {
		excluded := e.ExcludedModels
		if excluded == nil {
			excluded = []string{}
		}
		data, err := json.Marshal(excluded)
		if err != nil {
			return fmt.Errorf("marshalling exclusions of channel %d: %w", e.ChannelID, err)
		}
		_, err = q.Exec("INSERT OR REPLACE INTO channel_exclusions (channel_id, position, excluded_models) VALUES (?, ?, ?)",
			e.ChannelID, i, string(data))
		if err != nil {
			return fmt.Errorf("inserting exclusions of channel %d: %w", e.ChannelID, err)
		}
	}
	return nil
}

// GetAppConfig reads the sync mode and process config settings. Absent settings stay nil; the
// stored process config is decoded over the defaults so missing booleans keep their default.
func GetAppConfig() (models.AppConfig, error) {
	return getAppConfig(DB)
}

func getAppConfig(q querier) (models.AppConfig, error) {
	var cfg models.AppConfig

	rawMode, err := getSetting(q, models.SyncModeKey)
	if err != nil {
		return cfg, err
	}
	if rawMode != "" {
		var mode models.SyncMode
		if err := json.Unmarshal([]byte(rawMode), &mode); err != nil {
			mode = models.SyncMode(rawMode)
		}
		cfg.SyncMode = &mode
	}

	rawProcess, err := getSetting(q, models.ProcessConfigKey)
	if err != nil {
		return cfg, err
	}
	if rawProcess != "" {
		pc := models.DefaultProcessConfig()
		if err := json.Unmarshal([]byte(rawProcess), &pc); err != nil {
			logger.Warn("getAppConfig: ignoring malformed %s setting: %v", models.ProcessConfigKey, err)
		} else {
			cfg.ProcessConfig = &pc
		}
	}
	return cfg, nil
}

// SetAppConfig writes the non-nil fields of cfg.
func SetAppConfig(cfg models.AppConfig) error {
	return withTx(context.Background(), func(tx *sql.Tx) error {
		return setAppConfig(tx, cfg)
	})
}

func setAppConfig(q querier, cfg models.AppConfig) error {
	if cfg.SyncMode != nil {
		data, err := json.Marshal(*cfg.SyncMode)
		if err != nil {
			return fmt.Errorf("marshalling sync mode: %w", err)
		}
		if err := setSetting(q, models.SyncModeKey, string(data)); err != nil {
			return err
		}
	}
	if cfg.ProcessConfig != nil {
		data, err := json.Marshal(*cfg.ProcessConfig)
		if err != nil {
			return fmt.Errorf("marshalling process config: %w", err)
		}
		if err := setSetting(q, models.ProcessConfigKey, string(data)); err != nil {
			return err
		}
	}
	return nil
}

func withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return withTxOn(ctx, DB, fn)
}

func withTxOn(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// MappingBackend stores the rule store's state in sqlite.
type MappingBackend struct {
	db *sql.DB
}

// NewMappingBackend returns a backend on db. A nil db uses the global DB at call time.
func NewMappingBackend(db *sql.DB) *MappingBackend {
	return &MappingBackend{db: db}
}

func (b *MappingBackend) handle() (*sql.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return DB, nil
}

// Load reads all four collections in one read transaction.
func (b *MappingBackend) Load(ctx context.Context) (models.MappingState, error) {
	db, err := b.handle()
	if err != nil {
		return models.MappingState{}, err
	}
	var state models.MappingState
	err = withTxOn(ctx, db, func(tx *sql.Tx) error {
		var err error
		if state.Rules, err = getMappingRules(tx); err != nil {
			return err
		}
		if state.CustomReplaceRules, err = getCustomRules(tx); err != nil {
			return err
		}
		if state.Config, err = getAppConfig(tx); err != nil {
			return err
		}
		if state.Exclusions, err = getChannelExclusions(tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return models.MappingState{}, err
	}
	return state, nil
}

// Save replaces everything stored with state in one transaction, so repeated saves of the same
// state leave the database unchanged.
func (b *MappingBackend) Save(ctx context.Context, state models.MappingState) error {
	db, err := b.handle()
	if err != nil {
		return err
	}
	return withTxOn(ctx, db, func(tx *sql.Tx) error {
		if err := replaceMappingRules(tx, state.Rules); err != nil {
			return err
		}
		if err := replaceCustomRules(tx, state.CustomReplaceRules); err != nil {
			return err
		}
		if err := setAppConfig(tx, state.Config); err != nil {
			return err
		}
		return replaceChannelExclusions(tx, state.Exclusions)
	})
}
