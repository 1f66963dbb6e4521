package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"modelmap/logger"
	"modelmap/models"
)

// GetSetting retrieves a specific setting value from the app_settings table.
func GetSetting(key string) (string, error) {
	return getSetting(DB, key)
}

func getSetting(q querier, key string) (string, error) {
	var value string
	err := q.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil // Return empty string if not found, not an error
		}
		return "", fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

// SetSetting saves or updates a specific setting value in the app_settings table.
func SetSetting(key, value string) error {
	return setSetting(DB, key, value)
}

func setSetting(q querier, key, value string) error {
	_, err := q.Exec("INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
	}
	return nil
}

// GetAllSettings returns every stored setting. Values are decoded from JSON when possible and
// returned as raw strings otherwise.
func GetAllSettings() (map[string]interface{}, error) {
	rows, err := DB.Query("SELECT key, value FROM app_settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]interface{})
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			out[key] = value
		} else {
			out[key] = decoded
		}
	}
	return out, rows.Err()
}

// SetSettingsJSON stores each value JSON-encoded under its key, in one transaction.
func SetSettingsJSON(values map[string]interface{}) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning settings transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal setting '%s': %w", key, err)
		}
		if err := setSetting(tx, key, string(encoded)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetUpstreamConfig returns the upstream gateway settings saved at runtime. ok is false when
// nothing was stored.
func GetUpstreamConfig() (cfg models.UpstreamConfig, ok bool, err error) {
	raw, err := GetSetting(models.UpstreamConfigKey)
	if err != nil {
		return cfg, false, err
	}
	if raw == "" {
		return cfg, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		logger.Error("GetUpstreamConfig: Error unmarshalling upstream config JSON: %v", err)
		return models.UpstreamConfig{}, false, fmt.Errorf("failed to unmarshal upstream config: %w", err)
	}
	return cfg, true, nil
}

// SetUpstreamConfig saves the upstream gateway settings.
func SetUpstreamConfig(cfg models.UpstreamConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal upstream config to JSON: %w", err)
	}
	if err := SetSetting(models.UpstreamConfigKey, string(data)); err != nil {
		return fmt.Errorf("failed to save upstream config setting: %w", err)
	}
	return nil
}
