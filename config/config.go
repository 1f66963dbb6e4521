package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modelmap/logger"
	"modelmap/models"

	"github.com/spf13/viper"
)

type DefaultPaths struct {
	ConfigDir       string
	LogPathApp      string
	LogPathUpstream string
	DBPath          string
	LogLevel        string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port        string `mapstructure:"port"`
		LogPath     string `mapstructure:"log_path"`
		AccessToken string `mapstructure:"access_token"`
	} `mapstructure:"server"`
	Upstream struct {
		BaseURL          string        `mapstructure:"base_url"`
		Token            string        `mapstructure:"token"`
		UserID           string        `mapstructure:"user_id"`
		PageSize         int           `mapstructure:"page_size"`
		Timeout          time.Duration `mapstructure:"timeout"`
		FetchConcurrency int           `mapstructure:"fetch_concurrency"`
		LogPath          string        `mapstructure:"log_path"`
	} `mapstructure:"upstream"`
	Sync struct {
		SaveDebounce time.Duration `mapstructure:"save_debounce"`
	} `mapstructure:"sync"`
	Broker struct {
		URL         string `mapstructure:"url"`
		ClientID    string `mapstructure:"client_id"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		TopicPrefix string `mapstructure:"topic_prefix"`
	} `mapstructure:"broker"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

var AppConfig Configuration

// UpstreamSettings returns the gateway connection details from file/env configuration.
func (c Configuration) UpstreamSettings() models.UpstreamConfig {
	return models.UpstreamConfig{
		BaseURL: c.Upstream.BaseURL,
		Token:   c.Upstream.Token,
		UserID:  c.Upstream.UserID,
	}
}

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// ExpandTilde replaces a leading ~ with the user's home directory.
func ExpandTilde(path string) (string, error) {
	return expandTilde(path)
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	userConfigDir, err := expandTilde(userConfigDirBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in user config dir '%s': %v. Using potentially literal path.\n", userConfigDirBase, err)
		userConfigDir = userConfigDirBase
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "modelmap")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathUpstream = filepath.Join(logDir, "upstream.log")
	paths.DBPath = filepath.Join(paths.ConfigDir, "modelmap.db")
	paths.LogLevel = "INFO"
	return paths
}

// newViper returns a viper instance with every default and the MODELMAP_ env binding applied.
func newViper(defaults DefaultPaths) *viper.Viper {
	v := viper.New()

	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("server.access_token", "")
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.user_id", "")
	v.SetDefault("upstream.page_size", 100)
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.fetch_concurrency", 8)
	v.SetDefault("upstream.log_path", defaults.LogPathUpstream)
	v.SetDefault("sync.save_debounce", "500ms")
	v.SetDefault("broker.url", "")
	v.SetDefault("broker.client_id", "modelmap")
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.topic_prefix", "modelmap")
	v.SetDefault("logging.level", defaults.LogLevel)

	v.SetEnvPrefix("MODELMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into AppConfig without touching loggers. A missing default config
// file is not an error; a config file named explicitly that cannot be read is reported on stderr
// and defaults are used.
func Load(cfgFile string) error {
	defaults := GetDefaultConfigPaths()
	v := newViper(defaults)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in config file path '%s': %v. Trying original path.\n", cfgFile, err)
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if readErr := v.ReadInConfig(); readErr != nil {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: Could not read config file %s: %v\n", v.ConfigFileUsed(), readErr)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	for _, p := range []*string{&cfg.Database.Path, &cfg.Server.LogPath, &cfg.Upstream.LogPath} {
		expanded, err := expandTilde(*p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in '%s': %v.\n", *p, err)
			continue
		}
		*p = expanded
	}

	AppConfig = cfg
	return nil
}

func Init(cfgFile string, flagAppLogPath, flagUpstreamLogPath, flagLogLevel string) error {
	if err := Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Error unmarshalling configuration: %v\n", err)
		return err
	}

	// Apply flag overrides
	if flagAppLogPath != "" {
		if expandedPath, err := expandTilde(flagAppLogPath); err == nil {
			AppConfig.Server.LogPath = expandedPath
		} else {
			AppConfig.Server.LogPath = flagAppLogPath
		}
	}
	if flagUpstreamLogPath != "" {
		if expandedPath, err := expandTilde(flagUpstreamLogPath); err == nil {
			AppConfig.Upstream.LogPath = expandedPath
		} else {
			AppConfig.Upstream.LogPath = flagUpstreamLogPath
		}
	}
	if flagLogLevel != "" {
		AppConfig.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Upstream.LogPath, AppConfig.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize global loggers with final config: %v\n", err)
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	if AppConfig.Upstream.BaseURL == "" {
		logger.Info("Upstream base_url not set in config; the stored upstream settings will be used if present.")
	} else {
		logger.Info("Upstream gateway configured: %s", AppConfig.Upstream.BaseURL)
	}
	if AppConfig.Broker.URL == "" {
		logger.Info("Broker URL not set; change notifications are disabled.")
	}
	if AppConfig.Server.AccessToken == "" {
		logger.Warn("server.access_token is empty; the HTTP API is unauthenticated.")
	}

	logger.Debug("Final AppConfig Initialized: database=%s port=%s upstream=%s page_size=%d timeout=%s debounce=%s",
		AppConfig.Database.Path, AppConfig.Server.Port, AppConfig.Upstream.BaseURL,
		AppConfig.Upstream.PageSize, AppConfig.Upstream.Timeout, AppConfig.Sync.SaveDebounce)
	return nil
}
