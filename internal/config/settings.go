package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix for settings, e.g. K93S_LOG_LEVEL.
const EnvPrefix = "k93s"

// Setting keys. Each one is also readable from K93S_<KEY>.
const (
	SettingConfig        = "config"
	SettingWorkDir       = "workdir"
	SettingRemoveWorkDir = "remove_workdir"
	SettingLogLevel      = "log_level"
	SettingSettleDelay   = "settle_delay"
	SettingConcurrency   = "concurrency"
	SettingPlaybooksDir  = "playbooks_dir"
	SettingMetricsFile   = "metrics_file"
	SettingImageBaseURL  = "image_base_url"
)

// DefaultImageBaseURL serves {distro}/{distro}.qcow2 images.
const DefaultImageBaseURL = "https://virt-lightning.org/images"

// Settings are the process-level knobs of one k93s invocation.
type Settings struct {
	ConfigFile    string
	WorkDir       string
	RemoveWorkDir bool
	LogLevel      string
	SettleDelay   time.Duration
	Concurrency   int
	PlaybooksDir  string
	MetricsFile   string
	ImageBaseURL  string
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(SettingConfig, DefaultConfigFile)
	v.SetDefault(SettingWorkDir, "")
	v.SetDefault(SettingRemoveWorkDir, false)
	v.SetDefault(SettingLogLevel, "info")
	v.SetDefault(SettingSettleDelay, time.Second)
	v.SetDefault(SettingConcurrency, 0)
	v.SetDefault(SettingPlaybooksDir, "ansible")
	v.SetDefault(SettingMetricsFile, "")
	v.SetDefault(SettingImageBaseURL, DefaultImageBaseURL)
}

// LoadSettings reads settings from v, falling back to the environment and
// then to defaults.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	s := &Settings{
		ConfigFile:    v.GetString(SettingConfig),
		WorkDir:       v.GetString(SettingWorkDir),
		RemoveWorkDir: v.GetBool(SettingRemoveWorkDir),
		LogLevel:      strings.ToLower(v.GetString(SettingLogLevel)),
		SettleDelay:   v.GetDuration(SettingSettleDelay),
		Concurrency:   v.GetInt(SettingConcurrency),
		PlaybooksDir:  v.GetString(SettingPlaybooksDir),
		MetricsFile:   v.GetString(SettingMetricsFile),
		ImageBaseURL:  strings.TrimRight(v.GetString(SettingImageBaseURL), "/"),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings for values that cannot work.
func (s *Settings) Validate() error {
	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[s.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", s.LogLevel)
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative, got %s", s.SettleDelay)
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", s.Concurrency)
	}
	if s.ConfigFile == "" {
		return fmt.Errorf("config file path is required")
	}
	return nil
}
