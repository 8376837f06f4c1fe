// Package config holds syncvirtd's runtime configuration: the template
// prefix and hypervisor URI the spec names as its only real knobs, the
// timing constants the echo-suppression and action-wait logic depends on,
// and the shared logging shape used across the daemon.
package config

import (
	"os"
	"runtime"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global syncvirtd configuration. Field names are the
// JSON/viper keys bound by cmd/root.go.
type Config struct {
	// TemplatePrefix is the fixed stem used to form "<prefix>@<domain>.service".
	TemplatePrefix string `json:"template_prefix" mapstructure:"template_prefix"`

	// LibvirtURI is the hypervisor connection URI. Empty means "use the
	// library default", which itself honors LIBVIRT_DEFAULT_URI.
	LibvirtURI string `json:"libvirt_uri" mapstructure:"libvirt_uri"`

	// ActionThresholdSeconds is the RLAL echo-detection window: two records
	// for the same key within this many seconds are treated as one echo.
	ActionThresholdSeconds int `json:"action_threshold_seconds" mapstructure:"action_threshold_seconds"`
	// ActionLogMaxAgeSeconds bounds RLAL memory: a key's history is dropped
	// once this long has passed since its last record.
	ActionLogMaxAgeSeconds int `json:"action_log_max_age_seconds" mapstructure:"action_log_max_age_seconds"`

	// ActionTimeoutSeconds bounds how long HDM waits for a domain to reach
	// its target state before failing the action.
	ActionTimeoutSeconds int `json:"action_timeout_seconds" mapstructure:"action_timeout_seconds"`
	// ActionCheckDelaySeconds is the poll interval while waiting for state.
	ActionCheckDelaySeconds int `json:"action_check_delay_seconds" mapstructure:"action_check_delay_seconds"`

	// JournalRestartDelaySeconds is how long JET sleeps before reopening the
	// job-log tail after the subprocess or stream terminates.
	JournalRestartDelaySeconds int `json:"journal_restart_delay_seconds" mapstructure:"journal_restart_delay_seconds"`

	// WorkerPoolSize bounds concurrent per-domain HDM action waits.
	WorkerPoolSize int `json:"worker_pool_size" mapstructure:"worker_pool_size"`

	// RunDir holds the singleton-instance lock file.
	RunDir string `json:"run_dir" mapstructure:"run_dir"`

	// HealthAddr is the address the /healthz probe listens on.
	HealthAddr string `json:"health_addr" mapstructure:"health_addr"`

	// Log configures structured logging, using eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with the defaults spec.md names explicitly
// (template prefix "libvirt-guest", 3s echo threshold, 60s RLAL max age,
// 120s action timeout, 1s check delay, 1s journal restart delay, pool of 5).
func DefaultConfig() *Config {
	return &Config{
		TemplatePrefix:             "libvirt-guest",
		LibvirtURI:                 os.Getenv("LIBVIRT_DEFAULT_URI"),
		ActionThresholdSeconds:     3,
		ActionLogMaxAgeSeconds:     60,
		ActionTimeoutSeconds:       120,
		ActionCheckDelaySeconds:    1,
		JournalRestartDelaySeconds: 1,
		WorkerPoolSize:             5,
		RunDir:                     "/run/syncvirtd",
		HealthAddr:                 "127.0.0.1:9827",
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// ApplyDefaults fills in zero-valued fields that must never be zero at
// runtime, mirroring the teacher's post-unmarshal normalization in
// cmd/root.go's initConfig.
func (c *Config) ApplyDefaults() {
	if c.TemplatePrefix == "" {
		c.TemplatePrefix = "libvirt-guest"
	}
	if c.ActionThresholdSeconds <= 0 {
		c.ActionThresholdSeconds = 3
	}
	if c.ActionLogMaxAgeSeconds <= 0 {
		c.ActionLogMaxAgeSeconds = 60
	}
	if c.ActionTimeoutSeconds <= 0 {
		c.ActionTimeoutSeconds = 120
	}
	if c.ActionCheckDelaySeconds <= 0 {
		c.ActionCheckDelaySeconds = 1
	}
	if c.JournalRestartDelaySeconds <= 0 {
		c.JournalRestartDelaySeconds = 1
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = runtime.NumCPU()
		if c.WorkerPoolSize > 5 {
			c.WorkerPoolSize = 5
		}
	}
	if c.RunDir == "" {
		c.RunDir = "/run/syncvirtd"
	}
}

func (c *Config) ActionThreshold() time.Duration {
	return time.Duration(c.ActionThresholdSeconds) * time.Second
}

func (c *Config) ActionLogMaxAge() time.Duration {
	return time.Duration(c.ActionLogMaxAgeSeconds) * time.Second
}

func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}

func (c *Config) ActionCheckDelay() time.Duration {
	return time.Duration(c.ActionCheckDelaySeconds) * time.Second
}

func (c *Config) JournalRestartDelay() time.Duration {
	return time.Duration(c.JournalRestartDelaySeconds) * time.Second
}

// LockFile returns the path to the singleton-instance flock file.
func (c *Config) LockFile() string {
	return c.RunDir + "/syncvirtd.lock"
}
