// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "hybrid", cfg.Control.Backend)
	assert.InDelta(t, 0.1, cfg.Control.IOUThreshold, 1e-9)
	assert.Contains(t, cfg.Control.ControlList, "Button")
	assert.Contains(t, cfg.Control.APIControlList, "DataItem")
	assert.Empty(t, cfg.Control.FilterTypes)

	assert.Equal(t, 3, cfg.LLM.JSONParsingRetry)
	assert.Equal(t, 120*time.Second, cfg.LLM.APITimeout)

	assert.True(t, cfg.Evidence.IncludeLastScreenshot)
	assert.False(t, cfg.Evidence.ConcatScreenshot)
	assert.False(t, cfg.Evidence.SaveUITree)

	assert.Equal(t, 30*time.Second, cfg.Sheet.LayoutCacheTTL)
	assert.Equal(t, 48, cfg.Sheet.DefaultLeft)
	assert.Equal(t, 201, cfg.Sheet.DefaultTop)
	assert.Equal(t, 72, cfg.Sheet.DefaultCellWidth)
	assert.Equal(t, 21, cfg.Sheet.DefaultCellHeight)
	assert.Equal(t, []string{"DataItem", "Cell"}, cfg.Sheet.CellControlTypes)

	assert.Equal(t, 50, cfg.Session.MaxSteps)
	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 1, cfg.Session.Concurrency)
	assert.Equal(t, []string{"step", "subtask", "action_success", "status"}, cfg.Session.HistoryKeys)
	assert.Equal(t, 3, cfg.Session.RetrievalTopK)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("control.backend", "structural")
	v.Set("session.max_steps", 10)
	v.Set("llm.json_parsing_retry", 1)

	cfg, err := NewConfigFromViper(v)

	require.NoError(t, err)
	assert.Equal(t, "structural", cfg.Control.Backend)
	assert.Equal(t, 10, cfg.Session.MaxSteps)
	assert.Equal(t, 1, cfg.LLM.JSONParsingRetry)
}

func TestNewConfigFromViperReadsAPIKeyFromEnv(t *testing.T) {
	t.Setenv("DESKPILOT_LLM_API_KEY", "sk-test-key")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)

	require.NoError(t, err)
	assert.Equal(t, "sk-test-key", cfg.LLM.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"iou above one", func(c *Config) { c.Control.IOUThreshold = 1.5 }, "iou_threshold_for_merge"},
		{"negative iou", func(c *Config) { c.Control.IOUThreshold = -0.1 }, "iou_threshold_for_merge"},
		{"unknown filter", func(c *Config) { c.Control.FilterTypes = []string{"psychic"} }, "unknown filter"},
		{"unknown backend", func(c *Config) { c.Control.Backend = "sonar" }, "control.backend"},
		{"negative retry", func(c *Config) { c.LLM.JSONParsingRetry = -1 }, "json_parsing_retry"},
		{"zero max steps", func(c *Config) { c.Session.MaxSteps = 0 }, "max_steps"},
		{"zero concurrency", func(c *Config) { c.Session.Concurrency = 0 }, "concurrency"},
		{"zero layout ttl", func(c *Config) { c.Sheet.LayoutCacheTTL = 0 }, "layout_cache_ttl"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.substr)
		})
	}
}

func TestValidateAcceptsAllFilterTypes(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Control.FilterTypes = []string{"text", "semantic", "icon"}
	assert.NoError(t, cfg.Validate())
}
