package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Name: "Assistant",
		Skills: []Skill{
			{ID: "chat", Name: "Chat"},
		},
	}
}

func TestNew_Valid(t *testing.T) {
	a, err := New(validConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Nil(t, a.Func)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"empty name", func(c *Config) { c.Name = "" }, "name"},
		{"no skills", func(c *Config) { c.Skills = nil }, "skills"},
		{"skill missing id", func(c *Config) { c.Skills[0].ID = "" }, "skills[0].id"},
		{"skill missing name", func(c *Config) { c.Skills[0].Name = "" }, "skills[0].name"},
		{"negative max turns", func(c *Config) { c.MaxTurns = -1 }, "maxTurns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			a, err := New(cfg, nil)
			assert.Nil(t, a)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEngineConfig_DefaultModel(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, DefaultModel, cfg.EngineConfig().Model)

	cfg.Model = "claude-opus-4-20250514"
	assert.Equal(t, "claude-opus-4-20250514", cfg.EngineConfig().Model)
}

func TestEngineConfig_CarriesBehaviorFields(t *testing.T) {
	cfg := validConfig()
	cfg.SystemPrompt = "be brief"
	cfg.Tools = []string{"search"}
	cfg.MaxTurns = 3
	cfg.SettingSources = []string{"project"}
	cfg.OutputFormat = map[string]any{"type": "object"}

	ec := cfg.EngineConfig()
	assert.Equal(t, "be brief", ec.SystemPrompt)
	assert.Equal(t, []string{"search"}, ec.AllowedTools)
	assert.Equal(t, 3, ec.MaxTurns)
	assert.Equal(t, []string{"project"}, ec.SettingSources)
	assert.Equal(t, map[string]any{"type": "object"}, ec.OutputFormat)
}
