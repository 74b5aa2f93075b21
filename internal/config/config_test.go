package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnexium/memory-substrate/internal/config"
)

func TestLoadDefaultHostIsAllInterfaces(t *testing.T) {
	_ = os.Unsetenv("MEMENTO_HOST")
	cfg := config.Load()
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadCanOverridePort(t *testing.T) {
	t.Setenv("MEMENTO_PORT", "9999")
	cfg := config.Load()
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadDefaultAIModeIsAuto(t *testing.T) {
	_ = os.Unsetenv("MEMENTO_AI_MODE")
	cfg := config.Load()
	assert.Equal(t, config.AIModeAuto, cfg.LLM.AIMode)
}

func TestLoadInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("MEMENTO_PORT", "not-a-number")
	cfg := config.Load()
	assert.Equal(t, 8085, cfg.Server.Port)
}

func TestLoadInvalidBoolFallsBackToDefault(t *testing.T) {
	t.Setenv("MEMENTO_USE_RETRIEVAL_EXPAND", "not-a-bool")
	cfg := config.Load()
	assert.True(t, cfg.Retrieval.UseRetrievalExpand)
}

func TestLoadReadsConfigYAMLDefaults(t *testing.T) {
	_ = os.Unsetenv("MEMENTO_PORT")
	_ = os.Unsetenv("MEMENTO_AI_MODE")
	t.Chdir(t.TempDir())
	err := os.WriteFile("config.yaml", []byte("port: 9100\nai_mode: primary_llm\n"), 0o644)
	assert.NoError(t, err)

	cfg := config.Load()
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "primary_llm", cfg.LLM.AIMode)
}

func TestLoadEnvVarOverridesConfigYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	err := os.WriteFile("config.yaml", []byte("port: 9100\n"), 0o644)
	assert.NoError(t, err)
	t.Setenv("MEMENTO_PORT", "9200")

	cfg := config.Load()
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestLoadMissingConfigYAMLUsesHardcodedDefaults(t *testing.T) {
	_ = os.Unsetenv("MEMENTO_PORT")
	t.Chdir(t.TempDir())

	cfg := config.Load()
	assert.Equal(t, 8085, cfg.Server.Port)
}
