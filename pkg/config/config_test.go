package config

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
}

func (c *sampleConfig) Validate() error {
	if c.Name == "" {
		return errInvalidConfigSource
	}

	return nil
}

func TestFileConfigLoaderLoadsJSON(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.json")
	require.NoError(t, err)

	payload, err := json.Marshal(sampleConfig{Name: "sentinel", Threshold: 10})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tmp.Name(), payload, 0o600))

	var out sampleConfig
	loader := NewFileConfigLoader(nil)
	require.NoError(t, loader.Load(context.Background(), tmp.Name(), &out))

	assert.Equal(t, "sentinel", out.Name)
	assert.Equal(t, 10, out.Threshold)
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.json")
	require.NoError(t, err)

	payload, err := json.Marshal(sampleConfig{Name: "", Threshold: 1})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tmp.Name(), payload, 0o600))

	cfg := NewConfig(nil)

	var out sampleConfig
	err = cfg.LoadAndValidate(context.Background(), tmp.Name(), &out)
	assert.Error(t, err)
}

func TestLoadAndValidateFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("SENTINEL_NAME", "from-env")
	t.Setenv("SENTINEL_THRESHOLD", "42")

	cfg := NewConfig(nil)

	var out sampleConfig
	require.NoError(t, cfg.LoadAndValidate(context.Background(), "", &out))

	assert.Equal(t, "from-env", out.Name)
	assert.Equal(t, 42, out.Threshold)
}

func TestInvalidConfigSourceRejected(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "bogus")

	cfg := NewConfig(nil)

	var out sampleConfig
	err := cfg.LoadAndValidate(context.Background(), "", &out)
	assert.Error(t, err)
}
