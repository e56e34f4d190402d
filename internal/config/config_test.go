package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, FormatYAML, cfg.Output.Format)
	assert.Equal(t, ModeLSO, cfg.Decode.Mode)
	assert.False(t, cfg.Decode.Flex)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amfdump.yaml")
	data := []byte("log:\n  level: debug\noutput:\n  format: json\ndecode:\n  mode: remoting\n  flex: true\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.Equal(t, ModeRemoting, cfg.Decode.Mode)
	assert.True(t, cfg.Decode.Flex)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParsePartial(t *testing.T) {
	cfg, err := Parse([]byte("output:\n  format: cbor\n"))
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, cfg.Output.Format)
	assert.Equal(t, ModeLSO, cfg.Decode.Mode)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", "output:\n  colour: red\n"},
		{"unknown format", "output:\n  format: xml\n"},
		{"unknown mode", "decode:\n  mode: flv\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"not yaml", "output: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
