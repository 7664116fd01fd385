package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		l, err := Setup(Options{Level: tt.in, Stdout: &bytes.Buffer{}})
		require.NoError(t, err)
		assert.Equal(t, tt.want, l.GetLevel(), tt.in)
	}
}

func TestSetup_UnknownFormat(t *testing.T) {
	_, err := Setup(Options{Format: "xml"})
	assert.ErrorContains(t, err, "xml")
}

func TestSetup_JSONComponentAndAlert(t *testing.T) {
	var buf bytes.Buffer
	l, err := Setup(Options{Format: "json", Stdout: &buf})
	require.NoError(t, err)

	l.With("payments").Alert(errors.New("db down"), "premium granted but payment not marked")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payments", line["component"])
	assert.Equal(t, true, line["alert"])
	assert.Equal(t, "db down", line["error"])
	assert.Equal(t, "error", line["level"])
}

func TestSetup_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	l, err := Setup(Options{File: path, Format: "json", Stdout: &bytes.Buffer{}})
	require.NoError(t, err)

	l.Info().Msg("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"started"`)
}

func TestGet_NoopBeforeInit(t *testing.T) {
	prev := global
	t.Cleanup(func() { global = prev })
	global = nil

	assert.NotPanics(t, func() { Component("bot").Info().Msg("dropped") })

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Format: "json", Stdout: &buf}))
	Component("bot").Info().Msg("kept")
	assert.Contains(t, buf.String(), `"component":"bot"`)
}
