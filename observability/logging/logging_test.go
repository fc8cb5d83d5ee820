package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsCanonicalKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("agentlend", "test", Options{Output: &buf})
	logger.Info("ledger ready", "op", "init")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "ledger ready", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "agentlend", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("agentlend", "", Options{Output: &buf, Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestSetupWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentlend.log")
	opts := Options{File: path, MaxSizeMB: 1}
	w := opts.writer()
	_, err := w.Write([]byte("probe\n"))
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMasking(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("secret", "hunter2").Value.String())
	require.Equal(t, "supply", MaskField("op", "supply").Value.String())
	require.Equal(t, "", MaskField("secret", "").Value.String())
	require.Equal(t, RedactedValue, MaskValue("0xabc"))
	require.Equal(t, " ", MaskValue(" "))

	attr := MaskAddress("lender", "0x00000000000000000000000000000000000000a1")
	require.Equal(t, "0x0000…00a1", attr.Value.String())
	require.Contains(t, RedactionAllowlist(), "requestid")
}
