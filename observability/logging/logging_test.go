package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, closer := SetupWithOptions("farmd", "test", Options{Writer: &buf})
	t.Cleanup(func() { _ = closer.Close() })

	logger.Info("pool added", "pid", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "pool added", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "farmd", line["service"])
	require.Equal(t, "test", line["env"])
	require.EqualValues(t, 3, line["pid"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, _ := SetupWithOptions("farmd", "", Options{Writer: &buf, Level: ParseLevel("warn")})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestSetupRotatedFileSink(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "farmd.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("farmd", "", Options{
		Writer: &buf,
		File:   &FileSink{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	})
	logger.Info("checkpoint")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "checkpoint")
	require.Contains(t, buf.String(), "checkpoint")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("hmac_secret", "s3cret").Value.String())
	require.Equal(t, "boom", MaskField("error", "boom").Value.String())
	require.Equal(t, "", MaskField("secret", "").Value.String())
	require.True(t, IsPlain(" Route "))
}

func TestTokenFingerprint(t *testing.T) {
	a := TokenFingerprint("token", "Bearer abc.def.ghi")
	b := TokenFingerprint("token", "abc.def.ghi")
	require.Equal(t, a.Value.String(), b.Value.String())
	require.True(t, strings.HasPrefix(a.Value.String(), "sha256:"))
	require.Len(t, a.Value.String(), len("sha256:")+8)
	require.Equal(t, "", TokenFingerprint("token", "Bearer ").Value.String())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
