package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "JSON")

	l.Info("hidden")
	l.Warn("place_skipped", "place", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "place_skipped", rec["msg"])
	assert.Equal(t, float64(7), rec["place"])
}

func TestNew_TextDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "verbose", "")

	l.Debug("hidden")
	l.Info("rebuild_done")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=rebuild_done")
}
