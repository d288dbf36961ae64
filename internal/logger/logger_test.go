package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	SetFormat("text")
	SetLevel("WARN")
	t.Cleanup(func() {
		SetWriter(os.Stdout)
		SetLevel("INFO")
	})

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	SetFormat("json")
	SetLevel("debug")
	t.Cleanup(func() {
		SetWriter(os.Stdout)
		SetFormat("text")
		SetLevel("INFO")
	})

	Debug("AddChild: parent=%s", "p1")

	var line jsonLine
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "DEBUG", line.Level)
	assert.Equal(t, "AddChild: parent=p1", line.Message)
}
