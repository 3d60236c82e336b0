package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer logger.SetLevel(logrus.InfoLevel)

	tests := []struct {
		level string
		ok    bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"trace", false},
		{"loud", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLevel(tt.level)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLogCarriesCategory(t *testing.T) {
	hook := test.NewLocal(Logger())
	defer hook.Reset()

	Warn("dispatch", "dropped %d", 3)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "dispatch", entry.Data["cat"])
	assert.Equal(t, "dropped 3", entry.Message)
}

func TestVerboseRespectsLevel(t *testing.T) {
	defer logger.SetLevel(logrus.InfoLevel)
	hook := test.NewLocal(Logger())
	defer hook.Reset()

	Verbose("tick", "hidden")
	assert.Empty(t, hook.AllEntries())

	require.NoError(t, SetLevel("debug"))
	Verbose("tick", "shown")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "shown", hook.LastEntry().Message)
}

func TestEnableWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debug.log")
	require.NoError(t, Enable(path))
	Log("test", "hello %s", "file")
	Disable()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Debug logging started")
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), "cat=test")
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for i := 0; i < 10; i++ {
		LogEvery(5, "every", "ping")
	}
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("ping (every 5")))
}

func TestLogEveryNonPositive(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for _, n := range []int{0, -3} {
		assert.NotPanics(t, func() { LogEvery(n, "every", "pong") })
	}
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("pong (every 1")))
}
