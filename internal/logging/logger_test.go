package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesFileAndHistory(t *testing.T) {
	var console bytes.Buffer
	l, err := New(&Config{Dir: t.TempDir(), Level: "debug", MaxHistory: 2, Console: true, Out: &console})
	require.NoError(t, err)
	defer l.Close()

	log := l.Component("gate")
	log.Debug().Msg("first")
	log.Info().Msg("second")
	log.Warn().Msg("third")

	hist := l.History(0)
	require.Len(t, hist, 2, "history is bounded by MaxHistory")
	assert.Equal(t, "second", hist[0].Message)
	assert.Equal(t, "third", hist[1].Message)
	assert.Equal(t, "warn", hist[1].Level)

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"component":"gate"`)
	assert.Contains(t, console.String(), "third")
}

func TestNew_LevelFiltersHistory(t *testing.T) {
	l, err := New(&Config{Level: "warn"})
	require.NoError(t, err)

	zl := l.Zerolog()
	zl.Info().Msg("dropped")
	zl.Error().Msg("kept")

	hist := l.History(10)
	require.Len(t, hist, 1)
	assert.Equal(t, "kept", hist[0].Message)
	assert.Empty(t, l.Path())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}
