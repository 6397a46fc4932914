package log_test

import (
	"testing"

	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/security"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events   []*log.LogEvent
	minLevel types.Level
	closed   bool
}

func (s *recordingSink) Write(event *log.LogEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

type leveledSink struct {
	recordingSink
}

func (s *leveledSink) MinLevel() types.Level {
	return s.minLevel
}

func TestRouter_ParsesZerologLines(t *testing.T) {
	sink := &recordingSink{}
	router := log.NewRouter(sink)
	logger := log.NewZerologAdapter(zerolog.New(router).With().Timestamp().Logger())

	logger.Warn().Str("capability", "fetch_emails").Msg("Failed to fetch emails")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, types.WarnLevel, evt.Level)
	assert.Equal(t, "Failed to fetch emails", evt.Message)
	assert.Equal(t, "fetch_emails", evt.Fields["capability"])
	assert.False(t, evt.Timestamp.IsZero())
}

func TestRouter_Redacts(t *testing.T) {
	sink := &recordingSink{}
	router := log.NewRouter(sink)
	router.SetRedactor(&security.Redactor{Secrets: []string{"gsk_secret"}})
	logger := log.NewZerologAdapter(zerolog.New(router))

	logger.Info().
		Interface("headers", map[string]any{"Authorization": "Bearer gsk_secret"}).
		Msg("calling with gsk_secret")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "calling with ********", sink.events[0].Message)
	headers := sink.events[0].Fields["headers"].(map[string]any)
	assert.Equal(t, "Bearer ********", headers["Authorization"])
}

func TestRouter_LeveledSinkFiltering(t *testing.T) {
	all := &recordingSink{}
	warnOnly := &leveledSink{recordingSink{minLevel: types.WarnLevel}}
	router := log.NewRouter(all, warnOnly)
	logger := log.NewZerologAdapter(zerolog.New(router))

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	logger.Error().Msg("error")

	assert.Len(t, all.events, 3)
	require.Len(t, warnOnly.events, 1)
	assert.Equal(t, "error", warnOnly.events[0].Message)
}

func TestRouter_InvalidLineIsSkipped(t *testing.T) {
	sink := &recordingSink{}
	router := log.NewRouter(sink)

	n, err := router.Write([]byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, len("not json"), n)
	assert.Empty(t, sink.events)
}

func TestRouter_CloseClosesSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	router := log.NewRouter(a)
	router.AddSink(b)

	require.NoError(t, router.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
