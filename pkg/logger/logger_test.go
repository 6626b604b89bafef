package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesLogEntries(t *testing.T) {
	l := New("test-service")
	ch := l.Subscribe()
	l.DisableConsoleOutput()

	l.Info("hello %s", "world")

	select {
	case entry := <-ch:
		require.Equal(t, "INFO", entry.Level)
		require.Equal(t, "hello world", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log entry")
	}
}

func TestSubscribeDropsOnFullChannelWithoutBlocking(t *testing.T) {
	l := New("test-service")
	l.DisableConsoleOutput()
	l.Subscribe() // small buffered channel; fill past capacity

	for i := 0; i < 200; i++ {
		l.Info("message %d", i)
	}
	// No deadlock/panic means the logger handled backpressure by dropping.
}

func TestWithFieldsAttachesFields(t *testing.T) {
	l := New("test-service")
	ch := l.Subscribe()
	l.DisableConsoleOutput()

	l.WithFields(map[string]string{"stream": "42"}).Error("boom")

	select {
	case entry := <-ch:
		require.Equal(t, "ERROR", entry.Level)
		require.Equal(t, "42", entry.Fields["stream"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log entry")
	}
}

func TestFormatServiceNameTruncatesLongNames(t *testing.T) {
	name := formatServiceName("this-is-a-very-long-service-name-indeed")
	require.Contains(t, name, "…")
	require.NotContains(t, name, "indeed")
}
