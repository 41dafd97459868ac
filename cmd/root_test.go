package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"analyze", "history", "camera", "feed", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "finder", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "targets", "format"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s flag", name)
	}
	assert.Equal(t, "table", analyzeCmd.Flags().Lookup("format").DefValue)
}

func TestHistoryCommand_Flags(t *testing.T) {
	for _, name := range []string{"limit", "trend", "method", "offline", "format"} {
		assert.NotNil(t, historyCmd.Flags().Lookup(name), "history should have --%s flag", name)
	}
	assert.Equal(t, "0", historyCmd.Flags().Lookup("limit").DefValue)
}

func TestCameraCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cameraCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["start"])
	assert.True(t, names["stop"])
}

func TestFeedCommand_Flags(t *testing.T) {
	for _, name := range []string{"targets", "frames", "out", "max-fps"} {
		assert.NotNil(t, feedCmd.Flags().Lookup(name), "feed should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
