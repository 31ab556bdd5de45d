package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pacer", cmd.Use)
	assert.Contains(t, cmd.Long, "local-first")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"session", "start"}, {"session", "end"}, {"session", "list"}, {"session", "show"},
		{"log"},
		{"event", "list"}, {"event", "delete"}, {"event", "replace"},
		{"state"},
		{"preset", "add"}, {"preset", "update"}, {"preset", "list"}, {"preset", "delete"},
		{"settings", "show"}, {"settings", "set"},
		{"sync"}, {"status"}, {"daemon"}, {"apply"}, {"erase"}, {"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestLogCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	logCmd, _, err := cmd.Find([]string{"log"})
	require.NoError(t, err)

	weight := logCmd.Flags().Lookup("weight")
	require.NotNil(t, weight)
	assert.Equal(t, "1", weight.DefValue)

	source := logCmd.Flags().Lookup("source")
	require.NotNil(t, source)
	assert.Equal(t, "phone", source.DefValue)
}

func TestExecute_InvalidFormat(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"--format", "xml", "status"}, &out, &errOut)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), `invalid format "xml"`)
}

func TestExecute_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"launch"}, &out, &errOut)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), "unknown command")
}

func TestExecute_MissingConfigFile(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"--config", "/nonexistent/pacer.yaml", "status"}, &out, &errOut)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), "failed to load config")
}
