package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rio/internal/manifest"
)

func TestParseSend(t *testing.T) {
	tests := []struct {
		in      string
		want    manifest.Message
		wantErr bool
	}{
		{"Counter:increment", manifest.Message{Actor: "Counter", Event: "increment", Payload: "{}"}, false},
		{"Counter:increment:", manifest.Message{Actor: "Counter", Event: "increment", Payload: "{}"}, false},
		{`Ping:start:{"n": 3}`, manifest.Message{Actor: "Ping", Event: "start", Payload: `{"n": 3}`}, false},
		{"Log:line:a:b", manifest.Message{Actor: "Log", Event: "line", Payload: "a:b"}, false},
		{"Counter", manifest.Message{}, true},
		{":increment", manifest.Message{}, true},
		{"Counter:", manifest.Message{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSend(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActors_DrainsWithoutTicks(t *testing.T) {
	stdout, _, err := execute(t, "actors", testdata("counter.actor"),
		"--send", "Counter:increment", "--send", "Counter:increment", "--send", "Counter:increment")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Actors: 3 ticks, 3 messages handled")
	assert.Contains(t, stdout, "[Counter] 3")
	assert.Contains(t, stdout, "Counter {count=3}")
}

func TestActors_TickLimit(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "actors", testdata("counter.actor"),
		"--send", "Counter:increment", "--send", "Counter:increment", "--ticks", "1")
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Data.Actors)
	assert.Equal(t, 1, resp.Data.Actors.Ticks)
	assert.Equal(t, "1", resp.Data.Actors.State["Counter"]["count"])
	assert.Len(t, resp.Data.Actors.Messages, 2)
}

func TestActors_MissingHandlerIsDiagnostic(t *testing.T) {
	stdout, _, err := execute(t, "actors", testdata("counter.actor"), "--send", "Counter:reset")
	require.NoError(t, err)
	assert.Contains(t, stdout, "! ")
	assert.Contains(t, stdout, "reset")
}

func TestActors_Errors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.actor")
	require.NoError(t, os.WriteFile(bad, []byte("actor\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad send", []string{"actors", testdata("counter.actor"), "--send", "Counter"}, "invalid --send"},
		{"unknown actor", []string{"actors", testdata("counter.actor"), "--send", "Ghost:go"}, "send Ghost.go"},
		{"negative ticks", []string{"actors", testdata("counter.actor"), "--ticks", "-2"}, "--ticks must not be negative"},
		{"missing file", []string{"actors", filepath.Join(t.TempDir(), "absent.actor")}, "failed to read actor file"},
		{"bad definition", []string{"actors", bad}, bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout+err.Error(), tt.want)
		})
	}
}
