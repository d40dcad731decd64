package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"text/tabwriter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCommand(t *testing.T) {
	tests := []struct {
		name  string
		found bool
	}{
		{"migrate", true},
		{"flush", true},
		{"archive", true},
		{"cleanup", true},
		{"stats", true},
		{"settings", true},
		{"seed", true},
		{"status", true},
		{"help", true},
		{"create-admin-user", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := findCommand(tt.name)
			if tt.found {
				require.NotNil(t, cmd)
				assert.Equal(t, tt.name, cmd.Name())
			} else {
				assert.Nil(t, cmd)
			}
		})
	}
}

func TestEnvPrint(t *testing.T) {
	value := map[string]any{"inserted": 3}
	table := func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Inserted:\t%d\n", 3)
	}

	t.Run("json when piped", func(t *testing.T) {
		var out bytes.Buffer
		env := &Env{Out: &out, JSON: true}
		require.NoError(t, env.print(value, table))
		assert.JSONEq(t, `{"inserted":3}`, out.String())
	})

	t.Run("table on a terminal", func(t *testing.T) {
		var out bytes.Buffer
		env := &Env{Out: &out}
		require.NoError(t, env.print(value, table))
		assert.Equal(t, "Inserted:  3\n", out.String())
	})
}

func TestHelpListsEveryCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&HelpCommand{}).Execute(context.Background(), &Env{Out: &out}, nil))

	for _, cmd := range commands {
		assert.Contains(t, out.String(), cmd.Name()+": "+cmd.Description())
	}
}
