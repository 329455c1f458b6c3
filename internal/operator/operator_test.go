package operator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleAskTrimsInput(t *testing.T) {
	out := &bytes.Buffer{}
	c := NewConsoleWith(strings.NewReader("  scan  \n"), out)

	got, err := c.Ask("Ready? ")
	require.NoError(t, err)
	assert.Equal(t, "scan", got)
	assert.Equal(t, "Ready? ", out.String())
}

func TestConsoleAskLastLineWithoutNewline(t *testing.T) {
	c := NewConsoleWith(strings.NewReader("skip"), &bytes.Buffer{})
	got, err := c.Ask("> ")
	require.NoError(t, err)
	assert.Equal(t, "skip", got)
}

func TestConsoleAskEOF(t *testing.T) {
	c := NewConsoleWith(strings.NewReader(""), &bytes.Buffer{})
	_, err := c.Ask("> ")
	assert.Error(t, err)
}

func TestConsoleAskSecretFallsBackWithoutTerminal(t *testing.T) {
	c := NewConsoleWith(strings.NewReader("hunter2\n"), &bytes.Buffer{})
	got, err := c.AskSecret("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestScriptedReplaysInOrder(t *testing.T) {
	s := &Scripted{Responses: []string{"F", "y", "button.next"}}

	for _, want := range []string{"F", "y", "button.next"} {
		got, err := s.Ask("?")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := s.Ask("one too many")
	assert.Error(t, err)
	assert.Len(t, s.Asked, 4)
}

func TestScriptedAcknowledgeAndSay(t *testing.T) {
	s := &Scripted{}
	require.NoError(t, s.Acknowledge("press enter when done"))
	s.Say("heads up")
	assert.Equal(t, []string{"press enter when done"}, s.Asked)
	assert.Equal(t, []string{"heads up"}, s.Said)
}
