package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpilot/internal/domain"
)

func TestConsole_PromptTrimsInput(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("  hello world  \n"), &out)

	answer, err := c.Prompt(context.Background(), "What should I do?")

	require.NoError(t, err)
	assert.Equal(t, "hello world", answer)
	assert.Contains(t, out.String(), "What should I do?")
	assert.Contains(t, out.String(), "> ")
}

func TestConsole_PromptCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(strings.NewReader("hello\n"), &bytes.Buffer{})

	_, err := c.Prompt(ctx, "anything")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsole_PromptLastLineWithoutNewline(t *testing.T) {
	c := New(strings.NewReader("yes"), &bytes.Buffer{})

	answer, err := c.Prompt(context.Background(), "proceed?")

	require.NoError(t, err)
	assert.Equal(t, "yes", answer)
}

func TestConsole_ChooseByNumber(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("2\n"), &out)

	idx, err := c.Choose(context.Background(), "How should I proceed?", []string{"retry the step", "skip this step"})

	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "1. retry the step")
	assert.Contains(t, out.String(), "2. skip this step")
}

func TestConsole_ChooseByPrefix(t *testing.T) {
	c := New(strings.NewReader("SKIP\n"), &bytes.Buffer{})

	idx, err := c.Choose(context.Background(), "pick", []string{"retry the step", "skip this step"})

	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestConsole_ChooseReasksOnNonsense(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("banana\n0\n1\n"), &out)

	idx, err := c.Choose(context.Background(), "pick", []string{"retry the step", "skip this step"})

	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Contains(t, out.String(), "Please answer 1-2.")
}

func TestConsole_ChooseAmbiguousPrefixReasks(t *testing.T) {
	c := New(strings.NewReader("s\n2\n"), &bytes.Buffer{})

	idx, err := c.Choose(context.Background(), "pick", []string{"send now", "skip this step"})

	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestConsole_NotifyPrefixes(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out)

	c.Notify("all good", domain.SeverityInfo)
	c.Notify("step failed", domain.SeverityWarning)
	c.Notify("browser gone", domain.SeverityError)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "all good", lines[0])
	assert.Equal(t, "[warn] step failed", lines[1])
	assert.Equal(t, "[error] browser gone", lines[2])
}
