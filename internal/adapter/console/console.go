package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"webpilot/internal/domain"
)

// Console implements domain.UserInterface over a terminal. The reader and
// writer are injectable so tests can drive the dialogue.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a Console reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Prompt implements domain.UserInterface. The read itself is not
// interruptible on a terminal, so cancellation is checked around it.
func (c *Console) Prompt(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(c.out, "%s\n> ", text)

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Choose implements domain.UserInterface. It accepts the option number or a
// unique prefix of the option text, and re-asks on anything else.
func (c *Console) Choose(ctx context.Context, text string, options []string) (int, error) {
	for {
		fmt.Fprintln(c.out, text)
		for i, opt := range options {
			fmt.Fprintf(c.out, "  %d. %s\n", i+1, opt)
		}

		answer, err := c.Prompt(ctx, "choice")
		if err != nil {
			return 0, err
		}

		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		if idx := matchPrefix(answer, options); idx >= 0 {
			return idx, nil
		}
		fmt.Fprintf(c.out, "Please answer 1-%d.\n", len(options))
	}
}

// Notify implements domain.UserInterface.
func (c *Console) Notify(text string, severity domain.Severity) {
	prefix := ""
	switch severity {
	case domain.SeverityWarning:
		prefix = "[warn] "
	case domain.SeverityError:
		prefix = "[error] "
	}
	fmt.Fprintf(c.out, "%s%s\n", prefix, text)
}

// matchPrefix returns the index of the single option the answer prefixes,
// or -1 when the answer is empty or ambiguous.
func matchPrefix(answer string, options []string) int {
	answer = strings.ToLower(answer)
	if answer == "" {
		return -1
	}
	found := -1
	for i, opt := range options {
		if strings.HasPrefix(strings.ToLower(opt), answer) {
			if found >= 0 {
				return -1
			}
			found = i
		}
	}
	return found
}
