// Package operator models the human in the loop. Every method is a
// synchronous blocking call that returns an operator-supplied token;
// correctness of ambiguous UI handling depends on genuine operator judgment,
// so none of these may be replaced with a silent default.
package operator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Interface is the operator interaction surface injected into the flow
// engine, the page walker and the job driver.
type Interface interface {
	// Ask prints the prompt and blocks for one line of input, trimmed.
	Ask(prompt string) (string, error)
	// AskSecret blocks for one line without echoing (credentials).
	AskSecret(prompt string) (string, error)
	// Acknowledge prints the message and blocks until the operator presses
	// Enter (manual-intervention handoffs).
	Acknowledge(message string) error
	// Say prints a message for the operator without blocking.
	Say(message string)
}

// Console is the terminal implementation over stdin/stdout.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	// secretFd is the file descriptor used for no-echo reads; stdin unless
	// overridden in tests.
	secretFd int
}

// NewConsole returns an operator surface bound to the process terminal.
func NewConsole() *Console {
	return &Console{in: bufio.NewReader(os.Stdin), out: os.Stdout, secretFd: int(os.Stdin.Fd())}
}

// NewConsoleWith builds a console over arbitrary streams. Used by tests.
func NewConsoleWith(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out, secretFd: -1}
}

func (c *Console) Ask(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading operator input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) AskSecret(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if c.secretFd >= 0 && term.IsTerminal(c.secretFd) {
		raw, err := term.ReadPassword(c.secretFd)
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	// Not a terminal (tests, pipes); fall back to an echoing read.
	return c.Ask("")
}

func (c *Console) Acknowledge(message string) error {
	_, err := c.Ask(message)
	return err
}

func (c *Console) Say(message string) {
	fmt.Fprintln(c.out, message)
}

// Scripted is a deterministic operator that replays canned responses. It
// backs engine and walker tests, and doubles as a dry-run operator.
type Scripted struct {
	// Responses are consumed in order by Ask and AskSecret.
	Responses []string
	// Asked records every prompt shown, including Acknowledge messages.
	Asked []string
	// Said records every non-blocking message.
	Said []string
	next int
}

func (s *Scripted) Ask(prompt string) (string, error) {
	s.Asked = append(s.Asked, prompt)
	if s.next >= len(s.Responses) {
		return "", fmt.Errorf("scripted operator exhausted after %d responses (prompt: %s)", len(s.Responses), prompt)
	}
	r := s.Responses[s.next]
	s.next++
	return r, nil
}

func (s *Scripted) AskSecret(prompt string) (string, error) { return s.Ask(prompt) }

func (s *Scripted) Acknowledge(message string) error {
	s.Asked = append(s.Asked, message)
	return nil
}

func (s *Scripted) Say(message string) { s.Said = append(s.Said, message) }
