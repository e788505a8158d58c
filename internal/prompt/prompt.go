// Package prompt asks the user for free-text values.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before a value was given.
var ErrNoInput = errors.New("no input")

// Prompter asks for one required value.
type Prompter interface {
	Ask(label string) (string, error)
}

// New returns a terminal form when stdin is a terminal and a plain line
// reader otherwise, so piped input still works.
func New() Prompter {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return Form{}
	}
	return NewLine(os.Stdin, os.Stderr)
}

// Form prompts with a huh input field.
type Form struct{}

// Ask implements Prompter.
func (Form) Ask(label string) (string, error) {
	var value string
	input := huh.NewInput().
		Title(label).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		})

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt %q: %w", label, err)
	}
	return strings.TrimSpace(value), nil
}

// Line reads answers line by line.
type Line struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLine creates a Line prompter.
func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{in: bufio.NewReader(in), out: out}
}

// Ask writes the label and reads lines until a non-empty one arrives.
func (l *Line) Ask(label string) (string, error) {
	for {
		fmt.Fprintf(l.out, "%s: ", label)
		line, err := l.in.ReadString('\n')
		if value := strings.TrimSpace(line); value != "" {
			return value, nil
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("prompt %q: %w", label, ErrNoInput)
		}
		if err != nil {
			return "", fmt.Errorf("prompt %q: %w", label, err)
		}
	}
}
