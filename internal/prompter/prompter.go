// Package prompter asks the user to confirm state-changing operations.
package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/schmitthub/devcell/internal/iostreams"
)

// ErrNotInteractive is returned by Require when nobody can answer.
var ErrNotInteractive = errors.New("confirmation required but no terminal is attached; pass --yes")

// Prompter reads answers from the IOStreams input and writes questions to
// its error stream.
type Prompter struct {
	ios *iostreams.IOStreams
}

// NewPrompter returns a Prompter on ios.
func NewPrompter(ios *iostreams.IOStreams) *Prompter {
	return &Prompter{ios: ios}
}

// Confirm asks a yes/no question. Without a terminal, an empty answer or
// closed input it returns defaultYes.
func (p *Prompter) Confirm(message string, defaultYes bool) (bool, error) {
	if !p.ios.CanPrompt() {
		return defaultYes, nil
	}

	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	answer, err := p.ask(message + " " + hint)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Require asks for confirmation of a state-changing operation. It never
// assumes an answer: without a terminal it fails with ErrNotInteractive.
func (p *Prompter) Require(message string) (bool, error) {
	if !p.ios.CanPrompt() {
		return false, ErrNotInteractive
	}
	return p.Confirm(message, false)
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprintf(p.ios.ErrOut, "%s ", question)

	line, err := bufio.NewReader(p.ios.In).ReadString('\n')
	switch {
	case errors.Is(err, io.EOF):
		fmt.Fprintln(p.ios.ErrOut)
	case err != nil:
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
