// Package prompt asks the operator yes/no questions on a reader/writer pair,
// typically stdin and stdout.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Prompter struct {
	r *bufio.Reader
	w io.Writer
}

func New(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{r: bufio.NewReader(r), w: w}
}

// Confirm prints the question and reads one line. Only "y" or "yes"
// (case-insensitive) answer true; an empty line is the default "no". A closed
// input with no answer is an error, not a "no".
func (p *Prompter) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprintf(p.w, "%s [y/N]: ", question); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}

	line, err := p.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line == "" {
			return false, fmt.Errorf("read answer: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
