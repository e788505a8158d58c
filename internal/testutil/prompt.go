package testutil

import (
	"fmt"

	"mac-bootstrap/internal/prompt"
)

// Prompter answers prompts by label and records what was asked.
type Prompter struct {
	Answers map[string]string
	Asked   []string
}

// NewPrompter creates a Prompter with the given answers.
func NewPrompter(answers map[string]string) *Prompter {
	return &Prompter{Answers: answers}
}

// Ask implements prompt.Prompter.
func (p *Prompter) Ask(label string) (string, error) {
	p.Asked = append(p.Asked, label)
	v, ok := p.Answers[label]
	if !ok {
		return "", fmt.Errorf("unexpected prompt %q", label)
	}
	return v, nil
}

var _ prompt.Prompter = (*Prompter)(nil)
