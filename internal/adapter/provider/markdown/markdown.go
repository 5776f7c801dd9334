package markdown

import (
	"context"
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

// Markdown hosts the text utilities that need no connection.
type Markdown struct {
	converter *md.Converter
}

func New() *Markdown {
	return &Markdown{converter: md.NewConverter("", true, nil)}
}

func (m *Markdown) Name() string {
	return "My Utilities"
}

func (m *Markdown) Description() string {
	return "A set of utilities that will be handy at times."
}

func (m *Markdown) Actions() []domain.Action {
	return []domain.Action{
		{
			ID:          "markdown",
			Name:        "HTML data to Markdown",
			Description: "Converts an HTML formatted input to a Markdown string",
			Params: []domain.Param{
				{Name: "input", Description: "HTML document or fragment", Type: domain.Text},
			},
			Run: m.toMarkdown,
		},
	}
}

func (m *Markdown) toMarkdown(_ context.Context, args domain.Args) (any, error) {
	text, err := m.converter.ConvertString(args.Raw("input"))
	if err != nil {
		return nil, fmt.Errorf("failed to convert html: %w", err)
	}
	// html is the key existing playbooks read; it holds the Markdown text.
	return domain.Result{"has_error": "false", "html": text, "markdown": text}, nil
}
