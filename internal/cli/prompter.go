package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/scenario"
)

// ErrTooManyAttempts is returned when an answer is rejected maxAttempts times in a row.
var ErrTooManyAttempts = errors.New("too many invalid answers")

const maxAttempts = 3

// Prompter asks for scenario parameters on the terminal. Answers are checked
// locally so a typo is re-asked instead of being sent to the pipeline.
type Prompter struct {
	reader *LineReader
	writer io.Writer
}

// NewPrompter creates a prompter reading from r and writing to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Prompter{reader: NewLineReader(r), writer: w}
}

// Ask prompts for one value. For an optional prompt a blank answer returns
// ok=false.
func (p *Prompter) Ask(ctx context.Context, req model.PromptRequest) (value string, ok bool, err error) {
	spec := model.ParamSpec{Key: req.Key, Label: req.Label, Type: req.Type, Choices: req.Choices}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := p.printf("%s", FormatPrompt(promptText(req))); err != nil {
			return "", false, err
		}
		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", false, err
		}

		if line == "" && req.Optional {
			return "", false, nil
		}
		if err := scenario.CheckAnswer(spec, line); err != nil {
			if werr := p.println(FormatError(err.Error())); werr != nil {
				return "", false, werr
			}
			continue
		}
		return line, true, nil
	}
	return "", false, fmt.Errorf("%s: %w", req.Key, ErrTooManyAttempts)
}

// Confirm asks a yes/no question. A blank answer takes def.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := p.printf("%s", FormatPrompt(question+" "+hint)); err != nil {
			return false, err
		}
		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			return false, err
		}
		if line == "" {
			return def, nil
		}
		b, err := scenario.ParseBool(line)
		if err == nil {
			return b, nil
		}
		if werr := p.println(FormatError(err.Error())); werr != nil {
			return false, werr
		}
	}
	return false, ErrTooManyAttempts
}

// AskLinked offers a linked effect. When the user accepts, every prompt is
// asked and the answers are returned; optional prompts left blank are omitted.
func (p *Prompter) AskLinked(ctx context.Context, label string, prompts []model.PromptRequest) (map[string]string, bool, error) {
	accept, err := p.Confirm(ctx, LinkIcon+" "+label+"?", false)
	if err != nil || !accept {
		return nil, false, err
	}

	params := make(map[string]string, len(prompts))
	for _, req := range prompts {
		v, ok, err := p.Ask(ctx, req)
		if err != nil {
			return nil, false, err
		}
		if ok {
			params[req.Key] = v
		}
	}
	return params, true, nil
}

// Notify prints a line.
func (p *Prompter) Notify(msg string) error {
	return p.println(msg)
}

func promptText(req model.PromptRequest) string {
	var b strings.Builder
	b.WriteString(req.Label)
	switch {
	case len(req.Choices) > 0:
		fmt.Fprintf(&b, " (%s)", strings.Join(req.Choices, "/"))
	case req.Type == model.AnswerDate:
		b.WriteString(" (YYYY-MM-DD)")
	case req.Type == model.AnswerIDList:
		b.WriteString(" (comma separated)")
	case req.Type == model.AnswerPercent:
		b.WriteString(" (%)")
	}
	if req.Optional {
		b.WriteString(SubtleStyle.Render(" [optional]"))
	}
	return b.String()
}

func (p *Prompter) printf(format string, args ...any) error {
	if _, err := fmt.Fprintf(p.writer, format, args...); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	return nil
}

func (p *Prompter) println(msg string) error {
	if _, err := fmt.Fprintln(p.writer, msg); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
