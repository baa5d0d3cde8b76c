package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/pipeline"
)

// Session walks one scenario through its prompts on the terminal.
type Session struct {
	orchestrator *pipeline.Orchestrator
	prompter     *Prompter
	// AskOptional also offers optional parameters once.
	AskOptional bool
}

// NewSession creates a session.
func NewSession(o *pipeline.Orchestrator, p *Prompter) *Session {
	return &Session{orchestrator: o, prompter: p, AskOptional: true}
}

// Collect asks for every outstanding parameter and linked prompt and leaves the
// scenario ready to apply. Answers are submitted one at a time so an
// interrupted session keeps what was already answered.
func (s *Session) Collect(ctx context.Context, id string) (pipeline.Result, error) {
	_, res, err := s.orchestrator.Get(ctx, id)
	if err != nil {
		return pipeline.Result{}, err
	}

	if res, err = s.askRequired(ctx, id, res); err != nil {
		return res, err
	}

	if s.AskOptional {
		for _, req := range res.OptionalPrompts {
			if slices.ContainsFunc(res.RemainingPrompts, func(p model.PromptRequest) bool { return p.Key == req.Key }) {
				continue
			}
			value, ok, err := s.prompter.Ask(ctx, req)
			if err != nil {
				return res, err
			}
			if !ok {
				continue
			}
			next, err := s.submit(ctx, id, req.Key, value)
			if err != nil {
				return res, err
			}
			if next != nil {
				res = *next
			}
		}
		// An optional answer can make another key required.
		if res, err = s.askRequired(ctx, id, res); err != nil {
			return res, err
		}
	}

	for len(res.LinkedPrompts) > 0 {
		lt := res.LinkedPrompts[0].LinkedType
		next, err := s.offerLinked(ctx, id, lt, promptsFor(res.LinkedPrompts, lt))
		if err != nil {
			return res, err
		}
		res = next
	}
	return res, nil
}

func (s *Session) askRequired(ctx context.Context, id string, res pipeline.Result) (pipeline.Result, error) {
	for len(res.RemainingPrompts) > 0 {
		req := res.RemainingPrompts[0]
		value, _, err := s.prompter.Ask(ctx, req)
		if err != nil {
			return res, err
		}
		next, err := s.submit(ctx, id, req.Key, value)
		if err != nil {
			return res, err
		}
		if next != nil {
			res = *next
		}
	}
	return res, nil
}

// submit sends one answer. A rejected answer is reported and yields a nil
// result so the caller asks again; other errors are returned.
func (s *Session) submit(ctx context.Context, id, key, value string) (*pipeline.Result, error) {
	next, err := s.orchestrator.SubmitAnswers(ctx, id, map[string]string{key: value})
	if err == nil {
		return &next, nil
	}
	if !errors.Is(err, common.ErrValidation) {
		return nil, err
	}
	if werr := s.prompter.Notify(FormatError(err.Error())); werr != nil {
		return nil, werr
	}
	return nil, nil
}

func (s *Session) offerLinked(ctx context.Context, id string, lt model.LinkedType, prompts []model.PromptRequest) (pipeline.Result, error) {
	effect, err := s.orchestrator.Registry().Linked(lt)
	if err != nil {
		return pipeline.Result{}, err
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		params, accepted, err := s.prompter.AskLinked(ctx, effect.Label, prompts)
		if err != nil {
			return pipeline.Result{}, err
		}
		if !accepted {
			return s.orchestrator.SkipLinked(ctx, id, lt)
		}
		res, err := s.orchestrator.AnswerLinked(ctx, id, lt, params)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, common.ErrValidation) {
			return pipeline.Result{}, err
		}
		if werr := s.prompter.Notify(FormatError(err.Error())); werr != nil {
			return pipeline.Result{}, werr
		}
	}
	return pipeline.Result{}, fmt.Errorf("%s: %w", lt, ErrTooManyAttempts)
}

func promptsFor(prompts []model.PromptRequest, lt model.LinkedType) []model.PromptRequest {
	var out []model.PromptRequest
	for _, p := range prompts {
		if p.LinkedType == lt {
			out = append(out, p)
		}
	}
	return out
}
