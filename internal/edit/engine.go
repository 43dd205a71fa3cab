// Package edit implements the editing commands. Each command runs against a
// private clone of the timeline and is published only if every invariant
// still holds afterwards, so a rejected command never leaves partial state.
package edit

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/timeline"
)

// Command is a single atomic transformation of a timeline
type Command interface {
	Name() string
	Apply(tl *timeline.Timeline, env Env) error
}

// Engine applies commands
type Engine struct {
	logger zerolog.Logger
	assets AssetSource
}

// NewEngine creates an engine resolving assets through assets
func NewEngine(logger zerolog.Logger, assets AssetSource) *Engine {
	return &Engine{
		logger: logging.WithComponent(logger, "edit"),
		assets: assets,
	}
}

// Apply runs cmd against a clone of tl. On success the new timeline is
// returned; on failure tl itself is returned with an *Error.
func (e *Engine) Apply(tl *timeline.Timeline, st State, cmd Command) (*timeline.Timeline, error) {
	if cmd == nil {
		return tl, &Error{Op: "apply", Err: fail(ErrInvalidRange, "nil command")}
	}

	next := tl.Clone()
	env := Env{State: st, Assets: e.assets}

	err := cmd.Apply(next, env)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		var editErr *Error
		if !errors.As(err, &editErr) {
			editErr = &Error{Op: cmd.Name(), Err: classify(err)}
		}
		e.logger.Debug().
			Str("op", cmd.Name()).
			Err(editErr).
			Msg("command rejected")
		return tl, editErr
	}

	e.logger.Debug().
		Str("op", cmd.Name()).
		Int("clips", next.ClipCount()).
		Dur("duration", next.TotalDuration()).
		Msg("command applied")
	return next, nil
}

// Batch applies several commands as one indivisible step
type Batch struct {
	Label    string
	Commands []Command
}

func (b *Batch) Name() string {
	if b.Label != "" {
		return b.Label
	}
	return "batch"
}

func (b *Batch) Apply(tl *timeline.Timeline, env Env) error {
	for _, cmd := range b.Commands {
		if err := cmd.Apply(tl, env); err != nil {
			return &Error{Op: b.Name() + "/" + cmd.Name(), Err: classify(err)}
		}
	}
	return nil
}
