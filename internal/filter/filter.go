// Package filter implements interruption filters deciding whether a caller may
// ring the device.
package filter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
)

// AllowAll lets every call ring.
type AllowAll struct{}

// MatchesFilter always returns true.
func (AllowAll) MatchesFilter(context.Context, []string) bool { return true }

// Option configures a Rule.
type Option func(*Rule)

// WithLogger sets the logger used for evaluation failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Rule) {
		r.logger = logger.With().Str("component", "filter").Logger()
	}
}

// WithAllowUnknown decides whether calls without any contact reference ring.
// Such calls never reach the rule.
func WithAllowUnknown(allow bool) Option {
	return func(r *Rule) {
		r.allowUnknown = allow
	}
}

// WithClock overrides the time source exposed to rules.
func WithClock(now func() time.Time) Option {
	return func(r *Rule) {
		if now != nil {
			r.now = now
		}
	}
}

// Rule evaluates a boolean expression for every incoming call. The expression
// sees the variables
//
//	contacts  []string  all contact references of the caller
//	contact   string    the first contact reference
//	hour      int       local hour of day
//	minute    int       local minute
//	weekday   string    lower case weekday name, e.g. "sunday"
//
// Evaluation errors let the call ring.
type Rule struct {
	source       string
	program      *vm.Program
	allowUnknown bool
	logger       zerolog.Logger
	now          func() time.Time
}

// Compile parses and type checks a rule.
func Compile(source string, opts ...Option) (*Rule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("filter rule must not be empty")
	}
	program, err := expr.Compile(source, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter rule: %w", err)
	}
	r := &Rule{
		source:       source,
		program:      program,
		allowUnknown: true,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Source returns the rule text.
func (r *Rule) Source() string {
	return r.source
}

// MatchesFilter reports whether the call may ring.
func (r *Rule) MatchesFilter(_ context.Context, contacts []string) bool {
	if len(contacts) == 0 {
		return r.allowUnknown
	}
	now := r.now()
	env := map[string]interface{}{
		"contacts": contacts,
		"contact":  contacts[0],
		"hour":     now.Hour(),
		"minute":   now.Minute(),
		"weekday":  strings.ToLower(now.Weekday().String()),
	}
	out, err := vm.Run(r.program, env)
	if err != nil {
		r.logger.Warn().Err(err).Str("rule", r.source).Msg("filter rule failed, letting call ring")
		return true
	}
	allowed, ok := out.(bool)
	if !ok {
		r.logger.Warn().Str("rule", r.source).Msgf("filter rule returned %T, letting call ring", out)
		return true
	}
	return allowed
}
