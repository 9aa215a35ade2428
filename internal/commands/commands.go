// Package commands implements the operator command surface: each command
// authorizes the actor, validates its input, then loads, mutates and saves
// the guild's policy.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/1sec-project/guildshield/internal/authz"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Outcome classifies a command result.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyPresent Outcome = "already-present"
	OutcomeAlreadyAbsent  Outcome = "already-absent"
	OutcomeUnauthorized   Outcome = "unauthorized"
	OutcomeInvalidInput   Outcome = "invalid-input"
	OutcomeListed         Outcome = "listed"
	OutcomeFailed         Outcome = "failed"
)

var (
	// ErrInvalidInput is returned for arguments rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownCommand is returned by Execute for a name it does not know.
	ErrUnknownCommand = errors.New("unknown command")
)

// Invocation identifies who runs a command in which guild.
type Invocation struct {
	GuildID string      `json:"guild_id"`
	OwnerID string      `json:"owner_id"`
	Actor   authz.Actor `json:"actor"`
}

// Result is what the invoking actor sees.
type Result struct {
	Command string   `json:"command"`
	Outcome Outcome  `json:"outcome"`
	Message string   `json:"message"`
	Entries []string `json:"entries,omitempty"`
	Error   string   `json:"error,omitempty"`

	// Err is the typed error behind Error, for errors.Is.
	Err error `json:"-"`
}

// OK reports whether the command completed, including the informational
// already-present and already-absent outcomes.
func (r Result) OK() bool {
	switch r.Outcome {
	case OutcomeApplied, OutcomeAlreadyPresent, OutcomeAlreadyAbsent, OutcomeListed:
		return true
	}
	return false
}

// gate decides whether an invocation may run against p.
type gate func(inv Invocation, p *policy.Policy) bool

func defenseGate(inv Invocation, p *policy.Policy) bool {
	return authz.CanManageDefense(inv.Actor, inv.OwnerID, p)
}

func operatorGate(inv Invocation, _ *policy.Policy) bool {
	return authz.CanManageOperators(inv.Actor, inv.OwnerID)
}

var validate = validator.New()

// Service runs commands against a policy store.
//
// A command's load and save are not atomic: two commands mutating the same
// guild concurrently race and the last save wins.
type Service struct {
	store    policy.Store
	defaults policy.Defaults
	logger   zerolog.Logger
}

// NewService creates a Service. d seeds the ephemeral policy used when the
// store cannot be read.
func NewService(store policy.Store, d policy.Defaults, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		defaults: d,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

// load returns the guild's policy and the load error, if any. On error the
// policy is an ephemeral default that must never be saved.
func (s *Service) load(ctx context.Context, guildID string) (*policy.Policy, error) {
	p, err := policy.LoadOrDefault(ctx, s.store, guildID, s.defaults)
	if err != nil {
		s.logger.Error().Err(err).Str("guild_id", guildID).Msg("policy load failed")
	}
	return p, err
}

// mutation changes p and returns the outcome with a message. Only
// OutcomeApplied causes a save.
type mutation func(p *policy.Policy) (Outcome, string)

// mutate is the shared path of every policy-changing command: authorize,
// validate, refuse to touch an ephemeral default, apply, save.
func (s *Service) mutate(ctx context.Context, inv Invocation, command string, allowed gate, inputErr error, apply mutation) Result {
	p, loadErr := s.load(ctx, inv.GuildID)

	if !allowed(inv, p) {
		return unauthorized(command)
	}
	if inputErr != nil {
		return invalid(command, inputErr)
	}
	if loadErr != nil {
		return failed(command, loadErr)
	}

	outcome, msg := apply(p)
	if outcome == OutcomeApplied {
		if err := s.store.Save(ctx, inv.GuildID, p); err != nil {
			return failed(command, err)
		}
		s.logger.Info().
			Str("guild_id", inv.GuildID).
			Str("actor", inv.Actor.ID).
			Str("command", command).
			Msg("policy changed")
	}
	return Result{Command: command, Outcome: outcome, Message: msg}
}

// list is the shared path of read-only commands. A store failure falls back
// to the ephemeral default.
func (s *Service) list(ctx context.Context, inv Invocation, command string, allowed gate, entries func(p *policy.Policy) []string, title, empty string) Result {
	p, _ := s.load(ctx, inv.GuildID)
	if !allowed(inv, p) {
		return unauthorized(command)
	}
	items := append([]string(nil), entries(p)...)
	msg := empty
	if len(items) > 0 {
		msg = title + ":\n" + strings.Join(items, "\n")
	}
	return Result{Command: command, Outcome: OutcomeListed, Message: msg, Entries: items}
}

// setOp adds or removes value in the set chosen by field.
func setOp(field func(p *policy.Policy) *[]string, value string, add bool, applied, noop string) mutation {
	return func(p *policy.Policy) (Outcome, string) {
		set := field(p)
		if add {
			if policy.Add(set, value) {
				return OutcomeApplied, applied
			}
			return OutcomeAlreadyPresent, noop
		}
		if policy.Remove(set, value) {
			return OutcomeApplied, applied
		}
		return OutcomeAlreadyAbsent, noop
	}
}

func unauthorized(command string) Result {
	return Result{
		Command: command,
		Outcome: OutcomeUnauthorized,
		Message: "You are not allowed to use this command.",
		Error:   authz.ErrUnauthorized.Error(),
		Err:     authz.ErrUnauthorized,
	}
}

func invalid(command string, err error) Result {
	return Result{Command: command, Outcome: OutcomeInvalidInput, Message: err.Error(), Error: err.Error(), Err: err}
}

func failed(command string, err error) Result {
	if !errors.Is(err, policy.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", policy.ErrStoreUnavailable, err)
	}
	return Result{
		Command: command,
		Outcome: OutcomeFailed,
		Message: "The policy store is unavailable; nothing was changed.",
		Error:   err.Error(),
		Err:     err,
	}
}

// checkID validates a numeric platform ID.
func checkID(name, v string) error {
	if err := validate.Var(v, "required,number,max=20"); err != nil {
		return fmt.Errorf("%w: %s must be a numeric ID", ErrInvalidInput, name)
	}
	return nil
}

// checkText validates a free-text argument.
func checkText(name, v string, max int) error {
	if err := validate.Var(v, fmt.Sprintf("required,max=%d", max)); err != nil {
		return fmt.Errorf("%w: %s must be 1 to %d characters", ErrInvalidInput, name, max)
	}
	return nil
}
