package guard

import (
	"context"

	"go.uber.org/zap"
)

// Navigator sends the user to another screen. It must not block.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

// Notifier shows a warning to the user.
type Notifier interface {
	Warn(ctx context.Context, message string)
}

// Committer is implemented by guards that record state once their
// transition is allowed. Evaluate stays free of writes; the Enforcer calls
// Commit after an allowed decision.
type Committer interface {
	Commit(env Env)
}

// Enforcer evaluates guards and carries out blocked decisions.
type Enforcer struct {
	env    Env
	nav    Navigator
	notify Notifier
	log    *zap.Logger
}

// NewEnforcer creates an Enforcer. nav and notify may be nil.
func NewEnforcer(env Env, nav Navigator, notify Notifier) *Enforcer {
	return &Enforcer{
		env:    env,
		nav:    nav,
		notify: notify,
		log:    zap.L().With(zap.String("component", "guard")),
	}
}

// Enforce evaluates g for target and reports whether the transition may
// proceed. A blocked decision is logged, announced and navigated to.
func (e *Enforcer) Enforce(ctx context.Context, g Guard, target string) bool {
	if !e.apply(ctx, Evaluate(e.env, g, target), target) {
		return false
	}
	e.commit(g)
	return true
}

// EnforceChain is Enforce for the first blocking guard of c.
func (e *Enforcer) EnforceChain(ctx context.Context, c Chain, target string) Decision {
	d := c.Evaluate(e.env, target)
	if e.apply(ctx, d, target) {
		for _, g := range c {
			e.commit(g)
		}
	}
	return d
}

func (e *Enforcer) commit(g Guard) {
	if cm, ok := g.(Committer); ok {
		cm.Commit(e.env)
	}
}

func (e *Enforcer) apply(ctx context.Context, d Decision, target string) bool {
	if d.Allowed {
		return true
	}

	e.log.Info("guard: transition blocked",
		zap.String("guard", d.Guard),
		zap.String("target", target),
		zap.String("redirect", d.Redirect),
		zap.String("reason", string(d.Reason)),
	)
	if e.notify != nil && d.Message != "" {
		e.notify.Warn(ctx, d.Message)
	}
	if e.nav != nil && d.Redirect != "" {
		e.nav.Navigate(ctx, d.Redirect)
	}
	return false
}
