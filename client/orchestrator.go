package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is the orchestrator's lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRedirectPending
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRedirectPending:
		return "redirect-pending"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Orchestrator drives the popup/redirect handshake with the IdP library.
// The IdP client is constructed lazily exactly once: concurrent callers
// share a single in-flight initialization instead of racing duplicate
// instances. Redirect completion is a one-shot: however many times the same
// redirect resolves, exactly one Authenticated transition happens.
type Orchestrator struct {
	factory IdPFactory
	env     Environment
	mode    Mode
	logger  zerolog.Logger

	initOnce sync.Once
	initDone chan struct{}
	idp      IdP
	initErr  error

	state             atomic.Int32
	redirectProcessed atomic.Bool
}

func NewOrchestrator(factory IdPFactory, env Environment, mode Mode, logger zerolog.Logger) (*Orchestrator, error) {
	if factory == nil {
		return nil, errors.New("[NewOrchestrator] IdP factory is required")
	}
	if env == nil {
		return nil, errors.New("[NewOrchestrator] environment is required")
	}

	return &Orchestrator{
		factory:  factory,
		env:      env,
		mode:     mode,
		logger:   logger,
		initDone: make(chan struct{}),
	}, nil
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// IsAuthWindow reports whether this browsing context exists only to complete
// the handshake. The hosting page declares it via Mode; ModeAuto falls back
// to the opener-plus-artifacts heuristic.
func (o *Orchestrator) IsAuthWindow() bool {
	switch o.mode {
	case ModeAuthWindow:
		return true
	case ModePrimary:
		return false
	default:
		return o.env.HasOpener() && o.env.HasAuthArtifacts()
	}
}

// Client returns the IdP client, constructing it on first use. Construction
// runs detached from any caller's context so one caller's cancellation
// cannot poison the shared instance; callers still honor their own ctx while
// waiting.
func (o *Orchestrator) Client(ctx context.Context) (IdP, error) {
	o.initOnce.Do(func() {
		o.setState(StateInitializing)
		go func() {
			o.idp, o.initErr = o.factory(context.Background())
			close(o.initDone)
		}()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.initDone:
	}

	if o.initErr != nil {
		o.setState(StateFailed)
		return nil, errors.Wrap(o.initErr, "[Orchestrator.Client] IdP construction failed")
	}
	if o.State() == StateInitializing {
		o.setState(StateReady)
	}
	return o.idp, nil
}

// Startup runs the page-load flow: complete a pending redirect if the URL
// carries one, otherwise hydrate from any account the IdP client already
// caches. Returns the auth result when a redirect completed here, nil
// otherwise.
func (o *Orchestrator) Startup(ctx context.Context) (*AuthResult, error) {
	idp, err := o.Client(ctx)
	if err != nil {
		return nil, err
	}

	if o.env.HasAuthArtifacts() || o.IsAuthWindow() {
		return o.completeRedirect(ctx, idp)
	}

	// No redirect context: hydrate from the client's account cache.
	if idp.ActiveAccount() == nil {
		if accounts := idp.Accounts(); len(accounts) > 0 {
			idp.SetActiveAccount(&accounts[0])
		}
	}
	if idp.ActiveAccount() != nil {
		o.setState(StateAuthenticated)
	}
	return nil, nil
}

// CompleteRedirect finishes a redirect handshake. Safe to call multiple
// times; only the first successful resolution yields a result.
func (o *Orchestrator) CompleteRedirect(ctx context.Context) (*AuthResult, error) {
	idp, err := o.Client(ctx)
	if err != nil {
		return nil, err
	}
	return o.completeRedirect(ctx, idp)
}

func (o *Orchestrator) completeRedirect(ctx context.Context, idp IdP) (*AuthResult, error) {
	o.setState(StateRedirectPending)

	result, err := idp.HandleRedirect(ctx)
	if err != nil || result == nil {
		// Artifacts present but no usable result: a failed or cancelled
		// attempt. Strip the artifacts so tokens never linger in history,
		// and close a window that exists only for the handshake.
		if o.env.HasAuthArtifacts() {
			o.env.StripAuthArtifacts()
		}
		if err != nil {
			o.setState(StateFailed)
			o.logger.Info().Err(err).Msg("redirect completion failed")
		} else {
			o.setState(StateReady)
		}
		if o.IsAuthWindow() {
			o.env.CloseWindow()
		}
		if err != nil {
			return nil, errors.Wrap(err, "[Orchestrator.completeRedirect] HandleRedirect")
		}
		return nil, nil
	}

	// One-shot: a second resolution of the same redirect must not establish
	// a second session.
	if !o.redirectProcessed.CompareAndSwap(false, true) {
		o.setState(StateAuthenticated)
		return nil, nil
	}

	idp.SetActiveAccount(result.Account)
	o.setState(StateAuthenticated)
	return result, nil
}

// LoginInteractive starts an interactive login, preferring the popup flow
// and falling back to a full-page redirect when the browser blocks popups.
func (o *Orchestrator) LoginInteractive(ctx context.Context) (*AuthResult, error) {
	idp, err := o.Client(ctx)
	if err != nil {
		return nil, err
	}

	result, err := idp.LoginPopup(ctx)
	if errors.Is(err, ErrPopupBlocked) {
		o.logger.Info().Msg("popup blocked, falling back to redirect flow")
		o.setState(StateRedirectPending)
		return nil, idp.LoginRedirect(ctx)
	}
	if err != nil {
		o.setState(StateFailed)
		return nil, errors.Wrap(err, "[Orchestrator.LoginInteractive] LoginPopup")
	}

	idp.SetActiveAccount(result.Account)
	o.setState(StateAuthenticated)
	return result, nil
}

// Logout signs out at the IdP client and resets the active account.
func (o *Orchestrator) Logout(ctx context.Context) error {
	idp, err := o.Client(ctx)
	if err != nil {
		return err
	}
	idp.SetActiveAccount(nil)
	o.setState(StateReady)
	return idp.Logout(ctx)
}
