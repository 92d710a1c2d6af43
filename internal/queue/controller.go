// Package queue owns the ordered candidate queue of a session.
//
// The Controller is not safe for concurrent use. Every method must be called
// from the session's event loop; network work is handed to a Runner, which
// reports completion back on the same loop.
package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

var (
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrNotFocused     = errors.New("profile is not at the head of the queue")
	ErrUnknownProfile = errors.New("profile is not in the queue")
	ErrInvalidVerdict = errors.New("invalid verdict")
)

// State is the observable state of the queue.
type State int

const (
	// Loading: the initial fetch is in flight.
	Loading State = iota
	// Populated: at least one candidate is waiting for a decision.
	Populated
	// Empty: nothing left (or the fetch failed). Terminal until reload.
	Empty
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Populated:
		return "populated"
	case Empty:
		return "empty"
	default:
		return "unknown"
	}
}

// FocusPolicy decides which queued profiles may receive a decision.
type FocusPolicy int

const (
	// HeadOnly only accepts decisions on the front of the queue (mobile).
	HeadOnly FocusPolicy = iota
	// AnyVisible accepts a decision on any queued profile by identity (web).
	AnyVisible
)

// API is the slice of the REST client the controller needs.
type API interface {
	FetchQueue(ctx context.Context, user models.User) ([]models.Profile, error)
	Submit(ctx context.Context, user models.User, d models.Decision) error
}

// Runner executes blocking work off the loop and posts done back onto it.
type Runner interface {
	Go(ctx context.Context, task func(context.Context) error, done func(error))
}

// Controller is the queue state machine.
type Controller struct {
	api    API
	runner Runner
	user   models.User
	policy FocusPolicy
	log    *slog.Logger

	state    State
	profiles []models.Profile
	loaded   bool
	fetching bool
	loadErr  error
	pending  int
	failed   int

	submitCtx     context.Context
	onSubmitError func(models.Decision, error)
	onChange      func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy sets the focus policy. Defaults to HeadOnly.
func WithPolicy(p FocusPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// OnSubmitError registers a hook for failed submissions. The optimistic
// removal is never rolled back.
func OnSubmitError(fn func(models.Decision, error)) Option {
	return func(c *Controller) { c.onSubmitError = fn }
}

// OnChange registers a hook called after every observable change.
func OnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithSubmitContext sets the context submissions run under. It is independent
// of the load context so that logging out does not cancel them.
func WithSubmitContext(ctx context.Context) Option {
	return func(c *Controller) { c.submitCtx = ctx }
}

// New creates a controller for user. The queue starts in Loading with no
// profiles until Load completes.
func New(api API, runner Runner, user models.User, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		runner:    runner,
		user:      user,
		policy:    HeadOnly,
		log:       slog.Default(),
		state:     Loading,
		submitCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the queue once. Calling it again after a successful load, or
// while a load is in flight, does nothing.
func (c *Controller) Load(ctx context.Context) {
	if c.loaded || c.fetching {
		return
	}
	c.startLoad(ctx)
}

// Retry re-runs a failed initial load. It is the "try again" affordance and
// does nothing unless the last load failed.
func (c *Controller) Retry(ctx context.Context) bool {
	if c.loadErr == nil || c.state != Empty {
		return false
	}
	c.startLoad(ctx)
	return true
}

func (c *Controller) startLoad(ctx context.Context) {
	c.state = Loading
	c.loadErr = nil
	c.fetching = true
	c.changed()

	var fetched []models.Profile
	c.runner.Go(ctx, func(ctx context.Context) error {
		profiles, err := c.api.FetchQueue(ctx, c.user)
		fetched = profiles
		return err
	}, func(err error) {
		c.finishLoad(fetched, err)
	})
}

func (c *Controller) finishLoad(fetched []models.Profile, err error) {
	c.fetching = false
	if err != nil {
		c.log.Warn("queue fetch failed", "user", c.user.ID, "error", err)
		c.state = Empty
		c.loadErr = err
		c.profiles = nil
		c.changed()
		return
	}

	c.loaded = true
	c.profiles = c.sanitize(fetched)
	if len(c.profiles) == 0 {
		c.state = Empty
	} else {
		c.state = Populated
	}
	c.log.Info("queue loaded", "user", c.user.ID, "size", len(c.profiles))
	c.changed()
}

// sanitize drops repeated identities and the caller's own profile, keeping
// server order.
func (c *Controller) sanitize(in []models.Profile) []models.Profile {
	out := make([]models.Profile, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		if p.ID == c.user.ID {
			c.log.Warn("queue contained the caller's own profile", "user", c.user.ID)
			continue
		}
		if _, dup := seen[p.ID]; dup {
			c.log.Warn("queue contained a duplicate profile", "user", c.user.ID, "profile", p.ID)
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Decide applies verdict to the head of the queue. The head is removed
// before the submission starts. It returns false when there is nothing to
// decide.
func (c *Controller) Decide(verdict models.Verdict) (models.Profile, bool) {
	if !verdict.Valid() {
		c.log.Warn("ignoring invalid verdict", "verdict", string(verdict))
		return models.Profile{}, false
	}
	if c.state != Populated {
		return models.Profile{}, false
	}
	return c.removeAt(0, verdict), true
}

// DecideProfile applies verdict to the profile with the given identity,
// subject to the focus policy.
func (c *Controller) DecideProfile(id string, verdict models.Verdict) (models.Profile, error) {
	if !verdict.Valid() {
		return models.Profile{}, ErrInvalidVerdict
	}
	if c.state != Populated {
		return models.Profile{}, ErrQueueEmpty
	}

	idx := c.indexOf(id)
	if idx < 0 {
		return models.Profile{}, ErrUnknownProfile
	}
	if c.policy == HeadOnly && idx != 0 {
		return models.Profile{}, ErrNotFocused
	}
	return c.removeAt(idx, verdict), nil
}

func (c *Controller) indexOf(id string) int {
	for i, p := range c.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) removeAt(i int, verdict models.Verdict) models.Profile {
	p := c.profiles[i]
	rest := make([]models.Profile, 0, len(c.profiles)-1)
	rest = append(rest, c.profiles[:i]...)
	rest = append(rest, c.profiles[i+1:]...)
	c.profiles = rest
	if len(c.profiles) == 0 {
		c.state = Empty
	}
	c.changed()

	c.submit(models.Decision{Subject: c.user.ID, Target: p.ID, Verdict: verdict})
	return p
}

func (c *Controller) submit(d models.Decision) {
	c.pending++
	c.runner.Go(c.submitCtx, func(ctx context.Context) error {
		return c.api.Submit(ctx, c.user, d)
	}, func(err error) {
		c.pending--
		if err != nil {
			c.failed++
			c.log.Warn("decision submission failed",
				"user", d.Subject, "target", d.Target, "verdict", string(d.Verdict), "error", err)
			if c.onSubmitError != nil {
				c.onSubmitError(d, err)
			}
		}
		c.changed()
	})
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Head returns the profile in focus.
func (c *Controller) Head() (models.Profile, bool) {
	if len(c.profiles) == 0 {
		return models.Profile{}, false
	}
	return c.profiles[0], true
}

// Profiles returns a copy of the queue in browsing order.
func (c *Controller) Profiles() []models.Profile {
	out := make([]models.Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Len returns the number of queued profiles.
func (c *Controller) Len() int { return len(c.profiles) }

// LoadErr is the error of the last failed load, if any.
func (c *Controller) LoadErr() error { return c.loadErr }

// Pending is the number of submissions still in flight.
func (c *Controller) Pending() int { return c.pending }

// Failed is the number of submissions that failed.
func (c *Controller) Failed() int { return c.failed }

// Policy returns the focus policy.
func (c *Controller) Policy() FocusPolicy { return c.policy }
