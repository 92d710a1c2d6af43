// Package app runs one logged-in session: the queue, the match overlay and
// the realtime subscription, all driven from a single event loop.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jnetto23/OmniStack-08/internal/eventloop"
	"github.com/jnetto23/OmniStack-08/internal/models"
	"github.com/jnetto23/OmniStack-08/internal/overlay"
	"github.com/jnetto23/OmniStack-08/internal/queue"
	"github.com/jnetto23/OmniStack-08/internal/realtime"
)

var (
	ErrNoUser  = errors.New("app: no logged-in user")
	ErrStopped = errors.New("app: session stopped")
)

type Options struct {
	WSURL    string
	Policy   queue.FocusPolicy
	Realtime realtime.Config
	Logger   *slog.Logger
	// OnChange is called on the event loop after every visible change.
	// It must not block.
	OnChange func()
}

// Snapshot is everything a view needs to render one frame.
type Snapshot struct {
	User       models.User
	State      queue.State
	Queue      []models.Profile
	Match      *models.MatchEvent
	LoadErr    error
	Pending    int
	Failed     int
	Channel    realtime.State
	Reconnects int
}

type App struct {
	user     models.User
	loop     *eventloop.Loop
	queue    *queue.Controller
	overlay  *overlay.Overlay
	channel  *realtime.Channel
	log      *slog.Logger
	onChange func()

	cancel   context.CancelFunc
	loopDone chan struct{}
	chanDone chan struct{}
	stopOnce sync.Once
}

// Start builds the session for user, starts the realtime channel once and
// triggers the initial queue load.
func Start(ctx context.Context, api queue.API, user models.User, opts Options) (*App, error) {
	if user.ID == "" {
		return nil, ErrNoUser
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("user", user.ID)

	ctx, cancel := context.WithCancel(ctx)
	a := &App{
		user:     user,
		loop:     eventloop.New(64, log),
		overlay:  overlay.New(),
		log:      log,
		onChange: opts.OnChange,
		cancel:   cancel,
		loopDone: make(chan struct{}),
		chanDone: make(chan struct{}),
	}

	a.queue = queue.New(api, a.loop, user,
		queue.WithPolicy(opts.Policy),
		queue.WithLogger(log),
		// submissions outlive logout
		queue.WithSubmitContext(context.WithoutCancel(ctx)),
		queue.OnChange(a.changed),
	)

	a.channel = realtime.New(opts.WSURL, user,
		func(p models.Profile) {
			a.loop.Post(func() { a.showMatch(p) })
		},
		realtime.WithConfig(opts.Realtime),
		realtime.WithLogger(log),
		realtime.OnStateChange(func(realtime.State) {
			a.loop.Post(a.changed)
		}),
	)

	go func() {
		defer close(a.loopDone)
		a.loop.Run(ctx)
	}()
	go func() {
		defer close(a.chanDone)
		if err := a.channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("realtime channel stopped", "error", err)
		}
	}()

	a.loop.Post(func() { a.queue.Load(ctx) })
	log.Info("session started", "policy", int(opts.Policy))
	return a, nil
}

func (a *App) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}

func (a *App) showMatch(p models.Profile) {
	prev, replaced := a.overlay.Show(p)
	if replaced {
		a.log.Info("match replaced before dismissal", "previous", prev.Profile.ID, "profile", p.ID)
	}
	a.changed()
}

// User returns the session identity.
func (a *App) User() models.User { return a.user }

// Like decides the head of the queue.
func (a *App) Like() (models.Profile, bool) {
	return a.Decide(models.Like)
}

// Dislike decides the head of the queue.
func (a *App) Dislike() (models.Profile, bool) {
	return a.Decide(models.Dislike)
}

// Decide applies v to the head of the queue.
func (a *App) Decide(v models.Verdict) (p models.Profile, ok bool) {
	a.loop.Call(func() { p, ok = a.queue.Decide(v) })
	return p, ok
}

// DecideProfile decides a profile by identity, subject to the focus policy.
func (a *App) DecideProfile(id string, v models.Verdict) (models.Profile, error) {
	var (
		p   models.Profile
		err error
	)
	if !a.loop.Call(func() { p, err = a.queue.DecideProfile(id, v) }) {
		return models.Profile{}, ErrStopped
	}
	return p, err
}

// Dismiss clears the match overlay.
func (a *App) Dismiss() bool {
	var had bool
	a.loop.Call(func() {
		had = a.overlay.Dismiss()
		if had {
			a.changed()
		}
	})
	return had
}

// Retry re-runs a failed initial load.
func (a *App) Retry(ctx context.Context) bool {
	var ok bool
	a.loop.Call(func() { ok = a.queue.Retry(ctx) })
	return ok
}

// Snapshot returns the current render state.
func (a *App) Snapshot() (Snapshot, error) {
	s := Snapshot{User: a.user}
	ran := a.loop.Call(func() {
		s.State = a.queue.State()
		s.Queue = a.queue.Profiles()
		s.LoadErr = a.queue.LoadErr()
		s.Pending = a.queue.Pending()
		s.Failed = a.queue.Failed()
		if ev, ok := a.overlay.Active(); ok {
			s.Match = &ev
		}
	})
	if !ran {
		return Snapshot{}, ErrStopped
	}
	s.Channel = a.channel.State()
	s.Reconnects = a.channel.Reconnects()
	return s, nil
}

// Stop ends the session: the channel is closed, the loop stops, and
// in-flight submissions are allowed to finish.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		// cancelling ctx ends Run, which stops the loop between handlers
		a.cancel()
		<-a.chanDone
		<-a.loopDone
		a.loop.Wait()
		a.log.Info("session stopped")
	})
}
