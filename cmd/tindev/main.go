package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jnetto23/OmniStack-08/internal/api"
	"github.com/jnetto23/OmniStack-08/internal/app"
	"github.com/jnetto23/OmniStack-08/internal/config"
	"github.com/jnetto23/OmniStack-08/internal/logging"
	"github.com/jnetto23/OmniStack-08/internal/models"
	"github.com/jnetto23/OmniStack-08/internal/queue"
	"github.com/jnetto23/OmniStack-08/internal/realtime"
	"github.com/jnetto23/OmniStack-08/internal/session"
)

const defaultLogFile = "logs/tindev.log"

func main() {
	mode := flag.String("mode", "", "client variant: web or mobile [env: CLIENT_MODE]")
	username := flag.String("user", "", "log in as this username")
	flag.Parse()

	cfg := config.Load()
	if *mode != "" {
		cfg.Mode = config.Mode(strings.ToLower(*mode))
	}
	if cfg.Mode != config.ModeWeb && cfg.Mode != config.ModeMobile {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", cfg.Mode)
		os.Exit(2)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = defaultLogFile
	}
	logger, closer := logging.New(logFile, cfg.LogLevel)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		fmt.Fprintln(os.Stderr, "could not open session store:", err)
		os.Exit(1)
	}
	defer closeStore()

	client := api.New(cfg.APIURL, api.WithTimeout(cfg.HTTPTimeout), api.WithLogger(logger))
	c := &cli{
		cfg:     cfg,
		client:  client,
		manager: session.NewManager(client, store, logger),
		lines:   readLines(os.Stdin),
		out:     os.Stdout,
		log:     logger,
	}

	logger.Info("starting tindev", "mode", string(cfg.Mode), "api", cfg.APIURL)
	if err := c.run(ctx, *username); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tindev exited", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config, log *slog.Logger) (session.Store, func(), error) {
	if cfg.Mode == config.ModeWeb {
		return session.NewMemoryStore(), func() {}, nil
	}
	s, err := session.OpenSQLite(cfg.SessionDBPath, log)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

type cli struct {
	cfg     *config.Config
	client  *api.Client
	manager *session.Manager
	lines   <-chan string
	out     io.Writer
	log     *slog.Logger
}

func (c *cli) policy() queue.FocusPolicy {
	if c.cfg.Mode == config.ModeWeb {
		return queue.AnyVisible
	}
	return queue.HeadOnly
}

func (c *cli) run(ctx context.Context, username string) error {
	for {
		user, ok, err := c.manager.Resume(ctx)
		if err != nil {
			return err
		}
		if !ok {
			user, err = c.login(ctx, username)
			if err != nil {
				return err
			}
			username = ""
		}

		logout, err := c.session(ctx, user)
		if err != nil || !logout {
			return err
		}
		if err := c.manager.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "logged out")
	}
}

// login prompts until a username is accepted. An unknown username shows an
// alert and keeps the prompt.
func (c *cli) login(ctx context.Context, username string) (models.User, error) {
	for {
		if username == "" {
			fmt.Fprint(c.out, "github username: ")
			select {
			case <-ctx.Done():
				return models.User{}, ctx.Err()
			case line, ok := <-c.lines:
				if !ok {
					return models.User{}, io.EOF
				}
				username = strings.TrimSpace(line)
			}
		}

		user, err := c.manager.Login(ctx, username)
		switch {
		case err == nil:
			return user, nil
		case api.IsAuth(err):
			fmt.Fprintln(c.out, "user not found")
		case api.IsNetwork(err):
			fmt.Fprintln(c.out, "could not reach the server, try again")
			c.log.Warn("login failed", "username", username, "error", err)
		default:
			return models.User{}, err
		}
		username = ""
	}
}

// session runs the swipe screen until the user quits or logs out.
func (c *cli) session(ctx context.Context, user models.User) (logout bool, err error) {
	redraw := make(chan struct{}, 1)
	a, err := app.Start(ctx, c.client, user, app.Options{
		WSURL:  c.cfg.WSURL,
		Policy: c.policy(),
		Realtime: realtime.Config{
			InitialDelay: c.cfg.ReconnectInitialDelay,
			MaxDelay:     c.cfg.ReconnectMaxDelay,
		},
		Logger: c.log,
		OnChange: func() {
			select {
			case redraw <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return false, err
	}
	defer a.Stop()

	draw := func() {
		if s, err := a.Snapshot(); err == nil {
			render(c.out, s, c.policy())
		}
	}
	draw()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-redraw:
			draw()
		case line, ok := <-c.lines:
			if !ok {
				return false, nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(c.out, err)
				continue
			}
			switch cmd.kind {
			case cmdQuit:
				return false, nil
			case cmdLogout:
				return true, nil
			case cmdHelp:
				fmt.Fprint(c.out, helpText)
			case cmdDismiss:
				a.Dismiss()
			case cmdRetry:
				if !a.Retry(ctx) {
					fmt.Fprintln(c.out, "nothing to retry")
				}
			case cmdLike, cmdDislike:
				c.decide(a, cmd)
			}
		}
	}
}

func (c *cli) decide(a *app.App, cmd command) {
	if cmd.index == 0 {
		if _, ok := a.Decide(cmd.verdict()); !ok {
			fmt.Fprintln(c.out, "no profile to decide on")
		}
		return
	}

	s, err := a.Snapshot()
	if err != nil {
		return
	}
	if cmd.index > len(s.Queue) {
		fmt.Fprintf(c.out, "no card %d\n", cmd.index)
		return
	}
	if _, err := a.DecideProfile(s.Queue[cmd.index-1].ID, cmd.verdict()); err != nil {
		fmt.Fprintln(c.out, err)
	}
}
