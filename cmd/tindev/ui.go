package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jnetto23/OmniStack-08/internal/api"
	"github.com/jnetto23/OmniStack-08/internal/app"
	"github.com/jnetto23/OmniStack-08/internal/models"
	"github.com/jnetto23/OmniStack-08/internal/queue"
)

type commandKind int

const (
	cmdHelp commandKind = iota
	cmdLike
	cmdDislike
	cmdDismiss
	cmdRetry
	cmdLogout
	cmdQuit
)

type command struct {
	kind commandKind
	// 1-based position in the visible list, 0 for the head
	index int
}

var errUnknownCommand = errors.New("unknown command, type h for help")

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, errUnknownCommand
	}

	var c command
	switch fields[0] {
	case "l", "like":
		c.kind = cmdLike
	case "d", "dislike":
		c.kind = cmdDislike
	case "x", "dismiss":
		c.kind = cmdDismiss
	case "r", "retry":
		c.kind = cmdRetry
	case "o", "logout":
		c.kind = cmdLogout
	case "q", "quit", "exit":
		c.kind = cmdQuit
	case "h", "help", "?":
		c.kind = cmdHelp
	default:
		return command{}, errUnknownCommand
	}

	if len(fields) > 1 {
		if c.kind != cmdLike && c.kind != cmdDislike {
			return command{}, errUnknownCommand
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("invalid card number %q", fields[1])
		}
		c.index = n
	}
	return c, nil
}

func (c command) verdict() models.Verdict {
	if c.kind == cmdDislike {
		return models.Dislike
	}
	return models.Like
}

const helpText = `commands:
  l [n]  like the card in focus (or card n)
  d [n]  dislike the card in focus (or card n)
  x      dismiss the match
  r      try loading again
  o      log out
  q      quit
`

func render(w io.Writer, s app.Snapshot, policy queue.FocusPolicy) {
	fmt.Fprintf(w, "\n=== tindev | %s | realtime: %s ===\n", s.User.Username, s.Channel)

	if s.Match != nil {
		p := s.Match.Profile
		fmt.Fprintf(w, "\n  *** It's a match! ***\n  %s\n", p.Name)
		if p.Bio != "" {
			fmt.Fprintf(w, "  %s\n", p.Bio)
		}
		fmt.Fprintln(w, "  [x] close")
	}

	switch s.State {
	case queue.Loading:
		fmt.Fprintln(w, "\n  loading...")
	case queue.Empty:
		switch {
		case api.IsAuth(s.LoadErr):
			fmt.Fprintf(w, "\n  session rejected by the server: %v\n  [o] log out and sign in again\n", s.LoadErr)
		case s.LoadErr != nil:
			fmt.Fprintf(w, "\n  could not load profiles: %v\n  [r] try again\n", s.LoadErr)
		default:
			fmt.Fprintln(w, "\n  Acabou :(")
		}
	case queue.Populated:
		if policy == queue.AnyVisible {
			for i, p := range s.Queue {
				fmt.Fprintf(w, "\n  %d. %s\n", i+1, p.Name)
				renderDetails(w, p)
			}
		} else {
			head := s.Queue[0]
			fmt.Fprintf(w, "\n  %s\n", head.Name)
			renderDetails(w, head)
			if more := len(s.Queue) - 1; more > 0 {
				fmt.Fprintf(w, "  (%d more)\n", more)
			}
		}
	}

	if s.Failed > 0 {
		fmt.Fprintf(w, "\n  %d decision(s) could not be sent\n", s.Failed)
	}
	fmt.Fprint(w, "\n> ")
}

func renderDetails(w io.Writer, p models.Profile) {
	if p.Bio != "" {
		fmt.Fprintf(w, "     %s\n", p.Bio)
	}
	if p.Avatar != "" {
		fmt.Fprintf(w, "     %s\n", p.Avatar)
	}
}
