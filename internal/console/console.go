// Package console is the interactive terminal front end. Each command mounts
// the matching screen through the navigator, runs one screen operation and
// prints the result.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"finetune-console/internal/router"
	"finetune-console/internal/screens"

	"github.com/mattn/go-shellwords"
)

type Options struct {
	In  io.Reader
	Out io.Writer

	BaseURL string
	// Timeout bounds each command. Zero means no bound.
	Timeout time.Duration
	// Spinner shows an indicator while a call is in flight. Off when the
	// output is not a terminal.
	Spinner bool
	// ReadSecret reads a password without echo. When nil, passwords are read
	// from In like any other line.
	ReadSecret func() (string, error)
}

type Console struct {
	app  *App
	opts Options

	in  *bufio.Scanner
	out io.Writer

	// Screens that keep state between commands. They are dropped when the
	// user navigates away.
	detail *screens.TaskDetail
	chat   *screens.Chat
}

func New(app *App, opts Options) *Console {
	return &Console{
		app:  app,
		opts: opts,
		in:   bufio.NewScanner(opts.In),
		out:  opts.Out,
	}
}

// Run reads commands until exit or end of input.
func (c *Console) Run(ctx context.Context) error {
	renderBanner(c.out, c.opts.BaseURL)

	if err := c.settle(ctx); err != nil {
		return err
	}

	for {
		line, ok := c.prompt(string(c.app.Nav.Current().Screen) + "> ")
		if !ok {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if c.handle(ctx, line) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// settle waits for the saved session to be checked before the first prompt.
func (c *Console) settle(ctx context.Context) error {
	stop := c.spinner("checking saved session")
	err := c.app.Store.Wait(ctx)
	stop()
	if err != nil {
		return err
	}

	loc := c.app.Nav.Refresh()
	if user, ok := c.app.Store.User(); ok {
		renderInfo(c.out, "logged in as %s", user.Username)
	} else if loc.Screen == router.ScreenLogin {
		renderInfo(c.out, "not logged in; use login or register")
	}
	return nil
}

func (c *Console) prompt(text string) (string, bool) {
	fmt.Fprint(c.out, text)
	if !c.in.Scan() {
		return "", false
	}
	return c.in.Text(), true
}

func (c *Console) spinner(description string) func() {
	if !c.opts.Spinner {
		return func() {}
	}
	return spin(c.out, description)
}

func (c *Console) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout > 0 {
		return context.WithTimeout(ctx, c.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// handle runs one line and reports whether the console should exit.
func (c *Console) handle(ctx context.Context, line string) bool {
	cmd, rest, ok := c.parse(line)
	if !ok {
		return false
	}
	if cmd == nil {
		return true
	}

	gen := c.app.Nav.Generation()
	cctx, cancel := c.callContext(ctx)
	defer cancel()

	cmd(c, cctx, rest)

	if c.app.Nav.Generation() != gen {
		c.detail, c.chat = nil, nil
		renderInfo(c.out, "session expired; log in again")
	}
	return false
}

type command func(c *Console, ctx context.Context, args []string)

// parse splits line into a command and its arguments. A leading slash marks a
// command explicitly. Chat text is passed on unsplit: after say, and on the
// chat screen for any line that is not a bare command word or a slash command.
func (c *Console) parse(line string) (command, []string, bool) {
	onChat := c.app.Nav.Current().Screen == router.ScreenChat

	explicit := strings.HasPrefix(line, "/")
	if explicit {
		line = strings.TrimSpace(line[1:])
	}

	word, text, _ := strings.Cut(line, " ")
	if strings.EqualFold(word, "say") {
		return (*Console).cmdSay, []string{strings.TrimSpace(text)}, true
	}

	if onChat && !explicit && strings.ContainsAny(line, " \t") {
		return (*Console).cmdSay, []string{line}, true
	}

	args, err := shellwords.Parse(line)
	if err != nil || len(args) == 0 {
		if onChat && !explicit {
			return (*Console).cmdSay, []string{line}, true
		}
		if err != nil {
			renderError(c.out, err.Error())
		}
		return nil, nil, false
	}

	cmd, ok := commands[strings.ToLower(args[0])]
	switch {
	case ok:
		return cmd, args[1:], true
	case onChat && !explicit:
		return (*Console).cmdSay, []string{line}, true
	default:
		renderError(c.out, fmt.Sprintf("unknown command %q, type help", args[0]))
		return nil, nil, false
	}
}

// enter navigates to path and reports whether the guard let the user in.
func (c *Console) enter(path string) bool {
	loc := c.app.Nav.Navigate(path)
	if loc.Screen != router.ScreenTaskDetail {
		c.detail = nil
	}
	if loc.Screen != router.ScreenChat {
		c.chat = nil
	}

	switch loc.Screen {
	case router.ScreenLogin:
		if path != router.PathLogin {
			renderError(c.out, "not logged in; use login or register")
			return false
		}
	case router.ScreenLoading:
		renderError(c.out, "still checking the saved session")
		return false
	}
	return true
}

// fail prints the screen's message for err. Local validation failures print
// their message and are not logged.
func (c *Console) fail(err error, displayed string) {
	switch {
	case errors.Is(err, screens.ErrBusy):
		renderError(c.out, err.Error())
	case screens.IsValidation(err):
		renderError(c.out, err.Error())
	case displayed != "":
		renderError(c.out, displayed)
	default:
		slog.Error("command failed", "error", err)
		renderError(c.out, err.Error())
	}
}

func (c *Console) secret(text string) (string, bool) {
	if c.opts.ReadSecret == nil {
		return c.prompt(text)
	}
	fmt.Fprint(c.out, text)
	value, err := c.opts.ReadSecret()
	if err != nil {
		slog.Warn("error reading password", "error", err)
		return "", false
	}
	return value, true
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func (c *Console) confirm(question string) bool {
	answer, ok := c.prompt(question + " [y/N] ")
	if !ok {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
