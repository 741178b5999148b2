package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/internal/chatclient"
	"group_chat_service/pkg/logger"
	"group_chat_service/pkg/token"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

type flags struct {
	Server string
	Token  string
	Group  int64
	Name   string
	Debug  bool
}

func main() {
	f := &flags{}
	cmd := &cli.Command{
		Name:      "chat_client",
		Usage:     "Terminal client for the group chat service",
		UsageText: "chat_client --token <jwt> --group <id>",
		Description: `Loads the recent history of a group, joins its live room and sends every
line typed on stdin as a message.

Commands: /reconnect, /group <id>, /quit`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Usage:       "chat service base url",
				Sources:     cli.EnvVars("CHAT_SERVER"),
				Value:       "http://localhost:8082",
				Destination: &f.Server,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "JWT issued by the auth service",
				Sources:     cli.EnvVars("CHAT_TOKEN"),
				Required:    true,
				Destination: &f.Token,
			},
			&cli.IntFlag{
				Name:        "group",
				Aliases:     []string{"g"},
				Usage:       "group id to open",
				Sources:     cli.EnvVars("CHAT_GROUP"),
				Required:    true,
				Destination: &f.Group,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "display name for your own pending messages",
				Value:       "me",
				Destination: &f.Name,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "debug logs on stderr",
				Sources:     cli.EnvVars("CHAT_DEBUG"),
				Destination: &f.Debug,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(ctx, f, os.Stdin, os.Stdout)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags, in io.Reader, out io.Writer) error {
	logger.Log = logger.NewConsole("chat_client", f.Debug)
	defer logger.Log.Sync()

	claims, err := token.PeekClaims(f.Token)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	self := domain.Identity{ID: claims.UserID, Name: f.Name}

	printer := &terminal{out: out}
	view, err := chatclient.NewChatView(
		chatclient.Props{Credential: f.Token, GroupID: f.Group},
		self,
		chatclient.NewAPI(f.Server),
		chatclient.NewTransportFactory(f.Server),
		printer,
	)
	if err != nil {
		return err
	}

	view.Start(ctx)
	defer view.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(view, f, line, printer); quit {
				return nil
			}
		}
	}
}

func handleLine(view *chatclient.ChatView, f *flags, line string, printer *terminal) bool {
	switch {
	case line == "/quit":
		return true
	case line == "/reconnect":
		view.Reconnect()
	case strings.HasPrefix(line, "/group "):
		id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/group ")), 10, 64)
		if err != nil || id <= 0 {
			printer.Notice(fmt.Errorf("%w: invalid group id", domain.ErrInvalidArgument))
			return false
		}
		f.Group = id
		view.OnPropsChanged(chatclient.Props{Credential: f.Token, GroupID: id})
	default:
		if _, err := view.Submit(line); err != nil {
			printer.Notice(err)
		}
	}
	return false
}

// terminal chatclient.Notifier printing to stdout
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) Changed(c chatclient.Change, entries []chatclient.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch c.Kind {
	case chatclient.ChangeReload:
		fmt.Fprintln(t.out, "----")
		for _, e := range entries {
			t.printEntry(e)
		}
	case chatclient.ChangeAppend:
		t.printEntry(c.Entry)
	case chatclient.ChangeReplace:
		if c.Entry.Status == chatclient.StatusFailed {
			t.printEntry(c.Entry)
		}
	case chatclient.ChangeUpdate:
		fmt.Fprintf(t.out, "~ %s edited: %s\n", c.Entry.SenderName, c.Entry.Text)
	case chatclient.ChangeRemove:
		fmt.Fprintf(t.out, "- message %s deleted\n", c.Entry.Key())
	}
}

func (t *terminal) printEntry(e chatclient.Entry) {
	mark := ""
	switch e.Status {
	case chatclient.StatusPending:
		mark = " …"
	case chatclient.StatusFailed:
		mark = " ✗"
	}
	name := e.SenderName
	if name == "" {
		name = "user " + strconv.FormatInt(e.SenderID, 10)
	}
	fmt.Fprintf(t.out, "[%s] %s: %s%s\n", e.Timestamp.Local().Format("15:04"), name, e.Text, mark)
}

func (t *terminal) Notice(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		msg = "not authorized: " + msg
	case errors.Is(err, domain.ErrTransportFailure):
		msg = "connection lost, type /reconnect to resume live updates (" + msg + ")"
	}
	logger.Log.Debug("notice", zap.Error(err))
	fmt.Fprintln(t.out, "! "+msg)
}
