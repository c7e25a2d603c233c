package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/campusgig/messaging/internal/auth"
	"github.com/campusgig/messaging/internal/chatclient"
	"github.com/campusgig/messaging/internal/config"
	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the chat client.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const help = `commands:
  /open <userId>   open the conversation with userId
  /close           close the open conversation
  /history         show the open conversation
  /unread          show unread counts
  /quit            log out and exit
anything else is sent to the open conversation`

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatcli error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return exitConfig, err
	}
	observability.InitLogger("chatcli", cfg.LogLevel)

	token, err := resolveToken(cfg)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := chatclient.NewSession(cfg, token)
	if err != nil {
		return exitConfig, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = sess.Start(connectCtx)
	cancel()
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", cfg.ChannelURL, err)
	}
	defer sess.Logout()

	c := &cli{sess: sess, chat: sess.OpenChat(), out: os.Stdout}
	c.watch()

	fmt.Fprintf(c.out, ">>> Signed in as %s (type /help)\n", cfg.UserID)

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if quit := c.handle(ctx, line); quit {
				return exitOK, nil
			}
		}
	}
}

// resolveToken prefers AUTH_TOKEN and falls back to minting one with
// JWT_SECRET for local development.
func resolveToken(cfg *config.ClientConfig) (string, error) {
	if cfg.AuthToken != "" {
		return cfg.AuthToken, nil
	}
	if cfg.JWTSecret == "" {
		return "", errors.New("missing required env: AUTH_TOKEN or JWT_SECRET")
	}
	return auth.NewVerifier(cfg.JWTSecret, "", "").Mint(auth.Identity{UserID: cfg.UserID}, 24*time.Hour)
}

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

type cli struct {
	sess *chatclient.Session
	chat *chatclient.ChatSession
	out  io.Writer
}

// watch prints live pushes for the open conversation and badge changes.
func (c *cli) watch() {
	c.sess.Channel.Subscribe(
		func(m *domain.Message) bool { return m.Between(c.sess.UserID, c.chat.Counterpart()) },
		func(m *domain.Message) { c.printMessage(m) },
	)
	c.sess.Tracker.OnChange(func(s chatclient.Snapshot) {
		if s.Total > 0 && s.LatestSender != "" {
			fmt.Fprintf(c.out, "* unread: %d (latest from %s)\n", s.Total, s.LatestSender)
		}
	})
}

func (c *cli) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, help)
	case "/open":
		if arg == "" {
			fmt.Fprintln(c.out, "usage: /open <userId>")
			return false
		}
		c.chat.Close()
		if err := c.chat.Open(ctx, arg); err != nil {
			c.notify(err)
			return false
		}
		c.printHistory()
	case "/close":
		c.chat.Close()
	case "/history":
		c.printHistory()
	case "/unread":
		c.printUnread()
	default:
		msg, err := c.chat.Send(ctx, line)
		if msg != nil {
			c.printMessage(msg)
		}
		if err != nil {
			c.notify(err)
		}
	}
	return false
}

func (c *cli) notify(err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fmt.Fprintf(c.out, "! not sent: %v\n", err)
	case errors.Is(err, domain.ErrNotFound):
		fmt.Fprintf(c.out, "! %v\n", err)
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrChannel):
		fmt.Fprintf(c.out, "! network problem, try again: %v\n", err)
	default:
		fmt.Fprintf(c.out, "! %v\n", err)
	}
}

func (c *cli) printMessage(m *domain.Message) {
	fmt.Fprintf(c.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
}

func (c *cli) printHistory() {
	counterpart := c.chat.Counterpart()
	if counterpart == "" {
		fmt.Fprintln(c.out, "no conversation open")
		return
	}
	fmt.Fprintf(c.out, "--- %s ---\n", counterpart)
	for _, m := range c.chat.Messages() {
		c.printMessage(m)
	}
}

func (c *cli) printUnread() {
	snap := c.sess.Tracker.Snapshot()

	senders := make([]string, 0, len(snap.BySender))
	for s := range snap.BySender {
		senders = append(senders, s)
	}
	sort.Strings(senders)

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Sender", "Unread"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, s := range senders {
		table.Append([]string{s, strconv.Itoa(snap.BySender[s])})
	}
	table.SetFooter([]string{"Total", strconv.Itoa(snap.Total)})
	table.Render()
}
