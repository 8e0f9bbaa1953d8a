// inboxctl is a terminal client for the ast-secret inbox: create a throwaway
// profile, share the link, then watch anonymous messages arrive live.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ast-secret/inboxcore/internal/client"
	"github.com/ast-secret/inboxcore/internal/config"
	"github.com/ast-secret/inboxcore/internal/domain"
	"github.com/ast-secret/inboxcore/internal/gateway"
	"github.com/ast-secret/inboxcore/internal/inbox"
	"github.com/ast-secret/inboxcore/internal/observability"
	"github.com/ast-secret/inboxcore/internal/session"
)

const usage = `Usage: inboxctl <command> [flags]

Commands:
  create    create a new anonymous profile and store the session
  inbox     print the inbox (use -filter all|unread|read|public|private)
  watch     follow the inbox live; new messages, reactions and replies stream in
  send      send an anonymous message: -to <username> -m <text> [-public]
  react     add a reaction: -id <messageId> -kind heart|fire|laugh
  reply     reply to a message: -id <messageId> -m <text>
  read      mark a message read: -id <messageId>
  delete    delete a message: -id <messageId>
  stats     print derived inbox analytics
  logout    forget the local session
`

func main() {
	observability.InitLogger("inboxctl")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	app := newApp(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "create":
		err = app.create(ctx, os.Args[2:])
	case "inbox":
		err = app.inbox(ctx, os.Args[2:])
	case "watch":
		err = app.watch(ctx)
	case "send":
		err = app.send(ctx, os.Args[2:])
	case "react":
		err = app.react(ctx, os.Args[2:])
	case "reply":
		err = app.reply(ctx, os.Args[2:])
	case "read":
		err = app.read(ctx, os.Args[2:])
	case "delete":
		err = app.delete(ctx, os.Args[2:])
	case "stats":
		err = app.stats(ctx)
	case "logout":
		err = app.logout()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	gw       *gateway.Client
	resolver *session.Resolver
}

func newApp(cfg *config.Config) *app {
	return &app{
		cfg: cfg,
		gw: gateway.NewClient(gateway.Options{
			BaseURL:    cfg.APIBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		}),
		resolver: session.NewResolver(cfg.SessionFile),
	}
}

func (a *app) newClient() *client.Client {
	return client.New(client.Options{
		Gateway:   a.gw,
		Resolver:  a.resolver,
		SocketURL: a.cfg.SocketURL,
	})
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	username := fs.String("username", "", "handle to claim (random when empty)")
	usePin := fs.Bool("pin", false, "protect the inbox view with a 4-digit pin")
	pin := fs.String("pin-code", "", "the 4-digit pin")
	public := fs.Bool("public", true, "allow visitors to see public messages")
	fs.Parse(args)

	name := *username
	if name == "" {
		name = domain.GenerateUsername()
	}
	user, err := a.newClient().CreateProfile(ctx, name, *usePin, *pin, *public)
	if err != nil {
		return err
	}
	fmt.Printf("profile created: @%s\nshare link: %s\nexpires: %s\n",
		user.Username, user.Link, user.ExpiresAt.Format(time.RFC1123))
	return nil
}

func (a *app) inbox(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	filter := fs.String("filter", "all", "all|unread|read|public|private")
	fs.Parse(args)

	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()

	user := c.Store().User()
	counts := c.Store().DerivedCounts()
	fmt.Printf("@%s — %d messages (%d unread)\n\n", user.Username, counts.Total, counts.Unread)
	for _, m := range c.Store().FilteredView(inbox.Filter(*filter)) {
		printMessage(m)
	}
	return nil
}

func (a *app) watch(ctx context.Context) error {
	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()

	user := c.Store().User()
	fmt.Printf("watching inbox of @%s (ctrl-c to stop)\n", user.Username)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.Updates():
			if !ok {
				return nil
			}
			switch ev.Type {
			case domain.EventMessageArrived:
				fmt.Println("new message:")
				printMessage(ev.Message)
			case domain.EventReactionChanged:
				if m, ok := c.Store().Get(ev.MessageID); ok {
					fmt.Printf("reactions on %s: ❤️ %d  🔥 %d  😂 %d\n",
						m.ID, m.Reactions.Heart, m.Reactions.Fire, m.Reactions.Laugh)
				}
			case domain.EventReplyAdded:
				fmt.Printf("reply on %s: %s\n", ev.MessageID, ev.Reply)
			}
		}
	}
}

func (a *app) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "recipient username")
	text := fs.String("m", "", "message text")
	public := fs.Bool("public", false, "make the message publicly visible")
	fs.Parse(args)
	if *to == "" {
		return domain.Invalid("-to is required")
	}

	c := a.newClient()
	if err := c.OpenPublic(ctx, *to); err != nil {
		return err
	}
	defer c.Close()

	msg, err := c.Send(ctx, *text, *public)
	if err != nil {
		return err
	}
	fmt.Printf("sent %s to @%s\n", msg.ID, *to)
	return nil
}

func (a *app) react(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("react", flag.ExitOnError)
	id := fs.String("id", "", "message id")
	kindName := fs.String("kind", "heart", "heart|fire|laugh")
	fs.Parse(args)

	kind, err := domain.ParseReactionKind(*kindName)
	if err != nil {
		return err
	}
	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()
	return c.React(ctx, *id, kind)
}

func (a *app) reply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reply", flag.ExitOnError)
	id := fs.String("id", "", "message id")
	text := fs.String("m", "", "reply text")
	fs.Parse(args)

	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()
	return c.Reply(ctx, *id, *text)
}

func (a *app) read(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	id := fs.String("id", "", "message id")
	fs.Parse(args)

	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()
	return c.MarkRead(ctx, *id)
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "message id")
	fs.Parse(args)

	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()
	return c.Delete(ctx, *id)
}

func (a *app) stats(ctx context.Context) error {
	c := a.newClient()
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()

	st := c.Store().Stats()
	fmt.Printf("total messages:     %d\n", st.TotalMessages)
	fmt.Printf("total reactions:    %d\n", st.TotalReactions)
	fmt.Printf("average reactions:  %.1f\n", st.AverageReactions)
	fmt.Printf("most popular:       %s\n", st.MostPopularReaction)
	fmt.Printf("response rate:      %d%%\n", st.ResponseRatePercent)
	fmt.Printf("public / private:   %d / %d\n", st.PublicMessages, st.PrivateMessages)
	fmt.Printf("unread:             %d\n", st.UnreadMessages)
	return nil
}

func (a *app) logout() error {
	return a.resolver.Clear()
}

func printMessage(m *domain.Message) {
	marker := " "
	if !m.IsRead {
		marker = "*"
	}
	visibility := "private"
	if m.IsPublic {
		visibility = "public"
	}
	fmt.Printf("%s [%s] %s (%s)\n", marker, m.ID, m.Content, visibility)
	fmt.Printf("    %s  ❤️ %d  🔥 %d  😂 %d\n",
		m.Timestamp.Format(time.RFC822), m.Reactions.Heart, m.Reactions.Fire, m.Reactions.Laugh)
	if m.HasReply() {
		fmt.Printf("    reply: %s\n", m.Reply)
	}
}
