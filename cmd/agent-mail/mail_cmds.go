package main

import (
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
)

var importances = []string{"low", "normal", "high", "urgent"}

func sendCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a message to other agents",
		Flags: withProject(
			&cli.StringSliceFlag{Name: "to", Aliases: []string{"t"}, Required: true, Usage: "Recipient agent name(s)"},
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Required: true, Usage: "Message subject"},
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Required: true, Usage: "Message body (Markdown)"},
			&cli.StringFlag{Name: "from", Aliases: []string{"f"}, Required: true, Usage: "Sender agent name"},
			&cli.StringSliceFlag{Name: "cc", Usage: "CC recipients"},
			&cli.StringFlag{Name: "importance", Value: "normal", Usage: "Message importance: " + strings.Join(importances, "|")},
			&cli.BoolFlag{Name: "ack", Usage: "Request acknowledgement"},
			&cli.StringFlag{Name: "thread", Usage: "Thread ID to continue"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			importance, err := parseImportance(c.String("importance"))
			if err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().SendMessage(c.Context, remote.SendMessageInput{
				ProjectKey:  project,
				SenderName:  c.String("from"),
				To:          c.StringSlice("to"),
				Subject:     c.String("subject"),
				BodyMD:      c.String("body"),
				Importance:  importance,
				AckRequired: c.Bool("ack"),
				CC:          c.StringSlice("cc"),
				ThreadID:    c.String("thread"),
			})
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func parseImportance(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, v := range importances {
		if s == v {
			return s, nil
		}
	}
	return "", errors.NewInvalidRequest("invalid importance: " + s + " (want " + strings.Join(importances, ", ") + ")")
}

// messageID parses the positional message id.
func messageID(c *cli.Context) (int64, error) {
	if err := requireArgs(c, 1, "<message-id>"); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest("invalid message id: " + c.Args().First())
	}
	return id, nil
}

func replyCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "reply",
		Usage:     "Reply to a message",
		ArgsUsage: "<message-id>",
		Flags: withProject(
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Required: true, Usage: "Reply body (Markdown)"},
			&cli.StringFlag{Name: "from", Aliases: []string{"f"}, Required: true, Usage: "Sender agent name"},
			&cli.StringSliceFlag{Name: "to", Usage: "Override recipients"},
			&cli.StringSliceFlag{Name: "cc", Usage: "CC recipients"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			id, err := messageID(c)
			if err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().ReplyMessage(c.Context, remote.ReplyMessageInput{
				ProjectKey: project,
				MessageID:  id,
				SenderName: c.String("from"),
				BodyMD:     c.String("body"),
				To:         c.StringSlice("to"),
				CC:         c.StringSlice("cc"),
			})
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func inboxCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "inbox",
		Usage:     "Fetch an agent's inbox",
		ArgsUsage: "<agent>",
		Flags: withProject(
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Max messages"},
			&cli.BoolFlag{Name: "urgent", Usage: "Only urgent messages"},
			&cli.StringFlag{Name: "since", Usage: "ISO timestamp to fetch since"},
			&cli.BoolFlag{Name: "bodies", Usage: "Include message bodies"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<agent>"); err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			msgs, err := rt.remote().FetchInbox(c.Context, remote.InboxQuery{
				ProjectKey:    project,
				AgentName:     c.Args().First(),
				Limit:         c.Int("limit"),
				UrgentOnly:    c.Bool("urgent"),
				IncludeBodies: c.Bool("bodies"),
				SinceTS:       c.String("since"),
			})
			if err != nil {
				return err
			}
			if p.JSONMode() {
				if msgs == nil {
					msgs = []remote.Message{}
				}
				return p.JSON(msgs)
			}
			p.Inbox(msgs, c.Bool("bodies"))
			return nil
		}),
	}
}

// inboxStatusCmd is a cheap poll for hooks: silent when nothing is unread.
func inboxStatusCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "inbox-status",
		Usage: "Summarize unread mail for an agent, or recent activity for the project",
		Flags: withProject(
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Usage: "Agent name (omit for project-wide activity)"},
			&cli.IntFlag{Name: "recent-minutes", Value: 60, Usage: "Project-wide activity window in minutes"},
			&cli.StringFlag{Name: "since-ts", Usage: "Count messages newer than this ISO timestamp"},
			&cli.BoolFlag{Name: "urgent", Usage: "Only urgent messages"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			agent := strings.TrimSpace(c.String("agent"))
			q := remote.InboxStatusQuery{
				ProjectKey: project,
				AgentName:  agent,
				SinceTS:    c.String("since-ts"),
				UrgentOnly: c.Bool("urgent"),
			}
			if agent == "" {
				q.RecentSeconds = max(1, c.Int("recent-minutes")*60)
			}
			st, err := rt.remote().InboxStatus(c.Context, q)
			if err != nil {
				return err
			}
			if p.JSONMode() {
				return p.JSON(st)
			}
			p.InboxStatus(st, project, agent, q.SinceTS)
			return nil
		}),
	}
}

func ackCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "ack",
		Usage:     "Acknowledge a message",
		ArgsUsage: "<message-id>",
		Flags: withProject(
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Required: true, Usage: "Agent name"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			id, err := messageID(c)
			if err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().AcknowledgeMessage(c.Context, project, c.String("agent"), id)
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func searchCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search messages",
		ArgsUsage: "<query>",
		Flags: withProject(
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Max results"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<query>"); err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			msgs, err := rt.remote().SearchMessages(c.Context, project, strings.Join(c.Args().Slice(), " "), c.Int("limit"))
			if err != nil {
				return err
			}
			if p.JSONMode() {
				if msgs == nil {
					msgs = []remote.Message{}
				}
				return p.JSON(msgs)
			}
			p.SearchResults(msgs)
			return nil
		}),
	}
}

func threadCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "thread",
		Usage:     "View or summarize a thread",
		ArgsUsage: "<thread-id>",
		Flags: withProject(
			&cli.BoolFlag{Name: "summarize", Aliases: []string{"s"}, Usage: "Ask the server for an LLM summary"},
			&cli.BoolFlag{Name: "examples", Usage: "Include example messages"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<thread-id>"); err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().SummarizeThread(c.Context, project, c.Args().First(), c.Bool("examples"), c.Bool("summarize"))
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func contactsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "contacts",
		Usage: "Inspect contact links",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List an agent's contacts",
				ArgsUsage: "<agent>",
				Flags:     withProject(),
				Action: rt.action(func(c *cli.Context, p *render.Printer) error {
					if err := requireArgs(c, 1, "<agent>"); err != nil {
						return err
					}
					project, err := rt.project(c)
					if err != nil {
						return err
					}
					raw, err := rt.remote().ListContacts(c.Context, project, c.Args().First())
					if err != nil {
						return err
					}
					if p.JSONMode() {
						return p.Raw(raw)
					}
					return p.Contacts(raw)
				}),
			},
		},
	}
}

func healthCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the server is reachable",
		Flags: withJSON(),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			raw, err := rt.remote().HealthCheck(c.Context)
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}
