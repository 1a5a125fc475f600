package main

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/identity"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/ops"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
)

const (
	defaultProgram = "claude-code"
	defaultModel   = "claude-opus-4-5-20251101"
)

func sessionCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage local session claims",
		Subcommands: []*cli.Command{
			sessionStartCmd(rt),
			sessionHeartbeatCmd(rt),
			sessionStatusCmd(rt),
			sessionEndCmd(rt),
		},
	}
}

// sessionStartCmd bootstraps on the server: ensure project, register, fetch inbox.
func sessionStartCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Bootstrap a session: ensure project, register agent, fetch inbox",
		Flags: withProject(
			&cli.StringFlag{Name: "program", Value: defaultProgram, Usage: "Agent program name"},
			&cli.StringFlag{Name: "model", Value: defaultModel, Usage: "Model identifier"},
			&cli.StringFlag{Name: "name", Usage: "Agent name (auto-generated if omitted)"},
			&cli.StringFlag{Name: "task", Usage: "Task description"},
			&cli.IntFlag{Name: "inbox-limit", Value: 10, Usage: "Inbox messages to include"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().StartSession(c.Context, remote.StartSessionInput{
				HumanKey:        project,
				Program:         c.String("program"),
				Model:           c.String("model"),
				TaskDescription: c.String("task"),
				InboxLimit:      c.Int("inbox-limit"),
				AgentName:       c.String("name"),
			})
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func sessionHeartbeatCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "heartbeat",
		Usage:     "Extend a session's TTL",
		ArgsUsage: "<agent>",
		Flags: withProject(
			&cli.IntFlag{Name: "ttl", Usage: "Session TTL in seconds (default: session_ttl from config)"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<agent>"); err != nil {
				return err
			}
			agent := c.Args().First()
			project, err := rt.project(c)
			if err != nil {
				return err
			}

			reg := rt.sessions()
			if reg.Read(project, agent) == nil {
				if p.JSONMode() {
					_ = p.JSON(map[string]string{"error": "no_session", "agent": agent})
				} else {
					p.ErrWarning("No active session for %s", agent)
				}
				return exitSilently()
			}

			ttl := rt.sessionTTL(c)
			rec, err := reg.Write(project, agent, ttl)
			if err != nil {
				return err
			}
			if p.JSONMode() {
				return p.JSON(rec)
			}
			p.Success("Session extended for %s (TTL: %ds)", agent, int(ttl.Seconds()))
			return nil
		}),
	}
}

func sessionStatusCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show one agent's session, or list every active session",
		ArgsUsage: "[agent]",
		Flags:     withProject(),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			reg := rt.sessions()
			now := rt.env.Now()

			if agent := c.Args().First(); agent != "" {
				rec := reg.Read(project, agent)
				if !p.JSONMode() {
					p.SessionStatus(agent, rec, now)
					return nil
				}
				if rec == nil {
					return p.JSON(map[string]string{"agent": agent, "status": "inactive"})
				}
				return p.JSON(rec)
			}

			records := reg.List(project)
			if p.JSONMode() {
				if records == nil {
					return p.JSON([]any{})
				}
				return p.JSON(records)
			}
			p.Sessions(records, now)
			return nil
		}),
	}
}

func sessionEndCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "end",
		Usage:     "End an agent's session",
		ArgsUsage: "<agent>",
		Flags:     withProject(),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<agent>"); err != nil {
				return err
			}
			agent := c.Args().First()
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			cleared, err := rt.sessions().Clear(project, agent)
			if err != nil {
				return err
			}
			if p.JSONMode() {
				return p.JSON(map[string]any{"agent": agent, "cleared": cleared})
			}
			if cleared {
				p.Success("Session ended for %s", agent)
			} else {
				p.Line(p.Dim("No active session for " + agent))
			}
			return nil
		}),
	}
}

func registerCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Register an agent in the project and claim its session",
		Description: "First registration (name auto-assigned):\n" +
			"   agent-mail register --task \"working on feature X\"\n\n" +
			"Resume as a specific agent:\n" +
			"   agent-mail register --as OliveStream --task \"continuing work\"\n\n" +
			"Resume the most recently active agent:\n" +
			"   agent-mail register --resume",
		Flags: withProject(
			&cli.StringFlag{Name: "program", Value: defaultProgram, Usage: "Agent program name"},
			&cli.StringFlag{Name: "model", Value: defaultModel, Usage: "Model identifier"},
			&cli.StringFlag{Name: "name", Usage: "Resume as an existing agent (exact name)"},
			&cli.StringFlag{Name: "as", Usage: "Resume as an existing agent (takes precedence over --name)"},
			&cli.BoolFlag{Name: "resume", Aliases: []string{"r"}, Usage: "Resume as the most recently active agent"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Take over a session held by another live process"},
			&cli.IntFlag{Name: "ttl", Usage: "Session TTL in seconds (default: session_ttl from config)"},
			&cli.StringFlag{Name: "task", Usage: "Task description"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}

			name := c.String("as")
			if name == "" {
				name = c.String("name")
			}
			req := identity.Request{
				Project: project,
				Name:    name,
				Resume:  c.Bool("resume"),
				Force:   c.Bool("force"),
				TTL:     rt.sessionTTL(c),
				Program: c.String("program"),
				Model:   c.String("model"),
				Task:    c.String("task"),
			}

			resolver := &identity.Resolver{
				Registrar: rt.remote(),
				Sessions:  rt.sessions(),
				Now:       rt.env.Now,
				Logger:    rt.logger,
			}
			if req.Resume && name == "" {
				if store, err := rt.store(db.ReadOnly); err == nil {
					resolver.Directory = store
				} else {
					rt.logger.Debug("register: mirror unavailable, resume starts fresh", "error", err)
				}
			}

			res, err := resolver.Resolve(c.Context, req)
			if err != nil {
				return err
			}

			if p.JSONMode() {
				return p.JSON(registerPayload(res, req))
			}
			p.Register(req, res, rt.env.Now())
			return nil
		}),
	}
}

// registerPayload is the server's register_agent result plus session_ttl.
func registerPayload(res *identity.Result, req identity.Request) map[string]any {
	out := map[string]any{}
	if len(res.Raw) == 0 || json.Unmarshal(res.Raw, &out) != nil || out == nil {
		out = map[string]any{"name": res.Agent.Name}
	}
	out["session_ttl"] = int(req.TTL.Seconds())
	return out
}

func whoamiCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "whoami",
		Usage:     "Show an agent's profile",
		ArgsUsage: "<agent>",
		Flags: withProject(
			&cli.BoolFlag{Name: "commits", Value: true, Usage: "Include recent commits"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<agent>"); err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			agent, err := rt.remote().Whois(c.Context, project, c.Args().First(), c.Bool("commits"))
			if err != nil {
				return err
			}
			if p.JSONMode() {
				return p.JSON(agent)
			}
			p.Whois(agent, rt.env.Now())
			return nil
		}),
	}
}

func contextCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "context",
		Usage:     "Show everything an agent needs to resume work",
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

			agg := &ops.Aggregator{
				Mail:   rt.remote(),
				Issues: rt.issues(),
				Now:    rt.env.Now,
				Logger: rt.logger,
			}
			if store, err := rt.store(db.ReadOnly); err == nil {
				agg.Mirror = store
			} else {
				rt.logger.Debug("context: mirror unavailable", "error", err)
			}

			snap := agg.Build(c.Context, project, c.Args().First())
			if p.JSONMode() {
				return p.JSON(snap)
			}
			p.Context(snap, rt.env.Now())
			return nil
		}),
	}
}
