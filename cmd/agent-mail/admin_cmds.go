package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/ops"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
)

// writeMode picks the store mode; dry runs never need a writable handle.
func writeMode(dryRun bool) db.Mode {
	if dryRun {
		return db.ReadOnly
	}
	return db.ReadWrite
}

func deleteCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete one or more agents (rename to Deleted-*)",
		ArgsUsage: "<agent>...",
		Description: "Agents are renamed to 'Deleted-N' and blocked. Their reservations are released,\n" +
			"they are removed from message recipients and contact links, and messages they\n" +
			"sent are kept as orphans. Run 'purge' afterwards to remove them permanently.\n\n" +
			"   agent-mail delete OliveStream\n" +
			"   agent-mail delete Agent1 Agent2 Agent3\n" +
			"   agent-mail delete --dry-run Agent1 Agent2",
		Flags: withProject(
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Delete even with unread messages or active reservations"},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Check dependencies without deleting"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<agent>..."); err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			dryRun := c.Bool("dry-run")
			store, err := rt.store(writeMode(dryRun))
			if err != nil {
				return err
			}

			out := ops.SoftDelete(c.Context, store, ops.DeleteInput{
				Project: project,
				Agents:  c.Args().Slice(),
				Force:   c.Bool("force"),
				DryRun:  dryRun,
			})
			if p.JSONMode() {
				if err := p.JSON(out); err != nil {
					return err
				}
			} else {
				p.Delete(out)
			}
			if out.HasErrors() {
				return exitSilently()
			}
			return nil
		}),
	}
}

func purgeCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently remove soft-deleted agents and their orphaned messages",
		Flags: withProject(
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Show what would be purged without deleting"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			dryRun := c.Bool("dry-run")
			store, err := rt.store(writeMode(dryRun))
			if err != nil {
				return err
			}
			out, err := ops.Purge(c.Context, store, ops.PurgeInput{Project: project, DryRun: dryRun})
			if err != nil {
				return err
			}
			if p.JSONMode() {
				return p.JSON(out)
			}
			p.Purge(out)
			return nil
		}),
	}
}

// acksCmd reads acknowledgement state from the mirror. Project and agent
// are positional and used as given.
func acksCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "acks",
		Usage: "Inspect acknowledgement state in the local mirror",
		Subcommands: []*cli.Command{
			{
				Name:      "pending",
				Usage:     "List ack-required messages still waiting for acknowledgement",
				ArgsUsage: "<project> <agent>",
				Flags: withJSON(
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Max messages"},
				),
				Action: rt.action(func(c *cli.Context, p *render.Printer) error {
					if err := requireArgs(c, 2, "<project> <agent>"); err != nil {
						return err
					}
					store, err := rt.store(db.ReadOnly)
					if err != nil {
						return err
					}
					rows, err := store.AcksPending(c.Context, c.Args().Get(0), c.Args().Get(1), c.Int("limit"))
					if err != nil {
						return err
					}
					return printAcks(p, rows, "No pending acknowledgements")
				}),
			},
			{
				Name:      "overdue",
				Usage:     "List ack-required messages older than a threshold",
				ArgsUsage: "<project> <agent>",
				Flags: withJSON(
					&cli.IntFlag{Name: "hours", Value: 24, Usage: "Age threshold in hours"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Max messages"},
				),
				Action: rt.action(func(c *cli.Context, p *render.Printer) error {
					if err := requireArgs(c, 2, "<project> <agent>"); err != nil {
						return err
					}
					store, err := rt.store(db.ReadOnly)
					if err != nil {
						return err
					}
					hours := c.Int("hours")
					rows, err := store.AcksOverdue(c.Context, c.Args().Get(0), c.Args().Get(1), hours, c.Int("limit"))
					if err != nil {
						return err
					}
					return printAcks(p, rows, fmt.Sprintf("No overdue acknowledgements (threshold: %dh)", hours))
				}),
			},
		},
	}
}

func printAcks(p *render.Printer, rows []db.PendingAck, empty string) error {
	if p.JSONMode() {
		if rows == nil {
			rows = []db.PendingAck{}
		}
		return p.JSON(rows)
	}
	p.Acks(rows, empty)
	return nil
}

func listAcksCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list-acks",
		Usage: "List messages an agent still has to acknowledge",
		Flags: withProject(
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Usage: "Agent name"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "Max messages"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			agent := strings.TrimSpace(c.String("agent"))
			if agent == "" {
				return errors.NewInvalidRequest("--agent is required")
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			store, err := rt.store(db.ReadOnly)
			if err != nil {
				return err
			}
			rows, err := store.AcksPending(c.Context, project, agent, c.Int("limit"))
			if err != nil {
				return err
			}
			if p.JSONMode() {
				if rows == nil {
					rows = []db.PendingAck{}
				}
				return p.JSON(rows)
			}
			p.AckLines(rows)
			return nil
		}),
	}
}

func listAgentsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list-agents",
		Usage: "List agents in a project",
		Flags: withProject(),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			store, err := rt.store(db.ReadOnly)
			if err != nil {
				return err
			}
			agents, err := store.ListAgents(c.Context, project)
			if err != nil {
				return err
			}
			if p.JSONMode() {
				if agents == nil {
					agents = []db.Agent{}
				}
				return p.JSON(agents)
			}
			p.Agents(agents, rt.env.Now())
			return nil
		}),
	}
}

func listProjectsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list-projects",
		Usage: "List known projects",
		Flags: withJSON(
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 100, Usage: "Max projects"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			store, err := rt.store(db.ReadOnly)
			if err != nil {
				return err
			}
			projects, err := store.ListProjects(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if p.JSONMode() {
				if projects == nil {
					projects = []db.Project{}
				}
				return p.JSON(projects)
			}
			p.Projects(projects)
			return nil
		}),
	}
}
