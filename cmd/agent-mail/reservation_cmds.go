package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
)

// soonLimit bounds the expiring-soon scan.
const soonLimit = 500

func reserveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "reserve",
		Usage:     "Reserve file paths for exclusive or shared access",
		ArgsUsage: "<path>...",
		Flags: withProject(
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Required: true, Usage: "Agent name"},
			&cli.IntFlag{Name: "ttl", Value: 3600, Usage: "Time-to-live in seconds"},
			&cli.BoolFlag{Name: "shared", Usage: "Non-exclusive reservation"},
			&cli.StringFlag{Name: "reason", Usage: "Reason for reservation"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if err := requireArgs(c, 1, "<path>..."); err != nil {
				return err
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().ReservePaths(c.Context, remote.ReserveInput{
				ProjectKey: project,
				AgentName:  c.String("agent"),
				Paths:      c.Args().Slice(),
				TTLSeconds: c.Int("ttl"),
				Exclusive:  !c.Bool("shared"),
				Reason:     c.String("reason"),
			})
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func releaseCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "release",
		Usage:     "Release file reservations (all of the agent's when no path is given)",
		ArgsUsage: "[path]...",
		Flags: withProject(
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Required: true, Usage: "Agent name"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().ReleaseReservations(c.Context, project, c.String("agent"), c.Args().Slice())
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

func renewCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "renew",
		Usage: "Extend an agent's file reservations",
		Flags: withProject(
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Required: true, Usage: "Agent name"},
			&cli.IntFlag{Name: "extend", Value: 1800, Usage: "Seconds to extend"},
		),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			project, err := rt.project(c)
			if err != nil {
				return err
			}
			raw, err := rt.remote().RenewReservations(c.Context, project, c.String("agent"), c.Int("extend"))
			if err != nil {
				return err
			}
			return p.Raw(raw)
		}),
	}
}

// fileReservationsCmd reads reservations straight from the mirror. The
// project argument is a human key or slug and is used as given.
func fileReservationsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "file_reservations",
		Usage: "Inspect file reservations in the local mirror",
		Subcommands: []*cli.Command{
			{
				Name:      "active",
				Usage:     "List active reservations with expiry countdowns",
				ArgsUsage: "<project>",
				Flags: withJSON(
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 100, Usage: "Max reservations"},
				),
				Action: rt.reservations(render.ReservationsActive, func(c *cli.Context) (db.ReservationFilter, string) {
					return db.ReservationFilter{ActiveOnly: true, Limit: c.Int("limit")}, "No active reservations"
				}),
			},
			{
				Name:      "soon",
				Usage:     "List reservations expiring soon",
				ArgsUsage: "<project>",
				Flags: withJSON(
					&cli.IntFlag{Name: "minutes", Aliases: []string{"m"}, Value: 30, Usage: "Minutes threshold"},
				),
				Action: rt.reservations(render.ReservationsSoon, func(c *cli.Context) (db.ReservationFilter, string) {
					minutes := c.Int("minutes")
					return db.ReservationFilter{
						ActiveOnly:     true,
						ExpiringWithin: time.Duration(minutes) * time.Minute,
						Limit:          soonLimit,
					}, fmt.Sprintf("No reservations expiring within %d minutes", minutes)
				}),
			},
			{
				Name:      "list",
				Usage:     "List reservations, optionally including released ones",
				ArgsUsage: "<project>",
				Flags: withJSON(
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Include released"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 100, Usage: "Max reservations"},
				),
				Action: rt.reservations(render.ReservationsAll, func(c *cli.Context) (db.ReservationFilter, string) {
					all := c.Bool("all")
					return db.ReservationFilter{ActiveOnly: !all, IncludeReleased: all, Limit: c.Int("limit")}, "No reservations"
				}),
			},
		},
	}
}

func (rt *runtime) reservations(view render.ReservationView, filter func(c *cli.Context) (db.ReservationFilter, string)) cli.ActionFunc {
	return rt.action(func(c *cli.Context, p *render.Printer) error {
		if err := requireArgs(c, 1, "<project>"); err != nil {
			return err
		}
		store, err := rt.store(db.ReadOnly)
		if err != nil {
			return err
		}
		f, empty := filter(c)
		rows, err := store.ListReservations(c.Context, c.Args().First(), f)
		if err != nil {
			return err
		}
		if p.JSONMode() {
			if rows == nil {
				rows = []db.Reservation{}
			}
			return p.JSON(rows)
		}
		p.Reservations(rows, view, empty, rt.env.Now())
		return nil
	})
}
