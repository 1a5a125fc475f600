package main

import (
	"github.com/urfave/cli/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:                 "agent-mail",
		Usage:                "Coordinate agents through a shared mailbox, file reservations and sessions",
		Version:              Version,
		EnableBashCompletion: true,
		Writer:               rt.env.Stdout,
		ErrWriter:            rt.env.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error (overrides config)"},
		},
		Before: rt.setup,
		After: func(*cli.Context) error {
			return rt.close()
		},
		Commands: []*cli.Command{
			sessionCmd(rt),
			registerCmd(rt),
			whoamiCmd(rt),
			contextCmd(rt),
			sendCmd(rt),
			replyCmd(rt),
			inboxCmd(rt),
			inboxStatusCmd(rt),
			ackCmd(rt),
			searchCmd(rt),
			threadCmd(rt),
			reserveCmd(rt),
			releaseCmd(rt),
			renewCmd(rt),
			fileReservationsCmd(rt),
			acksCmd(rt),
			listAcksCmd(rt),
			listAgentsCmd(rt),
			listProjectsCmd(rt),
			deleteCmd(rt),
			purgeCmd(rt),
			contactsCmd(rt),
			healthCmd(rt),
			mcpCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output JSON"}
}

func projectFlag() cli.Flag {
	return &cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project path (defaults to the working directory)"}
}

// withJSON appends the --json flag every command accepts.
func withJSON(flags ...cli.Flag) []cli.Flag {
	return append(flags, jsonFlag())
}

// withProject appends --project and --json.
func withProject(flags ...cli.Flag) []cli.Flag {
	return append(flags, projectFlag(), jsonFlag())
}

// action adapts a command body. Errors are rendered through the printer
// and turned into exit status 1.
func (rt *runtime) action(fn func(c *cli.Context, p *render.Printer) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		p := rt.printer(c)
		err := fn(c, p)
		if err == nil {
			return nil
		}
		if _, ok := err.(cli.ExitCoder); ok {
			return err
		}
		p.Error(err)
		return exitSilently()
	}
}

// exitSilently fails with status 1 after output has already been written.
func exitSilently() error {
	return cli.Exit("", 1)
}

// requireArgs checks the positional argument count.
func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return errors.NewInvalidRequest("missing argument: " + usage)
	}
	return nil
}
