package main

import (
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/mcp"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
)

// mcpCmd serves the read-only coordination tools over stdio.
func mcpCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve read-only coordination tools over MCP stdio",
		Description: "Tools: " + strings.Join(mcp.AllToolNames(), ", ") + "\n\n" +
			"Disable tools with disabled_tools in config.yaml. Requires piped input.",
		Flags: withProject(),
		Action: rt.action(func(c *cli.Context, p *render.Printer) error {
			if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
				return errors.NewInvalidRequest("unknown disabled_tools: " + strings.Join(unknown, ", "))
			}
			if f, ok := rt.env.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return errors.NewInvalidRequest("mcp speaks JSON-RPC on stdin; run it from an MCP client")
			}
			project, err := rt.project(c)
			if err != nil {
				return err
			}

			h := mcp.NewHandlers(mcp.Deps{
				Project:  project,
				Sessions: rt.sessions(),
				Store: func() (*db.Store, error) {
					return rt.store(db.ReadOnly)
				},
				Mail:   rt.remote(),
				Issues: rt.issues(),
				Now:    rt.env.Now,
				Logger: rt.logger,
			})
			s := mcp.NewServer(h, rt.cfg.DisabledTools, Version)
			rt.logger.Debug("mcp: serving", "project", project, "disabled", rt.cfg.DisabledTools)
			return mcp.Run(c.Context, s, rt.env.Stdin, rt.env.Stdout)
		}),
	}
}
