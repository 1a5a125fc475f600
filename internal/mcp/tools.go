package mcp

import "github.com/mark3labs/mcp-go/mcp"

func projectArg() mcp.ToolOption {
	return mcp.WithString("project",
		mcp.Description("Project key (absolute path or slug). Defaults to the server's working directory."))
}

func agentArg(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{mcp.Description("Agent name")}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("agent", opts...)
}

func limitArg(def int) mcp.ToolOption {
	return mcp.WithNumber("limit", mcp.Description("Maximum rows to return"), mcp.DefaultNumber(float64(def)))
}

var sessionStatusToolDef = mcp.NewTool("session_status",
	mcp.WithDescription("Report the local session claim for one agent, or list every live session in the project."),
	mcp.WithReadOnlyHintAnnotation(true),
	projectArg(),
	agentArg(false),
)

var agentDependenciesToolDef = mcp.NewTool("agent_dependencies",
	mcp.WithDescription("Count an agent's unread messages, active reservations and sent messages, and whether it can be deleted without force."),
	mcp.WithReadOnlyHintAnnotation(true),
	projectArg(),
	agentArg(true),
)

var reservationsActiveToolDef = mcp.NewTool("file_reservations_active",
	mcp.WithDescription("List unreleased, unexpired file reservations in the project, soonest expiry first."),
	mcp.WithReadOnlyHintAnnotation(true),
	projectArg(),
	agentArg(false),
	limitArg(defaultReservationLimit),
)

var acksPendingToolDef = mcp.NewTool("acks_pending",
	mcp.WithDescription("List ack-required messages the agent has not acknowledged, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	projectArg(),
	agentArg(true),
	limitArg(defaultAckLimit),
)

var listAgentsToolDef = mcp.NewTool("list_agents",
	mcp.WithDescription("List the project's agents, most recently active first."),
	mcp.WithReadOnlyHintAnnotation(true),
	projectArg(),
)

var resumeContextToolDef = mcp.NewTool("resume_context",
	mcp.WithDescription("Gather what an agent needs to resume work: profile, unread mail, pending acks, reserved files and tracked issues."),
	mcp.WithReadOnlyHintAnnotation(true),
	projectArg(),
	agentArg(true),
)
