package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/db/dbtest"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/session"
)

const testProject = "/work/alpha"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type alwaysAlive struct{}

func (alwaysAlive) IsAlive(int) bool { return true }

type flatTree struct{}

func (flatTree) Lookup(int) (int, string, error) { return 1, "claude", nil }

type fakeMail struct{}

func (fakeMail) Whois(_ context.Context, _, agent string, _ bool) (*remote.Agent, error) {
	return &remote.Agent{Name: agent, TaskDescription: "refactor auth"}, nil
}

func (fakeMail) FetchInbox(context.Context, remote.InboxQuery) ([]remote.Message, error) {
	return []remote.Message{{ID: 1, From: "RedFox", Subject: "hi", CreatedTS: "2026-03-01T11:58:00Z"}}, nil
}

// testSetup seeds a mirror where BlueLake holds one reservation and sent an
// ack-required message that RedFox has not acknowledged.
func testSetup(t *testing.T) (*Handlers, *session.Registry) {
	t.Helper()

	f := dbtest.New(t)
	proj := f.Project(testProject)
	blue := f.Agent(proj, "BlueLake")
	red := f.Agent(proj, "RedFox")
	f.Agent(proj, "GreenHill")
	msg := f.Message(proj, blue, dbtest.MessageOpts{Subject: "sign off", AckRequired: true})
	f.Recipient(msg, red, nil, nil)
	f.Reservation(proj, blue, "src/**", dbtest.ReservationOpts{})

	store, err := db.Open(f.Path, db.ReadOnly)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := session.New(session.Options{
		Dir:       t.TempDir(),
		Prober:    alwaysAlive{},
		Tree:      flatTree{},
		SelfPID:   500,
		ParentPID: 499,
		Now:       func() time.Time { return testNow },
	})

	h := NewHandlers(Deps{
		Project:  testProject,
		Sessions: sessions,
		Store:    func() (*db.Store, error) { return store, nil },
		Mail:     fakeMail{},
		Now:      func() time.Time { return testNow },
	})
	return h, sessions
}

// unavailable returns handlers whose mirror cannot be opened.
func unavailable(t *testing.T) *Handlers {
	t.Helper()
	return NewHandlers(Deps{
		Project: testProject,
		Store: func() (*db.Store, error) {
			return nil, errors.NewStoreUnavailable("/missing.sqlite3", nil)
		},
		Mail: fakeMail{},
		Now:  func() time.Time { return testNow },
	})
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleSessionStatus(t *testing.T) {
	h, sessions := testSetup(t)
	ctx := context.Background()

	if _, err := sessions.Write(testProject, "BlueLake", 10*time.Minute); err != nil {
		t.Fatalf("write session: %v", err)
	}

	result, err := h.HandleSessionStatus(ctx, makeRequest(map[string]any{"agent": "BlueLake"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["agent"] != "BlueLake" {
		t.Errorf("agent = %v, want BlueLake", output["agent"])
	}
	if output["pid"] != float64(499) {
		t.Errorf("pid = %v, want 499", output["pid"])
	}

	result, _ = h.HandleSessionStatus(ctx, makeRequest(map[string]any{"agent": "RedFox"}))
	output = parseOutput(t, result)
	if output["status"] != "inactive" {
		t.Errorf("status = %v, want inactive", output["status"])
	}

	result, _ = h.HandleSessionStatus(ctx, makeRequest(map[string]any{}))
	list := parseList(t, result)
	if len(list) != 1 || list[0]["agent"] != "BlueLake" {
		t.Errorf("sessions = %v, want only BlueLake", list)
	}

	result, _ = h.HandleSessionStatus(ctx, makeRequest(map[string]any{"project": "/work/other"}))
	if list := parseList(t, result); len(list) != 0 {
		t.Errorf("other project sessions = %v, want none", list)
	}
}

func TestHandleAgentDependencies(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
		canDelete bool
	}{
		{name: "holder of a reservation", args: map[string]any{"agent": "BlueLake"}},
		{name: "unattached agent", args: map[string]any{"agent": "GreenHill"}, canDelete: true},
		{name: "explicit project", args: map[string]any{"project": testProject, "agent": "GreenHill"}, canDelete: true},
		{name: "missing agent", args: map[string]any{}, errorCode: "INVALID_REQUEST"},
		{name: "unknown agent", args: map[string]any{"agent": "Nobody"}, errorCode: "NOT_FOUND"},
		{name: "unknown argument", args: map[string]any{"agnet": "BlueLake"}, errorCode: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleAgentDependencies(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.errorCode != "" {
				if !result.IsError {
					t.Fatalf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			output := parseOutput(t, result)
			if output["can_delete"] != tt.canDelete {
				t.Errorf("can_delete = %v, want %v", output["can_delete"], tt.canDelete)
			}
		})
	}
}

func TestHandleReservationsActive(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	result, _ := h.HandleReservationsActive(ctx, makeRequest(map[string]any{}))
	list := parseList(t, result)
	if len(list) != 1 || list[0]["path_pattern"] != "src/**" || list[0]["agent"] != "BlueLake" {
		t.Errorf("reservations = %v", list)
	}

	result, _ = h.HandleReservationsActive(ctx, makeRequest(map[string]any{"agent": "RedFox"}))
	if list := parseList(t, result); len(list) != 0 {
		t.Errorf("RedFox reservations = %v, want none", list)
	}
}

func TestHandleAcksPending(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	result, _ := h.HandleAcksPending(ctx, makeRequest(map[string]any{"agent": "RedFox", "limit": 5}))
	list := parseList(t, result)
	if len(list) != 1 || list[0]["sender"] != "BlueLake" || list[0]["subject"] != "sign off" {
		t.Errorf("acks = %v", list)
	}

	result, _ = h.HandleAcksPending(ctx, makeRequest(map[string]any{"agent": "BlueLake"}))
	if list := parseList(t, result); len(list) != 0 {
		t.Errorf("BlueLake acks = %v, want none", list)
	}

	result, _ = h.HandleAcksPending(ctx, makeRequest(map[string]any{"agent": " "}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleListAgents(t *testing.T) {
	h, _ := testSetup(t)

	result, _ := h.HandleListAgents(context.Background(), makeRequest(map[string]any{}))
	if list := parseList(t, result); len(list) != 3 {
		t.Errorf("agents = %d, want 3", len(list))
	}
}

func TestHandleResumeContext(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	result, _ := h.HandleResumeContext(ctx, makeRequest(map[string]any{"agent": "BlueLake"}))
	output := parseOutput(t, result)

	agent := output["agent"].(map[string]any)
	if agent["task_description"] != "refactor auth" {
		t.Errorf("task = %v", agent["task_description"])
	}
	files := output["files"].(map[string]any)
	if reserved := files["reserved"].([]any); len(reserved) != 1 {
		t.Errorf("reserved = %v, want one entry", reserved)
	}
	attention := output["attention_needed"].(map[string]any)
	if attention["unread_messages"] != float64(1) {
		t.Errorf("unread_messages = %v, want 1", attention["unread_messages"])
	}

	result, _ = h.HandleResumeContext(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandlers_StoreUnavailable(t *testing.T) {
	h := unavailable(t)
	ctx := context.Background()

	result, _ := h.HandleListAgents(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, "STORE_UNAVAILABLE")

	result, _ = h.HandleAgentDependencies(ctx, makeRequest(map[string]any{"agent": "BlueLake"}))
	assertErrorCode(t, result, "STORE_UNAVAILABLE")

	// The context snapshot still succeeds and marks the mirror sections.
	result, _ = h.HandleResumeContext(ctx, makeRequest(map[string]any{"agent": "BlueLake"}))
	output := parseOutput(t, result)
	files := output["files"].(map[string]any)
	if files["error"] != "mirror unavailable" {
		t.Errorf("files.error = %v, want mirror unavailable", files["error"])
	}
}

func TestServerRegistration(t *testing.T) {
	h, _ := testSetup(t)

	s := NewServer(h, nil, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"session_status",
		"agent_dependencies",
		"file_reservations_active",
		"acks_pending",
		"list_agents",
		"resume_context",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, _ := testSetup(t)

	s := NewServer(h, []string{"resume_context", "list_agents", "list_agents"}, "test")
	tools := s.ListTools()

	if len(tools) != 4 {
		t.Errorf("registered tool count = %d, want 4", len(tools))
	}
	for _, name := range []string{"resume_context", "list_agents"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	h, _ := testSetup(t)

	s := NewServer(h, AllToolNames(), "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"list_agents", "acks_pending"}, wantLen: 0},
		{name: "one unknown", input: []string{"list_agents", "send_message"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 6 {
		t.Errorf("AllToolNames() returned %d names, want 6", len(names))
	}
	if names[0] != "acks_pending" {
		t.Errorf("AllToolNames() not sorted: %v", names)
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	for _, err := range []error{
		errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")),
		fmt.Errorf("plain failure"),
	} {
		r := errorResult(err)
		if !r.IsError {
			t.Fatal("expected IsError=true")
		}
		errObj := errorObject(t, r)
		if errObj["code"] != string(errors.ErrInternal) {
			t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
		}
		if errObj["message"] != "an internal error occurred" {
			t.Errorf("message = %v", errObj["message"])
		}
		if _, ok := errObj["details"]; ok {
			t.Fatal("expected INTERNAL errors to omit details")
		}
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("agents[1]: %w", errors.NewNotFound("agent", "RedFox")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	details, ok := errObj["details"].(map[string]any)
	if !ok || details["key"] != "RedFox" {
		t.Errorf("details = %v, want key RedFox", errObj["details"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON object from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

// parseList extracts and unmarshals a JSON array from an MCP result.
func parseList(t *testing.T, result *mcp.CallToolResult) []map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output []map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if output == nil {
		t.Fatalf("expected a JSON array, got %s", extractErrorMessage(result))
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error result, got success: %s", extractErrorMessage(result))
		return
	}
	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
