package remote

// Project is the result of ensure_project.
type Project struct {
	ID       int64  `json:"id"`
	Slug     string `json:"slug"`
	HumanKey string `json:"human_key"`
}

// Agent is an agent profile as returned by register_agent and whois.
type Agent struct {
	ID              int64    `json:"id,omitempty"`
	Name            string   `json:"name"`
	Program         string   `json:"program,omitempty"`
	Model           string   `json:"model,omitempty"`
	TaskDescription string   `json:"task_description,omitempty"`
	InceptionTS     string   `json:"inception_ts,omitempty"`
	LastActiveTS    string   `json:"last_active_ts,omitempty"`
	ProjectID       int64    `json:"project_id,omitempty"`
	RecentCommits   []Commit `json:"recent_commits,omitempty"`
}

// Commit is one entry of whois recent_commits.
type Commit struct {
	Hexsha     string `json:"hexsha"`
	Summary    string `json:"summary"`
	AuthoredTS string `json:"authored_ts,omitempty"`
}

// Message is an inbox or search entry.
type Message struct {
	ID          int64  `json:"id"`
	ThreadID    string `json:"thread_id,omitempty"`
	Subject     string `json:"subject"`
	From        string `json:"from"`
	Importance  string `json:"importance,omitempty"`
	AckRequired bool   `json:"ack_required,omitempty"`
	Kind        string `json:"kind,omitempty"`
	CreatedTS   string `json:"created_ts,omitempty"`
	BodyMD      string `json:"body_md,omitempty"`
}

// InboxStatus is the result of inbox_status. Scope is "agent" when an agent
// was given, otherwise "project".
type InboxStatus struct {
	Scope              string `json:"scope"`
	AgentName          string `json:"agent_name,omitempty"`
	UnreadCount        int    `json:"unread_count,omitempty"`
	UrgentUnreadCount  int    `json:"urgent_unread_count,omitempty"`
	NewSinceCount      *int   `json:"new_since_count,omitempty"`
	LatestMessageTS    string `json:"latest_message_ts,omitempty"`
	RecentMessageCount int    `json:"recent_message_count,omitempty"`
	RecentSeconds      int    `json:"recent_seconds,omitempty"`
}

// RegisterAgentInput is the argument set for register_agent.
type RegisterAgentInput struct {
	ProjectKey      string `json:"project_key"`
	Program         string `json:"program"`
	Model           string `json:"model"`
	TaskDescription string `json:"task_description"`
	Name            string `json:"name,omitempty"`
}

// StartSessionInput is the argument set for macro_start_session.
type StartSessionInput struct {
	HumanKey        string `json:"human_key"`
	Program         string `json:"program"`
	Model           string `json:"model"`
	TaskDescription string `json:"task_description"`
	InboxLimit      int    `json:"inbox_limit"`
	AgentName       string `json:"agent_name,omitempty"`
}

// InboxQuery is the argument set for fetch_inbox.
type InboxQuery struct {
	ProjectKey    string `json:"project_key"`
	AgentName     string `json:"agent_name"`
	Limit         int    `json:"limit"`
	UrgentOnly    bool   `json:"urgent_only"`
	IncludeBodies bool   `json:"include_bodies"`
	SinceTS       string `json:"since_ts,omitempty"`
}

// InboxStatusQuery is the argument set for inbox_status. RecentSeconds only
// applies to the project-wide scope.
type InboxStatusQuery struct {
	ProjectKey    string `json:"project_key"`
	AgentName     string `json:"agent_name,omitempty"`
	SinceTS       string `json:"since_ts,omitempty"`
	UrgentOnly    bool   `json:"urgent_only"`
	RecentSeconds int    `json:"recent_seconds,omitempty"`
}

// SendMessageInput is the argument set for send_message.
type SendMessageInput struct {
	ProjectKey  string   `json:"project_key"`
	SenderName  string   `json:"sender_name"`
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	BodyMD      string   `json:"body_md"`
	Importance  string   `json:"importance"`
	AckRequired bool     `json:"ack_required"`
	CC          []string `json:"cc,omitempty"`
	BCC         []string `json:"bcc,omitempty"`
	ThreadID    string   `json:"thread_id,omitempty"`
}

// ReplyMessageInput is the argument set for reply_message.
type ReplyMessageInput struct {
	ProjectKey string   `json:"project_key"`
	MessageID  int64    `json:"message_id"`
	SenderName string   `json:"sender_name"`
	BodyMD     string   `json:"body_md"`
	To         []string `json:"to,omitempty"`
	CC         []string `json:"cc,omitempty"`
}

// ReserveInput is the argument set for file_reservation_paths.
type ReserveInput struct {
	ProjectKey string   `json:"project_key"`
	AgentName  string   `json:"agent_name"`
	Paths      []string `json:"paths"`
	TTLSeconds int      `json:"ttl_seconds"`
	Exclusive  bool     `json:"exclusive"`
	Reason     string   `json:"reason"`
}
