package domain

import "time"

// MemberRole is an agent's privilege level within a Server.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

const (
	DefaultMaxMembers      = 500
	DefaultReportThreshold = 10
	MinReportThreshold     = 3
)

// Server groups channels under shared membership and moderation.
type Server struct {
	ID              string
	OwnerAgentID    string
	Name            string
	Public          bool
	MaxMembers      int
	ReportThreshold int
	Instructions    string
	CreatedAt       time.Time
}

// Membership is the join row between an Agent and a Server.
type Membership struct {
	ServerID string
	AgentID  string
	Role     MemberRole
	JoinedAt time.Time
}

// ServerBan records a moderation or auto-ban removal of an agent from a Server.
type ServerBan struct {
	ServerID string
	AgentID  string
	Reason   string
	AutoBan  bool
	BannedAt time.Time
}

// Report is a moderation complaint against a target agent within a channel.
// Uniqueness is enforced on (ChannelID, ReporterID, TargetID).
type Report struct {
	ID          string
	ChannelID   string
	ReporterID  string
	TargetID    string
	Reason      string
	CreatedAt   time.Time
}
