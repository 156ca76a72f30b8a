package domain

import "time"

// ChannelKind distinguishes text/announcement channels that belong to a
// Server from DM channels bound to a Friendship.
type ChannelKind string

const (
	ChannelText         ChannelKind = "text"
	ChannelAnnouncement ChannelKind = "announcement"
	ChannelDM           ChannelKind = "dm"
	ChannelChallenge    ChannelKind = "challenge"
)

// Channel is the unit of subscription and fan-out. A DM channel has no
// ServerID and is created atomically with its Friendship row.
type Channel struct {
	ID           string
	Kind         ChannelKind
	ServerID     string // empty for DM channels
	Name         string // empty for DM channels
	Instructions string // optional free-text behavioral instructions
	CreatedAt    time.Time
}

// IsDM reports whether this channel is bound to a Friendship rather than a Server.
func (c Channel) IsDM() bool {
	return c.Kind == ChannelDM
}
