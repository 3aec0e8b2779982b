// Package collab defines the narrow interfaces the core consumes for
// everything the specification treats as out of scope: authentication,
// chart/record lookup, ban lists, configuration, plugin-style command
// filtering, and event delivery to outside systems. The core never imports a
// concrete implementation directly — it is handed a Collaborators bundle at
// construction time, generalized from the teacher's pattern of injecting
// state.Manager/PermissionCompiler/pipeline.ActionFunc dependencies into its
// router rather than hardcoding them.
package collab

import (
	"context"

	"github.com/rhythmmp/server/internal/domain"
	"github.com/rhythmmp/server/internal/wire"
)

// Identity is what the auth collaborator resolves a token to.
type Identity struct {
	UserID   int32
	Name     string
	Language string
}

// AuthProvider resolves a client-supplied Authenticate token to an Identity.
type AuthProvider interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// ChartInfo is what the chart lookup collaborator resolves a chart id to.
type ChartInfo struct {
	Name string
}

// ChartLookup resolves a chart id to its display metadata.
type ChartLookup interface {
	LookupChart(ctx context.Context, chartID int32) (ChartInfo, error)
}

// RecordLookup resolves a played chart into the scored Record the room
// stores, e.g. by asking an external scoring service to validate and enrich
// the client-reported result.
type RecordLookup interface {
	LookupRecord(ctx context.Context, user *domain.User, chartID int32) (domain.Record, error)
}

// BanSet reports whether a user id is globally banned.
type BanSet interface {
	IsBanned(userID int32) bool
}

// RoomBanSet reports whether a user id is banned from a specific room.
type RoomBanSet interface {
	IsBannedFromRoom(room wire.RoomID, userID int32) bool
}

// Config exposes the handful of server-wide toggles the command processor
// consults directly (spec §4.4's room_creation_enabled gate, plus the monitor
// allow-list session.rs reads from ServerConfig).
type Config interface {
	RoomCreationEnabled() bool
	CanMonitor(userID int32) bool
}

// CommandFilter is the plugin hook point: given a decoded ClientCommand, it
// may veto it (the caller substitutes a no-op Ping per spec §4.3) before
// dispatch ever sees it.
type CommandFilter interface {
	Allow(ctx context.Context, user *domain.User, cmd wire.ClientCommand) bool
}

// EventSink receives fire-and-forget notifications of room membership
// changes, generalized from the reference implementation's admin dashboard
// push feed.
type EventSink = domain.EventSink

// Collaborators bundles every external dependency the session/dispatch layer
// needs, so constructing a Session only requires one injected value.
type Collaborators struct {
	Auth     AuthProvider
	Charts   ChartLookup
	Records  RecordLookup
	Bans     BanSet
	RoomBans RoomBanSet
	Config   Config
	Filter   CommandFilter
	Events   EventSink
}
