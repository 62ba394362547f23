package structs

import (
	"github.com/WelcomerTeam/Discord/discord"
)

// events.go contains the received gateway structures the bot reads. Unknown
// fields are ignored when decoding.

// GatewayVersion is the gateway and REST API version the bot speaks.
const GatewayVersion = "10"

// Dispatch event types.
const (
	EventReady         = "READY"
	EventResumed       = "RESUMED"
	EventGuildCreate   = "GUILD_CREATE"
	EventGuildUpdate   = "GUILD_UPDATE"
	EventMessageCreate = "MESSAGE_CREATE"
)

// Hello represents a hello event when connecting.
type Hello struct {
	HeartbeatInterval int32 `json:"heartbeat_interval"`
}

// Ready represents when the client has completed the initial handshake.
type Ready struct {
	User             *discord.User `json:"user"`
	SessionID        string        `json:"session_id"`
	ResumeGatewayURL string        `json:"resume_gateway_url"`
	Version          int32         `json:"v"`
}
