package internal

import (
	"bytes"
	"fmt"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
)

var null = []byte("null")

// Event is a single decoded gateway frame. It is never modified after decoding
// as the same pointer is delivered to every matching handler. Sequence is 0
// for frames without one.
type Event struct {
	Data     gatewayjson.RawMessage
	Sequence int32
	Type     string
	GuildID  discord.Snowflake
	Op       discord.GatewayOp
}

// DecodeEvent decodes a gateway frame. Empty and null frames return a nil event
// and no error.
func DecodeEvent(frame []byte) (*Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 || bytes.Equal(frame, null) {
		return nil, nil
	}

	var payload discord.GatewayPayload

	if err := gatewayjson.Unmarshal(frame, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	event := &Event{
		Op:       payload.Op,
		Type:     payload.Type,
		Data:     payload.Data,
		Sequence: payload.Sequence,
	}

	if guildID := gatewayjson.GetString(payload.Data, "guild_id"); guildID != "" {
		id, err := structs.ParseSnowflake(guildID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}

		event.GuildID = id
	}

	return event, nil
}

// decodeContent decodes the event payload into out.
func (e *Event) decodeContent(out interface{}) error {
	if err := gatewayjson.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("%w: op %d type %q: %v", ErrDecode, e.Op, e.Type, err)
	}

	return nil
}
