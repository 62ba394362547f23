package internal

import (
	"testing"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventEmptyFrames(t *testing.T) {
	t.Parallel()

	for _, frame := range []string{"", "  ", "null"} {
		event, err := DecodeEvent([]byte(frame))
		assert.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestDecodeEventDispatch(t *testing.T) {
	t.Parallel()

	event := mustDecode(t, `{"op":0,"t":"MESSAGE_CREATE","s":12,"d":{"guild_id":"42","content":"!points"}}`)

	assert.Equal(t, discord.GatewayOpDispatch, event.Op)
	assert.Equal(t, structs.EventMessageCreate, event.Type)
	assert.Equal(t, int32(12), event.Sequence)
	assert.Equal(t, discord.Snowflake(42), event.GuildID)
}

func TestDecodeEventWithoutTypeOrSequence(t *testing.T) {
	t.Parallel()

	event := mustDecode(t, `{"op":10,"t":null,"s":null,"d":{"heartbeat_interval":41250}}`)

	assert.Equal(t, discord.GatewayOpHello, event.Op)
	assert.Equal(t, AnyType, event.Type)
	assert.Zero(t, event.Sequence)
	assert.Zero(t, event.GuildID)

	var hello structs.Hello
	require.NoError(t, event.decodeContent(&hello))
	assert.Equal(t, int32(41250), hello.HeartbeatInterval)

	// Invalid session carries a bare boolean.
	event = mustDecode(t, `{"op":9,"d":false}`)
	assert.Zero(t, event.GuildID)
}

func TestDecodeEventInvalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeEvent([]byte(`{"op":`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeEvent([]byte(`{"op":0,"d":{"guild_id":"not a snowflake"}}`))
	assert.ErrorIs(t, err, ErrDecode)
}
