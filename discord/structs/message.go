package structs

import (
	"fmt"
	"strconv"

	"github.com/WelcomerTeam/Discord/discord"
)

// Guild represents the parts of a guild received in GUILD_CREATE and GUILD_UPDATE.
type Guild struct {
	Name        string            `json:"name"`
	ID          discord.Snowflake `json:"id"`
	OwnerID     discord.Snowflake `json:"owner_id"`
	MemberCount int32             `json:"member_count"`
	Unavailable bool              `json:"unavailable"`
}

// Message represents a message received in MESSAGE_CREATE.
type Message struct {
	Author    *discord.User     `json:"author"`
	Content   string            `json:"content"`
	ID        discord.Snowflake `json:"id"`
	ChannelID discord.Snowflake `json:"channel_id"`
	GuildID   discord.Snowflake `json:"guild_id"`
}

// MessageParams is the body of a create message request.
type MessageParams struct {
	Content string `json:"content"`
}

// Mention returns the string used to ping the user in a message.
func Mention(user *discord.User) string {
	return "<@!" + user.ID.String() + ">"
}

// ParseSnowflake parses a decimal snowflake. An empty string yields 0.
func ParseSnowflake(s string) (discord.Snowflake, error) {
	if s == "" {
		return 0, nil
	}

	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse snowflake: %w", err)
	}

	return discord.Snowflake(i), nil
}
