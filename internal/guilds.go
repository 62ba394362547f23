package internal

import (
	"context"
	"fmt"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/syncmap"
	"github.com/rs/zerolog"
)

// BotFactory creates the bot for a guild seen for the first time.
type BotFactory func(guild *structs.Guild) *Bot

// GuildDispatcher creates one Bot per guild and registers it with the router.
type GuildDispatcher struct {
	*Actor

	router *Router
	newBot BotFactory

	Bots syncmap.Map[discord.Snowflake, *Bot]
}

func NewGuildDispatcher(logger zerolog.Logger, router *Router, newBot BotFactory, opts ...ActorOption) *GuildDispatcher {
	d := &GuildDispatcher{
		router: router,
		newBot: newBot,
	}

	d.Actor = NewActor(logger, "guilds", d.receive, opts...)

	return d
}

func (d *GuildDispatcher) Subscription() Subscription {
	return Subscription{
		Events: map[discord.GatewayOp][]string{
			discord.GatewayOpDispatch: {structs.EventGuildCreate, structs.EventGuildUpdate},
		},
	}
}

// Bot returns the bot created for a guild.
func (d *GuildDispatcher) Bot(guildID discord.Snowflake) (*Bot, bool) {
	return d.Bots.Load(guildID)
}

// StopBots stops every bot created so far.
func (d *GuildDispatcher) StopBots() {
	d.Bots.Range(func(_ discord.Snowflake, bot *Bot) bool {
		bot.Stop()

		return true
	})
}

func (d *GuildDispatcher) receive(_ context.Context, message interface{}) error {
	event, ok := message.(*Event)
	if !ok {
		return nil
	}

	guild := &structs.Guild{}

	if err := event.decodeContent(guild); err != nil {
		return fmt.Errorf("%s: %w", event.Type, err)
	}

	if guild.ID == 0 {
		guild.ID = event.GuildID
	}

	if guild.ID == 0 {
		d.Logger.Warn().Str("type", event.Type).Msg("Received guild event without an id")

		return nil
	}

	switch event.Type {
	case structs.EventGuildCreate:
		d.onGuildCreate(guild)
	case structs.EventGuildUpdate:
		if bot, ok := d.Bots.Load(guild.ID); ok {
			if err := bot.Post(guildUpdate{guild: guild}); err != nil {
				d.Logger.Debug().Err(err).Int64("guild_id", int64(guild.ID)).Msg("Failed to forward guild update")
			}
		}
	}

	return nil
}

func (d *GuildDispatcher) onGuildCreate(guild *structs.Guild) {
	bot, loaded := d.Bots.LoadOrCreate(guild.ID, func() *Bot {
		return d.newBot(guild)
	})
	if loaded {
		return
	}

	d.router.Add(bot)
	guildBots.Set(float64(d.Bots.Count()))

	d.Logger.Info().
		Int64("guild_id", int64(guild.ID)).
		Str("name", guild.Name).
		Msg("Created bot for guild")
}
