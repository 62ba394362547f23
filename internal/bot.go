package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/counterstore"
	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/lockset"
	"github.com/rs/zerolog"
)

// Responder posts messages to a channel.
type Responder interface {
	CreateMessage(ctx context.Context, channelID discord.Snowflake, params structs.MessageParams) error
}

// guildUpdate carries a new guild snapshot to a bot.
type guildUpdate struct {
	guild *structs.Guild
}

// Bot handles commands for a single guild.
type Bot struct {
	*Actor

	GuildID discord.Snowflake

	// Counters shared by every command running in this guild.
	Store *counterstore.Store

	commands  []Command
	cooldowns *lockset.LockSet[string]
	responder Responder

	guildMu sync.RWMutex
	guild   *structs.Guild

	tasksCtx    context.Context
	cancelTasks func()
	tasks       sync.WaitGroup
}

func NewBot(logger zerolog.Logger, guild *structs.Guild, commands []Command, responder Responder, opts ...ActorOption) *Bot {
	b := &Bot{
		GuildID: guild.ID,

		Store: counterstore.New(nil),

		commands:  commands,
		cooldowns: lockset.New[string](),
		responder: responder,

		guild: guild,
	}

	b.tasksCtx, b.cancelTasks = context.WithCancel(context.Background())

	logger = logger.With().Int64("guild_id", int64(guild.ID)).Logger()
	b.Actor = NewActor(logger, "bot:"+guild.ID.String(), b.receive, opts...)

	return b
}

func (b *Bot) Subscription() Subscription {
	return Subscription{
		Events: map[discord.GatewayOp][]string{
			discord.GatewayOpDispatch: {structs.EventMessageCreate},
		},
		GuildID: b.GuildID,
	}
}

// Guild returns the latest guild snapshot received.
func (b *Bot) Guild() *structs.Guild {
	b.guildMu.RLock()
	defer b.guildMu.RUnlock()

	return b.guild
}

// CoolingDown returns if the command is disabled in this guild.
func (b *Bot) CoolingDown(name string) bool {
	return b.cooldowns.Contains(name)
}

// Respond sends content to a channel.
func (b *Bot) Respond(ctx context.Context, channelID discord.Snowflake, content string) error {
	err := b.responder.CreateMessage(ctx, channelID, structs.MessageParams{Content: content})
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	return nil
}

// Stop stops the actor and cancels every running command.
func (b *Bot) Stop() {
	b.Actor.Stop()
	b.cancelTasks()
}

// Wait blocks until all running commands have returned.
func (b *Bot) Wait() {
	b.tasks.Wait()
}

func (b *Bot) receive(_ context.Context, message interface{}) error {
	switch message := message.(type) {
	case *Event:
		if message.Type != structs.EventMessageCreate {
			return nil
		}

		var msg structs.Message

		if err := message.decodeContent(&msg); err != nil {
			return fmt.Errorf("message create: %w", err)
		}

		b.onMessage(&msg)
	case guildUpdate:
		b.guildMu.Lock()
		b.guild = message.guild
		b.guildMu.Unlock()

		b.Logger.Debug().Str("name", message.guild.Name).Msg("Guild updated")
	}

	return nil
}

func (b *Bot) onMessage(message *structs.Message) {
	if message.Author == nil || message.Author.Bot {
		return
	}

	command, throttled := MatchCommand(b.commands, message.Content, b.CoolingDown)
	if command == nil {
		if throttled {
			commandsThrottled.Inc()
		}

		b.Logger.Debug().Int64("message_id", int64(message.ID)).Bool("throttled", throttled).Msg("No command matched message")

		return
	}

	if command.Cooldown > 0 {
		name := command.Name

		b.cooldowns.Add(name)
		time.AfterFunc(command.Cooldown, func() {
			b.cooldowns.Remove(name)
		})
	}

	commandsInvoked.WithLabelValues(command.Name).Inc()

	b.tasks.Add(1)

	go b.runCommand(command, message)
}

// runCommand runs a command on its own goroutine so a slow command does not hold
// up the mailbox.
func (b *Bot) runCommand(command *Command, message *structs.Message) {
	defer b.tasks.Done()

	logger := b.Logger.With().Str("command", command.Name).Int64("user_id", int64(message.Author.ID)).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("recovered", r).Msg("Recovered panic in command")
		}
	}()

	start := time.Now()

	if err := command.Handler(b.tasksCtx, b, message); err != nil {
		logger.Warn().Err(err).Msg("Command failed")

		return
	}

	logger.Debug().Dur("took", time.Since(start)).Msg("Command finished")
}
