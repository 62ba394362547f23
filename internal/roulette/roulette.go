// Package roulette implements the russian roulette commands played in every
// guild the bot is in.
package roulette

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/internal"
)

const (
	RouletteCooldown = time.Hour

	// The revolver has BulletsCount+1 outcomes and one of them loses.
	BulletsCount = 6

	WinPointsReward    = 1
	DeathPointsPenalty = 3

	TriggerDelay = 3 * time.Second
)

type Option func(*Game)

// WithChamber replaces the random spin. The player dies when it returns 0.
func WithChamber(chamber func() int) Option {
	return func(g *Game) {
		g.chamber = chamber
	}
}

// WithTriggerDelay sets the pause between placing the muzzle and the result.
func WithTriggerDelay(delay time.Duration) Option {
	return func(g *Game) {
		g.delay = delay
	}
}

type Game struct {
	chamber func() int
	delay   time.Duration
}

func New(opts ...Option) *Game {
	g := &Game{
		chamber: func() int { return rand.Intn(BulletsCount + 1) },
		delay:   TriggerDelay,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Commands returns the command table, in matching order.
func (g *Game) Commands() []internal.Command {
	return []internal.Command{
		{Name: "!roulette", Cooldown: RouletteCooldown, Handler: g.handleRoulette},
		{Name: "!points", Handler: g.handlePoints},
	}
}

// PointsKey is the counter holding a player's points.
func PointsKey(userID discord.Snowflake) string {
	return "roulette." + userID.String()
}

func (g *Game) handleRoulette(ctx context.Context, bot *internal.Bot, message *structs.Message) error {
	mention := structs.Mention(message.Author)

	err := bot.Respond(ctx, message.ChannelID, fmt.Sprintf("😣🔫 %s places the muzzle against their head...", mention))
	if err != nil {
		return err
	}

	t := time.NewTimer(g.delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	key := PointsKey(message.Author.ID)

	if g.chamber() == 0 {
		bot.Store.Decrement(key, DeathPointsPenalty)

		return bot.Respond(ctx, message.ChannelID, fmt.Sprintf("☠ %s dies and loses %d!", mention, DeathPointsPenalty))
	}

	bot.Store.Increment(key, WinPointsReward)

	return bot.Respond(ctx, message.ChannelID, fmt.Sprintf("🥵 %s lives and wins **%d points**!", mention, WinPointsReward))
}

func (g *Game) handlePoints(ctx context.Context, bot *internal.Bot, message *structs.Message) error {
	points := bot.Store.GetOrDefault(PointsKey(message.Author.ID), 0)

	return bot.Respond(ctx, message.ChannelID, fmt.Sprintf("%s, you have **%d points**!", structs.Mention(message.Author), points))
}
