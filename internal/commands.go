package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
)

// CommandHandler runs a command. The context is cancelled when the bot stops.
type CommandHandler func(ctx context.Context, bot *Bot, message *structs.Message) error

// Command is a text command triggered by messages starting with Name.
type Command struct {
	Handler CommandHandler

	Name string

	// Time the command stays disabled in a guild after being invoked.
	Cooldown time.Duration
}

// ValidateCommands checks a command table before it is used by a supervisor.
func ValidateCommands(commands []Command) error {
	if len(commands) == 0 {
		return ErrNoCommands
	}

	seen := make(map[string]void, len(commands))

	for i, command := range commands {
		if command.Name == "" || command.Handler == nil {
			return fmt.Errorf("%w: command %d", ErrInvalidCommand, i)
		}

		if _, ok := seen[command.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, command.Name)
		}

		seen[command.Name] = void{}
	}

	return nil
}

// MatchCommand returns the first command, in table order, that content starts
// with and that is not cooling down. throttled reports if a command matched
// but every match was cooling down.
func MatchCommand(commands []Command, content string, coolingDown func(name string) bool) (command *Command, throttled bool) {
	for i := range commands {
		if !strings.HasPrefix(content, commands[i].Name) {
			continue
		}

		if coolingDown != nil && coolingDown(commands[i].Name) {
			throttled = true

			continue
		}

		return &commands[i], false
	}

	return nil, throttled
}
