package internal

import (
	"golang.org/x/xerrors"
)

// ErrNoCommands is returned when a supervisor is created without any commands.
var ErrNoCommands = xerrors.New("No commands have been registered")

// ErrMissingToken is returned when no bot token has been configured.
var ErrMissingToken = xerrors.New("Bot token was not provided")

var (
	ErrDuplicateCommand   = xerrors.New("Command name is registered more than once")
	ErrInvalidCommand     = xerrors.New("Command is missing a name or handler")
	ErrActorStopped       = xerrors.New("Actor has been stopped")
	ErrMailboxTimeout     = xerrors.New("Timed out waiting for mailbox space")
	ErrHandlerPanic       = xerrors.New("Handler panicked")
	ErrNoConnection       = xerrors.New("No gateway connection")
	ErrConnectFailed      = xerrors.New("Ran out of retries connecting to gateway")
	ErrGatewayClosed      = xerrors.New("Gateway closed the connection with a non-recoverable code")
	ErrDecode             = xerrors.New("Failed to decode gateway event")
	ErrAlreadyListening   = xerrors.New("Supervisor is already listening")
	ErrSupervisorStopped  = xerrors.New("Supervisor has been disconnected")
	ErrUnknownProducer    = xerrors.New("No producer client with this name exists")
	ErrProducerArgument   = xerrors.New("Producer configuration is missing an argument")
	ErrInvalidGatewayURL  = xerrors.New("Gateway URL is not valid")
	ErrInvalidAPIURL      = xerrors.New("API URL is not valid")
	ErrReadConfiguration  = xerrors.New("Failed to read configuration")
	ErrLoadConfiguration  = xerrors.New("Failed to load configuration")
	ErrConfigurationRange = xerrors.New("Configuration value is out of range")
)
