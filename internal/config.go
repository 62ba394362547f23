package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGatewayURL      = "wss://gateway.discord.gg"
	DefaultAPIURL          = "https://discord.com"
	DefaultIdentifyBrowser = "Sandwich-Roulette"
	DefaultIdentifyDevice  = "Sandwich-Roulette"
	DefaultConnectRetries  = 10
	DefaultHTTPHost        = "127.0.0.1:8080"

	DefaultIntents = discord.IntentGuilds | discord.IntentGuildMessages | discord.IntentMessageContent
)

// Configuration is loaded from an optional yaml file and then overridden by
// environment variables.
type Configuration struct {
	Token string `json:"-" yaml:"token" env:"BOT_TOKEN"`

	GatewayURL string `json:"gateway_url" yaml:"gateway_url" env:"GATEWAY_URL"`
	APIURL     string `json:"api_url" yaml:"api_url" env:"API_URL"`

	Intents int32 `json:"intents" yaml:"intents" env:"GATEWAY_INTENTS"`

	Identify struct {
		Browser string `json:"browser" yaml:"browser" env:"IDENTIFY_BROWSER"`
		Device  string `json:"device" yaml:"device" env:"IDENTIFY_DEVICE"`
	} `json:"identify" yaml:"identify"`

	// Time to wait for a heartbeat ack before reconnecting. Zero uses the
	// heartbeat interval sent in hello.
	HeartbeatAckTimeout time.Duration `json:"heartbeat_ack_timeout" yaml:"heartbeat_ack_timeout" env:"HEARTBEAT_ACK_TIMEOUT"`

	// Consecutive failed dials before giving up.
	ConnectRetries int32 `json:"connect_retries" yaml:"connect_retries" env:"CONNECT_RETRIES"`

	HTTP struct {
		Host    string `json:"host" yaml:"host" env:"HTTP_HOST"`
		Enabled bool   `json:"enabled" yaml:"enabled" env:"HTTP_ENABLED"`
	} `json:"http" yaml:"http"`

	Producer struct {
		Configuration map[string]interface{} `json:"-" yaml:"configuration"`
		Type          string                 `json:"type" yaml:"type" env:"PRODUCER_TYPE"`
		Channel       string                 `json:"channel" yaml:"channel" env:"PRODUCER_CHANNEL"`
	} `json:"producer" yaml:"producer"`
}

// LoadConfiguration reads the yaml file at path, if any, then applies the
// environment and defaults.
func LoadConfiguration(path string) (*Configuration, error) {
	configuration := &Configuration{}

	if path != "" {
		file, err := os.ReadFile(path)

		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrReadConfiguration, err)
		default:
			if err = yaml.Unmarshal(file, configuration); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrLoadConfiguration, err)
			}
		}
	}

	if err := env.Parse(configuration); err != nil {
		return nil, fmt.Errorf("%w: parse env: %v", ErrLoadConfiguration, err)
	}

	configuration.setDefaults()

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return configuration, nil
}

func (c *Configuration) setDefaults() {
	if c.GatewayURL == "" {
		c.GatewayURL = DefaultGatewayURL
	}

	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}

	if c.Intents == 0 {
		c.Intents = int32(DefaultIntents)
	}

	if c.Identify.Browser == "" {
		c.Identify.Browser = DefaultIdentifyBrowser
	}

	if c.Identify.Device == "" {
		c.Identify.Device = DefaultIdentifyDevice
	}

	if c.ConnectRetries == 0 {
		c.ConnectRetries = DefaultConnectRetries
	}

	if c.HTTP.Host == "" {
		c.HTTP.Host = DefaultHTTPHost
	}
}

// Validate checks the configuration can be used to start a supervisor.
func (c *Configuration) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}

	gatewayURL, err := url.Parse(c.GatewayURL)
	if err != nil || (gatewayURL.Scheme != "ws" && gatewayURL.Scheme != "wss") {
		return fmt.Errorf("%w: %s", ErrInvalidGatewayURL, c.GatewayURL)
	}

	apiURL, err := url.Parse(c.APIURL)
	if err != nil || (apiURL.Scheme != "http" && apiURL.Scheme != "https") {
		return fmt.Errorf("%w: %s", ErrInvalidAPIURL, c.APIURL)
	}

	if c.ConnectRetries < 0 {
		return fmt.Errorf("%w: connect_retries %d", ErrConfigurationRange, c.ConnectRetries)
	}

	if c.HeartbeatAckTimeout < 0 {
		return fmt.Errorf("%w: heartbeat_ack_timeout %s", ErrConfigurationRange, c.HeartbeatAckTimeout)
	}

	return nil
}

// connectionURL returns base with the gateway version and encoding query.
func connectionURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidGatewayURL, err)
	}

	query := u.Query()
	query.Set("v", structs.GatewayVersion)
	query.Set("encoding", "json")
	u.RawQuery = query.Encode()

	return u.String(), nil
}
