package internal

import (
	"context"
	"fmt"
	"runtime"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

const (
	// The bot runs as a single shard.
	GatewayLargeThreshold = 250
	GatewayShardCount     = 1
)

// SessionState is the handshake state of the gateway session.
type SessionState int32

const (
	SessionStateNone SessionState = iota
	SessionStateIdentifying
	SessionStateReady
	SessionStateResuming
)

var sessionStateNames = map[SessionState]string{
	SessionStateNone:        "NO_SESSION",
	SessionStateIdentifying: "IDENTIFYING",
	SessionStateReady:       "READY",
	SessionStateResuming:    "RESUMING",
}

func (s SessionState) String() string {
	return sessionStateNames[s]
}

// SessionHandler identifies or resumes after every hello and reacts to the
// gateway invalidating the session.
type SessionHandler struct {
	*Actor

	conn          GatewayConn
	configuration *Configuration

	state     *atomic.Int32
	sessionID *atomic.String
	resumeURL *atomic.String
}

func NewSessionHandler(logger zerolog.Logger, conn GatewayConn, configuration *Configuration, opts ...ActorOption) *SessionHandler {
	h := &SessionHandler{
		conn:          conn,
		configuration: configuration,

		state:     atomic.NewInt32(int32(SessionStateNone)),
		sessionID: &atomic.String{},
		resumeURL: &atomic.String{},
	}

	h.Actor = NewActor(logger, "session", h.receive, opts...)

	return h
}

func (h *SessionHandler) Subscription() Subscription {
	return Subscription{
		Events: map[discord.GatewayOp][]string{
			discord.GatewayOpHello:          {AnyType},
			discord.GatewayOpDispatch:       {structs.EventReady, structs.EventResumed},
			discord.GatewayOpInvalidSession: {AnyType},
			discord.GatewayOpReconnect:      {AnyType},
		},
	}
}

// State returns the current handshake state.
func (h *SessionHandler) State() SessionState {
	return SessionState(h.state.Load())
}

// SessionID returns the id of the current session or "" when there is none.
func (h *SessionHandler) SessionID() string {
	return h.sessionID.Load()
}

// ResumeURL returns the gateway url to reconnect to when resuming.
func (h *SessionHandler) ResumeURL() string {
	return h.resumeURL.Load()
}

func (h *SessionHandler) setState(state SessionState) {
	previous := SessionState(h.state.Swap(int32(state)))
	if previous != state {
		h.Logger.Debug().Str("from", previous.String()).Str("to", state.String()).Msg("Session state changed")
	}
}

func (h *SessionHandler) receive(ctx context.Context, message interface{}) error {
	event, ok := message.(*Event)
	if !ok {
		return nil
	}

	switch event.Op {
	case discord.GatewayOpHello:
		return h.onHello(ctx)
	case discord.GatewayOpDispatch:
		return h.onDispatch(event)
	case discord.GatewayOpInvalidSession:
		h.onInvalidSession(event)
	case discord.GatewayOpReconnect:
		h.Logger.Info().Msg("Gateway requested reconnect")

		if h.SessionID() != "" {
			h.setState(SessionStateResuming)
		}

		h.conn.Reconnect(WebsocketReconnectCloseCode)
	}

	return nil
}

func (h *SessionHandler) onHello(ctx context.Context) error {
	sessionID := h.SessionID()

	if sessionID == "" {
		h.setState(SessionStateIdentifying)

		return h.identify(ctx)
	}

	h.setState(SessionStateResuming)

	return h.resume(ctx, sessionID)
}

// identify sends the identify packet to discord.
func (h *SessionHandler) identify(ctx context.Context) error {
	h.Logger.Debug().Msg("Sending identify")

	err := h.conn.Send(ctx, discord.GatewayOpIdentify, discord.Identify{
		Token: h.configuration.Token,
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: h.configuration.Identify.Browser,
			Device:  h.configuration.Identify.Device,
		},
		LargeThreshold: GatewayLargeThreshold,
		Shard:          [2]int32{0, GatewayShardCount},
		Intents:        h.configuration.Intents,
	})
	if err != nil {
		h.Logger.Warn().Err(err).Msg("Failed to send identify")
	}

	return nil
}

// resume sends the resume packet to discord.
func (h *SessionHandler) resume(ctx context.Context, sessionID string) error {
	var sequence int32
	if last := h.conn.LastSequence(); last != nil {
		sequence = *last
	}

	h.Logger.Debug().Str("session_id", sessionID).Int32("sequence", sequence).Msg("Sending resume")

	err := h.conn.Send(ctx, discord.GatewayOpResume, discord.Resume{
		Token:     h.configuration.Token,
		SessionID: sessionID,
		Sequence:  sequence,
	})
	if err != nil {
		h.Logger.Warn().Err(err).Msg("Failed to send resume")
	}

	return nil
}

func (h *SessionHandler) onDispatch(event *Event) error {
	switch event.Type {
	case structs.EventReady:
		var ready structs.Ready

		if err := event.decodeContent(&ready); err != nil {
			return fmt.Errorf("ready: %w", err)
		}

		h.sessionID.Store(ready.SessionID)
		h.resumeURL.Store(ready.ResumeGatewayURL)
		h.setState(SessionStateReady)

		logger := h.Logger.Info().Str("session_id", ready.SessionID)
		if ready.User != nil {
			logger = logger.Str("user", ready.User.Username).Int64("user_id", int64(ready.User.ID))
		}

		logger.Msg("Received READY")
	case structs.EventResumed:
		h.setState(SessionStateReady)
		h.Logger.Info().Msg("Session resumed")
	}

	return nil
}

func (h *SessionHandler) onInvalidSession(event *Event) {
	resumable := gatewayjson.GetBool(event.Data)

	h.Logger.Warn().Bool("resumable", resumable).Msg("Received invalid session")

	if resumable {
		h.setState(SessionStateResuming)
		h.conn.Reconnect(WebsocketReconnectCloseCode)

		return
	}

	h.reset()
	h.conn.Reconnect(websocket.StatusNormalClosure)
}

// reset forgets the session so the next hello identifies.
func (h *SessionHandler) reset() {
	h.sessionID.Store("")
	h.resumeURL.Store("")
	h.setState(SessionStateNone)
}
