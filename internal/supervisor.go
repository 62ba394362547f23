package internal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/RealRock/limiter"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/accumulator"
	"github.com/WelcomerTeam/czlib"
	"github.com/rs/zerolog"
	gotils_strconv "github.com/savsgio/gotils/strconv"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

const (
	WebsocketReadLimit = 512 << 20

	// Close code that keeps the session resumable.
	WebsocketReconnectCloseCode websocket.StatusCode = 4000

	// Non-heartbeat frames allowed per GatewayWSRateLimitWindow. Discord allows
	// 120, the rest is left for heartbeats.
	GatewayWSRateLimit       = 110
	GatewayWSRateLimitWindow = time.Minute

	InitialReconnectWait = 1 * time.Second
	MaxReconnectWait     = 60 * time.Second

	// An hour of per minute event counts.
	EventSampleCount    = 60
	EventSampleInterval = time.Minute
)

// GatewayConn is what handlers use to talk back to the gateway.
type GatewayConn interface {
	Send(ctx context.Context, op discord.GatewayOp, data interface{}) error
	Reconnect(code websocket.StatusCode)
	LastSequence() *int32
}

type SupervisorOption func(*Supervisor)

// WithResponder replaces the REST client used by guild bots.
func WithResponder(responder Responder) SupervisorOption {
	return func(s *Supervisor) {
		s.responder = responder
	}
}

// WithProducer mirrors every dispatch event to producer.
func WithProducer(producer Producer) SupervisorOption {
	return func(s *Supervisor) {
		s.producer = producer
	}
}

// WithReconnectWait sets the initial and maximum wait between failed dials.
func WithReconnectWait(initial, max time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.reconnectWait = initial
		s.maxReconnectWait = max
	}
}

// Supervisor owns the gateway connection. It reads frames, routes them to the
// handlers and reconnects when the connection is lost.
type Supervisor struct {
	Logger zerolog.Logger

	Configuration *Configuration
	Commands      []Command

	Router    *Router
	Session   *SessionHandler
	Heartbeat *HeartbeatHandler
	Guilds    *GuildDispatcher
	Mirror    *EventMirror

	Start            *atomic.Time
	RetriesRemaining *atomic.Int32

	// Gateway events received per EventSampleInterval.
	EventRate *accumulator.Accumulator

	responder Responder
	producer  Producer

	reconnectWait    time.Duration
	maxReconnectWait time.Duration

	listening *atomic.Bool
	stopped   *atomic.Bool
	sequence  *atomic.Int32

	wsConnMu   sync.RWMutex
	wsConn     *websocket.Conn
	connCancel func()

	wsRatelimit *limiter.DurationLimiter

	fatal chan error

	// Closed by Disconnect.
	stop chan void
}

// NewSupervisor validates the command table and configuration and starts the
// gateway handlers. No connection is made until Listen is called.
func NewSupervisor(logger zerolog.Logger, configuration *Configuration, commands []Command, opts ...SupervisorOption) (*Supervisor, error) {
	if err := ValidateCommands(commands); err != nil {
		return nil, err
	}

	if configuration == nil || configuration.Token == "" {
		return nil, ErrMissingToken
	}

	configuration.setDefaults()

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		Logger: logger,

		Configuration: configuration,
		Commands:      commands,

		Router: NewRouter(),

		Start:            &atomic.Time{},
		RetriesRemaining: atomic.NewInt32(configuration.ConnectRetries),

		EventRate: accumulator.NewAccumulator(EventSampleCount, EventSampleInterval),

		reconnectWait:    InitialReconnectWait,
		maxReconnectWait: MaxReconnectWait,

		listening: atomic.NewBool(false),
		stopped:   atomic.NewBool(false),
		sequence:  atomic.NewInt32(0),

		wsRatelimit: limiter.NewDurationLimiter(GatewayWSRateLimit, GatewayWSRateLimitWindow),

		fatal: make(chan error, 1),
		stop:  make(chan void),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.responder == nil {
		s.responder = NewRESTClient(logger, configuration.APIURL, configuration.Token)
	}

	fault := WithFault(s.fail)

	s.Session = NewSessionHandler(logger, s, configuration, fault)
	s.Heartbeat = NewHeartbeatHandler(logger, s, configuration.HeartbeatAckTimeout, fault)
	s.Guilds = NewGuildDispatcher(logger, s.Router, s.newBot, fault)

	s.Router.Add(s.Session)
	s.Router.Add(s.Heartbeat)
	s.Router.Add(s.Guilds)

	if s.producer != nil {
		s.Mirror = NewEventMirror(logger, s.producer, configuration.Producer.Channel, fault)
		s.Router.Add(s.Mirror)
	}

	return s, nil
}

func (s *Supervisor) newBot(guild *structs.Guild) *Bot {
	return NewBot(s.Logger, guild, s.Commands, s.responder, WithFault(s.fail))
}

// Listen connects to the gateway and processes events until ctx is cancelled,
// Disconnect is called or a fatal error occurs. Lost connections are
// reestablished without returning.
func (s *Supervisor) Listen(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrSupervisorStopped
	}

	if !s.listening.CAS(false, true) {
		return ErrAlreadyListening
	}

	s.Start.Store(time.Now().UTC())
	s.Logger.Debug().Msg("Started listening to gateway")

	sampleCtx, cancelSamples := context.WithCancel(ctx)
	defer cancelSamples()

	go s.EventRate.Run(sampleCtx)

	for {
		conn, err := s.connect(ctx)
		if err != nil {
			s.Disconnect()

			if ctx.Err() != nil || errors.Is(err, ErrSupervisorStopped) {
				return nil
			}

			s.Logger.Error().Err(err).Msg("Failed to connect to gateway")

			return err
		}

		err = s.listen(ctx, conn)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Stopped listening to gateway")
			s.Disconnect()

			return err
		}

		if ctx.Err() != nil || !s.listening.Load() {
			s.Disconnect()

			return nil
		}
	}
}

// connect dials the gateway, retrying with exponential backoff. Disconnect
// interrupts both the dial and the wait between attempts.
func (s *Supervisor) connect(ctx context.Context) (*websocket.Conn, error) {
	wait := s.reconnectWait

	s.RetriesRemaining.Store(s.Configuration.ConnectRetries)

	dialCtx, cancel := s.stopContext(ctx)
	defer cancel()

	for {
		select {
		case err := <-s.fatal:
			return nil, err
		default:
		}

		if !s.listening.Load() || s.stopping() {
			return nil, ErrSupervisorStopped
		}

		conn, err := s.dial(dialCtx)
		if err == nil {
			// Disconnect may have run while the handshake completed.
			if s.stopping() {
				s.detach(conn)
				s.closeConn(conn, websocket.StatusNormalClosure)

				return nil, ErrSupervisorStopped
			}

			return conn, nil
		}

		if s.stopping() {
			return nil, ErrSupervisorStopped
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, ErrInvalidGatewayURL) {
			return nil, err
		}

		if s.RetriesRemaining.Dec() <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}

		s.Logger.Warn().Err(err).Dur("retry", wait).Msg("Failed to connect to gateway")

		t := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			t.Stop()

			return nil, ctx.Err()
		case <-s.stop:
			t.Stop()

			return nil, ErrSupervisorStopped
		case err = <-s.fatal:
			t.Stop()

			return nil, err
		case <-t.C:
		}

		wait *= 2
		if wait > s.maxReconnectWait {
			wait = s.maxReconnectWait
		}
	}
}

// stopContext returns a child of ctx that is also cancelled by Disconnect.
func (s *Supervisor) stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// stopping returns if Disconnect has closed the stop channel.
func (s *Supervisor) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// gatewayURL returns the url to connect to, preferring the resume url when
// there is a session to resume.
func (s *Supervisor) gatewayURL() (string, error) {
	if s.Session.SessionID() != "" {
		if resumeURL := s.Session.ResumeURL(); resumeURL != "" {
			return connectionURL(resumeURL)
		}
	}

	return connectionURL(s.Configuration.GatewayURL)
}

func (s *Supervisor) dial(ctx context.Context) (*websocket.Conn, error) {
	gatewayURL, err := s.gatewayURL()
	if err != nil {
		return nil, err
	}

	s.Logger.Debug().Str("url", gatewayURL).Msg("Connecting to gateway")

	conn, _, err := websocket.Dial(ctx, gatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to websocket: %w", err)
	}

	conn.SetReadLimit(WebsocketReadLimit)

	s.wsConnMu.Lock()
	previous := s.wsConn
	s.wsConn = conn
	s.wsConnMu.Unlock()

	if previous != nil {
		s.closeConn(previous, websocket.StatusGoingAway)
	}

	return conn, nil
}

// listen reads from conn until the connection is lost or a fatal error occurs.
// A nil error means the caller should reconnect.
func (s *Supervisor) listen(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wsConnMu.Lock()
	s.connCancel = cancel
	s.wsConnMu.Unlock()

	defer func() {
		s.wsConnMu.Lock()
		s.connCancel = nil
		s.wsConnMu.Unlock()
	}()

	for {
		select {
		case err := <-s.fatal:
			return err
		default:
		}

		messageType, data, err := conn.Read(connCtx)
		if err != nil {
			s.detach(conn)

			return s.readError(ctx, err)
		}

		if messageType == websocket.MessageBinary {
			data, err = czlib.Decompress(data)
			if err != nil {
				return fmt.Errorf("%w: failed to decompress frame: %v", ErrDecode, err)
			}
		}

		s.Logger.Trace().Msg(">>> " + gotils_strconv.B2S(data))

		event, err := DecodeEvent(data)
		if err != nil {
			return err
		}

		if event == nil {
			continue
		}

		if event.Sequence != 0 {
			s.sequence.Store(event.Sequence)
		}

		gatewayEventCount.WithLabelValues(strconv.Itoa(int(event.Op)), event.Type).Inc()
		s.EventRate.Increment()

		if _, err = s.Router.Deliver(event); err != nil {
			return fmt.Errorf("failed to deliver event: %w", err)
		}
	}
}

// readError decides if a failed read should reconnect (nil) or stop listening.
func (s *Supervisor) readError(ctx context.Context, err error) error {
	select {
	case fatal := <-s.fatal:
		return fatal
	default:
	}

	if ctx.Err() != nil || !s.listening.Load() {
		return nil
	}

	code := websocket.CloseStatus(err)

	switch code {
	case discord.CloseAuthenticationFailed,
		discord.CloseInvalidShard,
		discord.CloseShardingRequired,
		discord.CloseInvalidAPIVersion,
		discord.CloseInvalidIntents,
		discord.CloseDisallowedIntents:
		s.Logger.Error().Int("code", int(code)).Msg("Gateway closed with non-recoverable code")

		return fmt.Errorf("%w: %d", ErrGatewayClosed, code)
	case discord.CloseInvalidSeq, discord.CloseSessionTimeout:
		s.Logger.Warn().Int("code", int(code)).Msg("Gateway session can not be resumed. Reidentifying")

		s.Session.reset()
		s.sequence.Store(0)
		gatewayReconnects.WithLabelValues("session").Inc()

		return nil
	}

	s.Logger.Warn().Err(err).Int("code", int(code)).Msg("Gateway connection lost. Reconnecting")
	gatewayReconnects.WithLabelValues("connection").Inc()

	return nil
}

// Send writes a single frame to the gateway.
func (s *Supervisor) Send(ctx context.Context, op discord.GatewayOp, data interface{}) error {
	s.wsConnMu.RLock()
	conn := s.wsConn
	s.wsConnMu.RUnlock()

	if conn == nil {
		return ErrNoConnection
	}

	payload, err := gatewayjson.Marshal(discord.SentPayload{Op: op, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if op != discord.GatewayOpHeartbeat {
		s.wsRatelimit.Lock()
	}

	s.Logger.Trace().Msg("<<< " + gotils_strconv.B2S(payload))

	if err = conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Reconnect closes the current connection with code so Listen opens a new one.
// It does not wait for the close handshake.
func (s *Supervisor) Reconnect(code websocket.StatusCode) {
	s.wsConnMu.Lock()
	conn := s.wsConn
	s.wsConn = nil
	s.wsConnMu.Unlock()

	if conn == nil {
		return
	}

	s.Logger.Info().Int("code", int(code)).Msg("Reconnecting to gateway")
	gatewayReconnects.WithLabelValues("requested").Inc()

	go s.closeConn(conn, code)
}

// detach forgets conn if it is still the current connection so nothing else is
// written to it.
func (s *Supervisor) detach(conn *websocket.Conn) {
	s.wsConnMu.Lock()
	if s.wsConn == conn {
		s.wsConn = nil
	}
	s.wsConnMu.Unlock()
}

// Disconnect stops listening, closes the connection and stops every handler.
// Calling it more than once has no effect.
func (s *Supervisor) Disconnect() {
	if !s.stopped.CAS(false, true) {
		return
	}

	s.listening.Store(false)

	s.Logger.Info().Msg("Disconnecting from gateway")

	s.wsConnMu.Lock()
	conn := s.wsConn
	cancel := s.connCancel
	s.wsConn = nil
	s.wsConnMu.Unlock()

	if conn != nil {
		s.closeConn(conn, websocket.StatusNormalClosure)
	}

	if cancel != nil {
		cancel()
	}

	close(s.stop)

	for _, handler := range s.Router.Handlers() {
		handler.Stop()
	}
}

// Stopped returns if Disconnect has been called.
func (s *Supervisor) Stopped() bool {
	return s.stopped.Load()
}

// Connected returns if there is an open gateway connection.
func (s *Supervisor) Connected() bool {
	s.wsConnMu.RLock()
	defer s.wsConnMu.RUnlock()

	return s.wsConn != nil
}

// LastSequence returns the sequence of the last dispatch received, or nil
// when none has been received.
func (s *Supervisor) LastSequence() *int32 {
	sequence := s.sequence.Load()
	if sequence == 0 {
		return nil
	}

	return &sequence
}

// fail stops listening because a handler could not process an event.
func (s *Supervisor) fail(name string, err error) {
	s.Logger.Error().Err(err).Str("handler", name).Msg("Handler failed")

	select {
	case s.fatal <- err:
	default:
	}

	s.wsConnMu.RLock()
	cancel := s.connCancel
	s.wsConnMu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Supervisor) closeConn(conn *websocket.Conn, code websocket.StatusCode) {
	s.Logger.Debug().Int("code", int(code)).Msg("Closing websocket connection")

	err := conn.Close(code, "")
	if err != nil && !errors.Is(err, context.Canceled) {
		s.Logger.Debug().Err(err).Msg("Encountered error closing websocket")
	}
}
