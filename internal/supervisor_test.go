package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// fakeGateway accepts websocket connections and hands them to the test.
type fakeGateway struct {
	server  *httptest.Server
	conns   chan *websocket.Conn
	release chan void
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	gw := &fakeGateway{
		conns:   make(chan *websocket.Conn, 4),
		release: make(chan void),
	}

	gw.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != structs.GatewayVersion || r.URL.Query().Get("encoding") != "json" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		gw.conns <- conn

		<-gw.release
		conn.CloseNow()
	}))

	t.Cleanup(gw.server.Close)
	t.Cleanup(func() { close(gw.release) })

	return gw
}

func (gw *fakeGateway) URL() string {
	return "ws" + strings.TrimPrefix(gw.server.URL, "http")
}

func (gw *fakeGateway) accept(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-gw.conns:
		return conn
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the supervisor to connect")
	}

	return nil
}

type receivedFrame struct {
	Data gatewayjson.RawMessage `json:"d"`
	Op   discord.GatewayOp      `json:"op"`
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

// readOp reads frames until one with op arrives. Heartbeats read on the way are
// acknowledged.
func readOp(t *testing.T, conn *websocket.Conn, op discord.GatewayOp) receivedFrame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var frame receivedFrame

		require.NoError(t, gatewayjson.Unmarshal(data, &frame))

		if frame.Op == op {
			return frame
		}

		if frame.Op == discord.GatewayOpHeartbeat {
			write(t, conn, `{"op":11}`)
		}
	}
}

// drain keeps reading conn so close frames from the supervisor are answered.
func drain(conn *websocket.Conn) {
	go func() {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}()
}

func newTestSupervisor(t *testing.T, gatewayURL string, responder Responder, commands ...Command) *Supervisor {
	t.Helper()

	if len(commands) == 0 {
		commands = []Command{{Name: "!ping", Handler: func(ctx context.Context, b *Bot, message *structs.Message) error {
			return b.Respond(ctx, message.ChannelID, "pong")
		}}}
	}

	configuration := &Configuration{
		Token:               "token",
		GatewayURL:          gatewayURL,
		HeartbeatAckTimeout: time.Minute,
		ConnectRetries:      2,
	}

	s, err := NewSupervisor(zerolog.Nop(), configuration, commands,
		WithResponder(responder),
		WithReconnectWait(5*time.Millisecond, 20*time.Millisecond),
	)
	require.NoError(t, err)

	t.Cleanup(s.Disconnect)

	return s
}

func listen(ctx context.Context, s *Supervisor) <-chan error {
	errs := make(chan error, 1)

	go func() {
		errs <- s.Listen(ctx)
	}()

	return errs
}

func waitListen(t *testing.T, errs <-chan error) error {
	t.Helper()

	select {
	case err := <-errs:
		return err
	case <-time.After(2 * testTimeout):
		t.Fatal("Listen did not return")
	}

	return nil
}

func TestSupervisorIdentifyAndCommand(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	responder := &fakeResponder{}
	s := newTestSupervisor(t, gw.URL(), responder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := listen(ctx, s)
	conn := gw.accept(t)

	write(t, conn, `{"op":10,"d":{"heartbeat_interval":100}}`)

	frame := readOp(t, conn, discord.GatewayOpIdentify)

	var identify discord.Identify

	require.NoError(t, gatewayjson.Unmarshal(frame.Data, &identify))
	assert.Equal(t, "token", identify.Token)
	assert.Equal(t, int32(DefaultIntents), identify.Intents)
	assert.Equal(t, DefaultIdentifyBrowser, identify.Properties.Browser)

	write(t, conn, `{"op":0,"t":"READY","s":1,"d":{"v":10,"session_id":"abc","resume_gateway_url":"`+gw.URL()+`"}}`)

	// Heartbeats carry the last sequence once READY has been read.
	for {
		frame = readOp(t, conn, discord.GatewayOpHeartbeat)
		if string(frame.Data) == "1" {
			break
		}
	}

	write(t, conn, `{"op":11}`)

	require.Eventually(t, func() bool {
		return s.Session.State() == SessionStateReady
	}, testTimeout, time.Millisecond)
	assert.Equal(t, "abc", s.Session.SessionID())

	write(t, conn, `{"op":0,"t":"GUILD_CREATE","s":2,"d":{"id":"42","name":"guild"}}`)

	require.Eventually(t, func() bool {
		return s.Guilds.Bots.Count() == 1
	}, testTimeout, time.Millisecond)

	write(t, conn, `{"op":0,"t":"MESSAGE_CREATE","s":3,"d":{"id":"9","guild_id":"42","channel_id":"5","content":"!ping","author":{"id":"7","username":"player"}}}`)

	require.Eventually(t, func() bool {
		return len(responder.Messages()) == 1
	}, testTimeout, time.Millisecond)
	assert.Equal(t, []string{"pong"}, responder.Messages())

	sequence := s.LastSequence()
	require.NotNil(t, sequence)
	assert.Equal(t, int32(3), *sequence)
	assert.Equal(t, 1, s.Guilds.Bots.Count())
	assert.True(t, s.Connected())
	assert.GreaterOrEqual(t, s.EventRate.Pending(), int64(4))

	cancel()

	assert.NoError(t, waitListen(t, errs))
	assert.True(t, s.Stopped())
}

func TestSupervisorResumesAfterClose(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := listen(ctx, s)
	conn := gw.accept(t)

	write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)
	readOp(t, conn, discord.GatewayOpIdentify)
	write(t, conn, `{"op":0,"t":"READY","s":5,"d":{"session_id":"abc","resume_gateway_url":"`+gw.URL()+`"}}`)

	require.Eventually(t, func() bool {
		return s.Session.State() == SessionStateReady
	}, testTimeout, time.Millisecond)

	_ = conn.Close(websocket.StatusCode(discord.CloseUnknownError), "reconnect")

	conn = gw.accept(t)

	write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)

	frame := readOp(t, conn, discord.GatewayOpResume)

	var resume discord.Resume

	require.NoError(t, gatewayjson.Unmarshal(frame.Data, &resume))
	assert.Equal(t, "abc", resume.SessionID)
	assert.Equal(t, "token", resume.Token)
	assert.Equal(t, int32(5), resume.Sequence)

	write(t, conn, `{"op":0,"t":"RESUMED","s":6,"d":{}}`)

	require.Eventually(t, func() bool {
		return s.Session.State() == SessionStateReady
	}, testTimeout, time.Millisecond)

	cancel()

	assert.NoError(t, waitListen(t, errs))
}

func TestSupervisorReidentifiesAfterSessionClose(t *testing.T) {
	t.Parallel()

	for _, code := range []int{discord.CloseInvalidSeq, discord.CloseSessionTimeout} {
		code := code

		t.Run(strconv.Itoa(code), func(t *testing.T) {
			t.Parallel()

			gw := newFakeGateway(t)
			s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errs := listen(ctx, s)
			conn := gw.accept(t)

			write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)
			readOp(t, conn, discord.GatewayOpIdentify)
			write(t, conn, `{"op":0,"t":"READY","s":5,"d":{"session_id":"abc","resume_gateway_url":"`+gw.URL()+`"}}`)

			require.Eventually(t, func() bool {
				return s.Session.State() == SessionStateReady
			}, testTimeout, time.Millisecond)

			_ = conn.Close(websocket.StatusCode(code), "session gone")

			conn = gw.accept(t)

			assert.Empty(t, s.Session.SessionID())
			assert.Empty(t, s.Session.ResumeURL())
			assert.Nil(t, s.LastSequence())

			write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)

			frame := readOp(t, conn, discord.GatewayOpIdentify)

			var identify discord.Identify

			require.NoError(t, gatewayjson.Unmarshal(frame.Data, &identify))
			assert.Equal(t, "token", identify.Token)
			assert.Equal(t, SessionStateIdentifying, s.Session.State())

			cancel()

			assert.NoError(t, waitListen(t, errs))
		})
	}
}

func TestSupervisorReconnectRequest(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := listen(ctx, s)
	conn := gw.accept(t)

	write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)
	readOp(t, conn, discord.GatewayOpIdentify)

	// A non resumable invalid session identifies again on the next connection.
	write(t, conn, `{"op":9,"d":false}`)
	drain(conn)

	conn = gw.accept(t)

	write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)
	readOp(t, conn, discord.GatewayOpIdentify)

	assert.Empty(t, s.Session.SessionID())

	cancel()

	assert.NoError(t, waitListen(t, errs))
}

func TestSupervisorDecodeErrorIsFatal(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

	errs := listen(context.Background(), s)
	conn := gw.accept(t)

	write(t, conn, `{"op":`)
	drain(conn)

	assert.ErrorIs(t, waitListen(t, errs), ErrDecode)
	assert.True(t, s.Stopped())
	assert.True(t, s.Session.Stopped())
}

func TestSupervisorHandlerFailureIsFatal(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

	errs := listen(context.Background(), s)
	conn := gw.accept(t)

	// Valid frame, but the hello payload cannot be decoded.
	write(t, conn, `{"op":10,"d":{"heartbeat_interval":"soon"}}`)
	drain(conn)

	assert.ErrorIs(t, waitListen(t, errs), ErrDecode)
}

func TestSupervisorFatalCloseCode(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

	errs := listen(context.Background(), s)
	conn := gw.accept(t)

	_ = conn.Close(websocket.StatusCode(discord.CloseAuthenticationFailed), "Authentication failed.")

	assert.ErrorIs(t, waitListen(t, errs), ErrGatewayClosed)
}

func TestSupervisorConnectFailure(t *testing.T) {
	t.Parallel()

	// Nothing listens on port 1.
	s := newTestSupervisor(t, "ws://127.0.0.1:1", &fakeResponder{})

	err := waitListen(t, listen(context.Background(), s))
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.Zero(t, s.RetriesRemaining.Load())
}

func TestSupervisorDisconnectDuringBackoff(t *testing.T) {
	t.Parallel()

	configuration := &Configuration{
		Token:               "token",
		GatewayURL:          "ws://127.0.0.1:1",
		HeartbeatAckTimeout: time.Minute,
		ConnectRetries:      100,
	}

	s, err := NewSupervisor(zerolog.Nop(), configuration, []Command{{Name: "!a", Handler: noopCommand}},
		WithResponder(&fakeResponder{}),
		WithReconnectWait(3*time.Second, 3*time.Second),
	)
	require.NoError(t, err)

	errs := listen(context.Background(), s)

	// Let the first dial fail so Listen is waiting to retry.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()

	s.Disconnect()

	select {
	case err = <-errs:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after Disconnect")
	}

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, s.Stopped())
	assert.False(t, s.Connected())
}

func TestSupervisorDisconnectStopsHandlers(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	producer := &fakeProducer{}

	configuration := &Configuration{Token: "token", GatewayURL: gw.URL(), HeartbeatAckTimeout: time.Minute}

	s, err := NewSupervisor(zerolog.Nop(), configuration, []Command{{Name: "!a", Handler: noopCommand}},
		WithResponder(&fakeResponder{}),
		WithProducer(producer),
	)
	require.NoError(t, err)

	errs := listen(context.Background(), s)
	conn := gw.accept(t)

	write(t, conn, `{"op":10,"d":{"heartbeat_interval":10000}}`)
	readOp(t, conn, discord.GatewayOpIdentify)

	write(t, conn, `{"op":0,"t":"GUILD_CREATE","s":1,"d":{"id":"42","name":"first"}}`)
	write(t, conn, `{"op":0,"t":"GUILD_CREATE","s":2,"d":{"id":"43","name":"second"}}`)

	require.Eventually(t, func() bool {
		return s.Guilds.Bots.Count() == 2
	}, testTimeout, time.Millisecond)

	drain(conn)
	s.Disconnect()

	assert.NoError(t, waitListen(t, errs))

	assert.True(t, s.Session.Stopped())
	assert.True(t, s.Heartbeat.Stopped())
	assert.True(t, s.Guilds.Stopped())
	assert.True(t, s.Mirror.Stopped())

	s.Guilds.Bots.Range(func(guildID discord.Snowflake, bot *Bot) bool {
		assert.True(t, bot.Stopped(), "bot for guild %d", guildID)

		return true
	})

	producer.mu.Lock()
	assert.Equal(t, 1, producer.closed)
	producer.mu.Unlock()
}

func TestSupervisorListenTwice(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	s := newTestSupervisor(t, gw.URL(), &fakeResponder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := listen(ctx, s)
	drain(gw.accept(t))

	assert.ErrorIs(t, s.Listen(ctx), ErrAlreadyListening)

	s.Disconnect()

	assert.NoError(t, waitListen(t, errs))
	assert.ErrorIs(t, s.Listen(ctx), ErrSupervisorStopped)
}

func TestSupervisorSendWithoutConnection(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, "ws://127.0.0.1:1", &fakeResponder{})

	err := s.Send(context.Background(), discord.GatewayOpHeartbeat, nil)
	assert.ErrorIs(t, err, ErrNoConnection)
	assert.Nil(t, s.LastSequence())
}

func TestNewSupervisorErrors(t *testing.T) {
	t.Parallel()

	commands := []Command{{Name: "!a", Handler: noopCommand}}

	_, err := NewSupervisor(zerolog.Nop(), &Configuration{Token: "token"}, nil)
	assert.ErrorIs(t, err, ErrNoCommands)

	_, err = NewSupervisor(zerolog.Nop(), &Configuration{}, commands)
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewSupervisor(zerolog.Nop(), nil, commands)
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewSupervisor(zerolog.Nop(), &Configuration{Token: "token"}, append(commands, commands[0]))
	assert.ErrorIs(t, err, ErrDuplicateCommand)

	_, err = NewSupervisor(zerolog.Nop(), &Configuration{Token: "token", GatewayURL: "http://gateway"}, commands)
	assert.ErrorIs(t, err, ErrInvalidGatewayURL)
}

func TestSupervisorMirrorsEvents(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway(t)
	producer := &fakeProducer{}

	configuration := &Configuration{Token: "token", GatewayURL: gw.URL(), HeartbeatAckTimeout: time.Minute}

	s, err := NewSupervisor(zerolog.Nop(), configuration, []Command{{Name: "!a", Handler: noopCommand}},
		WithResponder(&fakeResponder{}),
		WithProducer(producer),
	)
	require.NoError(t, err)
	require.NotNil(t, s.Mirror)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := listen(ctx, s)
	conn := gw.accept(t)

	write(t, conn, `{"op":0,"t":"TYPING_START","s":1,"d":{"channel_id":"5"}}`)

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()

		return len(producer.published) == 1
	}, testTimeout, time.Millisecond)

	cancel()

	assert.NoError(t, waitListen(t, errs))

	producer.mu.Lock()
	assert.Equal(t, 1, producer.closed)
	producer.mu.Unlock()
}
