package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// HeartbeatHandler keeps the connection alive and reconnects when the gateway
// stops acknowledging heartbeats.
type HeartbeatHandler struct {
	*Actor

	conn GatewayConn

	// Fixed ack timeout. Zero uses the heartbeat interval.
	ackTimeout time.Duration

	Interval  *atomic.Duration
	LastAck   *atomic.Time
	LastSent  *atomic.Time
	Latency   *atomic.Duration
	Heartbeat *atomic.Int64

	mu         sync.Mutex
	loopCancel func()
	ackTimer   *time.Timer
	ackPending uint64
	generation uint64
}

func NewHeartbeatHandler(logger zerolog.Logger, conn GatewayConn, ackTimeout time.Duration, opts ...ActorOption) *HeartbeatHandler {
	h := &HeartbeatHandler{
		conn:       conn,
		ackTimeout: ackTimeout,

		Interval:  &atomic.Duration{},
		LastAck:   &atomic.Time{},
		LastSent:  &atomic.Time{},
		Latency:   &atomic.Duration{},
		Heartbeat: &atomic.Int64{},
	}

	h.Actor = NewActor(logger, "heartbeat", h.receive, opts...)

	return h
}

func (h *HeartbeatHandler) Subscription() Subscription {
	return Subscription{
		Events: map[discord.GatewayOp][]string{
			discord.GatewayOpHello:        {AnyType},
			discord.GatewayOpHeartbeat:    {AnyType},
			discord.GatewayOpHeartbeatACK: {AnyType},
		},
	}
}

// Stop stops the actor along with the heartbeat loop and any pending ack timeout.
func (h *HeartbeatHandler) Stop() {
	h.Actor.Stop()

	h.mu.Lock()
	h.stopLoop()
	h.disarm()
	h.mu.Unlock()
}

// AckPending returns if a heartbeat has been sent and not yet acknowledged.
func (h *HeartbeatHandler) AckPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ackPending != 0
}

func (h *HeartbeatHandler) receive(ctx context.Context, message interface{}) error {
	event, ok := message.(*Event)
	if !ok {
		return nil
	}

	switch event.Op {
	case discord.GatewayOpHello:
		var hello structs.Hello

		if err := event.decodeContent(&hello); err != nil {
			return fmt.Errorf("hello: %w", err)
		}

		h.start(ctx, time.Duration(hello.HeartbeatInterval)*time.Millisecond)
	case discord.GatewayOpHeartbeatACK:
		h.acknowledge()
	case discord.GatewayOpHeartbeat:
		h.Logger.Debug().Msg("Gateway requested heartbeat")

		if err := h.conn.Send(ctx, discord.GatewayOpHeartbeatACK, nil); err != nil {
			h.Logger.Warn().Err(err).Msg("Failed to send heartbeat ack")
		}
	}

	return nil
}

// start replaces any running heartbeat loop with one using interval.
func (h *HeartbeatHandler) start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		h.Logger.Warn().Dur("interval", interval).Msg("Ignoring hello with invalid heartbeat interval")

		return
	}

	h.Interval.Store(interval)

	h.mu.Lock()
	h.stopLoop()
	h.disarm()

	loopCtx, cancel := context.WithCancel(ctx)
	h.loopCancel = cancel
	h.mu.Unlock()

	h.Logger.Debug().Dur("interval", interval).Msg("Starting heartbeat")

	go h.loop(loopCtx, interval)
}

func (h *HeartbeatHandler) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTimer(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		// The ack can be read before Send returns so the timeout is armed first.
		h.LastSent.Store(time.Now().UTC())
		h.arm(ctx, interval)

		err := h.conn.Send(ctx, discord.GatewayOpHeartbeat, h.conn.LastSequence())
		if err != nil {
			h.mu.Lock()
			h.disarm()
			h.mu.Unlock()

			if ctx.Err() != nil {
				return
			}

			// The connection is already gone and the next hello restarts the loop.
			if errors.Is(err, ErrNoConnection) {
				h.Logger.Debug().Msg("Stopped heartbeating without a connection")

				return
			}

			h.Logger.Warn().Err(err).Msg("Failed to heartbeat. Reconnecting")
			h.conn.Reconnect(WebsocketReconnectCloseCode)

			return
		}

		h.Heartbeat.Inc()

		t.Reset(interval)
	}
}

// arm starts the ack timeout for the heartbeat just sent, unless one is
// already pending.
func (h *HeartbeatHandler) arm(ctx context.Context, interval time.Duration) {
	timeout := h.ackTimeout
	if timeout <= 0 {
		timeout = interval
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ctx.Err() != nil || h.ackPending != 0 {
		return
	}

	h.generation++
	generation := h.generation

	h.ackPending = generation
	h.ackTimer = time.AfterFunc(timeout, func() {
		h.expire(generation, timeout)
	})
}

func (h *HeartbeatHandler) expire(generation uint64, timeout time.Duration) {
	h.mu.Lock()

	if h.ackPending != generation {
		h.mu.Unlock()

		return
	}

	h.ackPending = 0
	h.ackTimer = nil
	h.stopLoop()
	h.mu.Unlock()

	h.Logger.Warn().Dur("timeout", timeout).Msg("Heartbeat was not acknowledged. Reconnecting")

	heartbeatTimeouts.Inc()

	h.conn.Reconnect(WebsocketReconnectCloseCode)
}

func (h *HeartbeatHandler) acknowledge() {
	now := time.Now().UTC()
	h.LastAck.Store(now)

	h.mu.Lock()
	pending := h.ackPending != 0
	h.disarm()
	h.mu.Unlock()

	if !pending {
		return
	}

	latency := now.Sub(h.LastSent.Load())
	h.Latency.Store(latency)

	gatewayLatency.Set(float64(latency.Milliseconds()))

	h.Logger.Trace().Dur("latency", latency).Msg("Received heartbeat ack")
}

// disarm cancels the pending ack timeout. h.mu must be held.
func (h *HeartbeatHandler) disarm() {
	if h.ackTimer != nil {
		h.ackTimer.Stop()
		h.ackTimer = nil
	}

	h.ackPending = 0
}

// stopLoop cancels the heartbeat loop. h.mu must be held.
func (h *HeartbeatHandler) stopLoop() {
	if h.loopCancel != nil {
		h.loopCancel()
		h.loopCancel = nil
	}
}
