package internal

import (
	"time"

	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/accumulator"
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Status is the JSON body served at /status.
type Status struct {
	EventSamples []accumulator.Sample `json:"event_samples"`
	Start        time.Time            `json:"start"`
	LastAck      time.Time            `json:"last_heartbeat_ack"`
	LastSequence *int32               `json:"last_sequence"`
	Version      string               `json:"version"`
	SessionState string               `json:"session_state"`
	Uptime       string               `json:"uptime"`
	Guilds       int                  `json:"guilds"`
	IntervalMs   int64                `json:"heartbeat_interval_ms"`
	LatencyMs    int64                `json:"heartbeat_latency_ms"`
	Connected    bool                 `json:"connected"`
	Listening    bool                 `json:"listening"`
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	start := s.Start.Load()

	status := Status{
		EventSamples: s.EventRate.Samples(),
		Start:        start,
		LastAck:      s.Heartbeat.LastAck.Load(),
		LastSequence: s.LastSequence(),
		Version:      VERSION,
		SessionState: s.Session.State().String(),
		Guilds:       s.Guilds.Bots.Count(),
		IntervalMs:   s.Heartbeat.Interval.Load().Milliseconds(),
		LatencyMs:    s.Heartbeat.Latency.Load().Milliseconds(),
		Connected:    s.Connected(),
		Listening:    s.listening.Load(),
	}

	if !start.IsZero() {
		status.Uptime = time.Since(start).Round(time.Second).String()
	}

	return status
}

// NewHTTPHandler serves prometheus metrics at /metrics and the supervisor
// status at /status.
func NewHTTPHandler(s *Supervisor) fasthttp.RequestHandler {
	r := router.New()

	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	r.GET("/status", s.handleStatus)

	return r.Handler
}

func (s *Supervisor) handleStatus(ctx *fasthttp.RequestCtx) {
	body, err := gatewayjson.Marshal(s.Status())
	if err != nil {
		s.Logger.Warn().Err(err).Msg("Failed to marshal status")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)

		return
	}

	ctx.SetContentType("application/json;charset=UTF-8")
	ctx.SetBody(body)
}

// NewHTTPServer returns a server for NewHTTPHandler. It is not started.
func NewHTTPServer(s *Supervisor) *fasthttp.Server {
	return &fasthttp.Server{
		Handler: NewHTTPHandler(s),
		Name:    "Sandwich-Roulette " + VERSION,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
