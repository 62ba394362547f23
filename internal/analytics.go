package internal

import "github.com/prometheus/client_golang/prometheus"

var (
	gatewayEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_gateway_events_total",
			Help: "Gateway events received by op code and type",
		},
		[]string{"op", "type"},
	)

	gatewayReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_gateway_reconnects_total",
			Help: "Gateway reconnects by reason",
		},
		[]string{"reason"},
	)

	gatewayLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roulette_gateway_latency_milliseconds",
			Help: "Round trip of the last acknowledged heartbeat",
		},
	)

	heartbeatTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roulette_heartbeat_timeouts_total",
			Help: "Heartbeats that were not acknowledged in time",
		},
	)

	commandsInvoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_commands_invoked_total",
			Help: "Commands invoked by name",
		},
		[]string{"command"},
	)

	commandsThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roulette_commands_throttled_total",
			Help: "Messages dropped because every matching command was cooling down",
		},
	)

	guildBots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roulette_guild_bots",
			Help: "Guild bots created",
		},
	)

	mirrorPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_mirror_publish_failures_total",
			Help: "Events the mirror failed to publish by producer",
		},
		[]string{"producer"},
	)
)

// RegisterMetrics registers every collector with registerer.
func RegisterMetrics(registerer prometheus.Registerer) {
	registerer.MustRegister(
		gatewayEventCount,
		gatewayReconnects,
		gatewayLatency,
		heartbeatTimeouts,
		commandsInvoked,
		commandsThrottled,
		guildBots,
		mirrorPublishFailures,
	)
}
