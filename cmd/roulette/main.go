package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WelcomerTeam/Sandwich-Roulette/internal"
	"github.com/WelcomerTeam/Sandwich-Roulette/internal/roulette"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configurationPath := flag.String("config", os.Getenv("ROULETTE_CONFIGURATION_LOCATION"), "Path of the yaml configuration file")
	envFile := flag.String("env", ".env", "Path of a .env file to load before reading the environment")
	logLevel := flag.String("level", os.Getenv("LOGGING_LEVEL"), "Logging level")
	logFile := flag.String("log-file", os.Getenv("LOGGING_FILE"), "Also write logs to this file, rotating it as it grows")
	enableHTTP := flag.Bool("http", false, "Serve /metrics and /status regardless of configuration")

	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		println("Failed to load env file: " + err.Error())
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil || *logLevel == "" {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Stamp},
	}

	if *logFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	if err = run(logger, *configurationPath, *enableHTTP); err != nil {
		logger.Fatal().Err(err).Msg("Exited with error")
	}
}

func run(logger zerolog.Logger, configurationPath string, enableHTTP bool) error {
	configuration, err := internal.LoadConfiguration(configurationPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []internal.SupervisorOption

	if configuration.Producer.Type != "" {
		producer, err := internal.NewProducer(configuration.Producer.Type)
		if err != nil {
			return err
		}

		if err = producer.Connect(ctx, "roulette", configuration.Producer.Configuration); err != nil {
			return err
		}

		logger.Info().Str("producer", producer.String()).Msg("Connected producer")

		opts = append(opts, internal.WithProducer(producer))
	}

	internal.RegisterMetrics(prometheus.DefaultRegisterer)

	supervisor, err := internal.NewSupervisor(logger, configuration, roulette.New().Commands(), opts...)
	if err != nil {
		return err
	}

	if enableHTTP || configuration.HTTP.Enabled {
		server := internal.NewHTTPServer(supervisor)

		go func() {
			logger.Info().Msgf("Serving http at %s", configuration.HTTP.Host)

			if err := server.ListenAndServe(configuration.HTTP.Host); err != nil {
				logger.Error().Str("host", configuration.HTTP.Host).Err(err).Msg("Failed to serve http server")
			}
		}()

		defer server.Shutdown()
	}

	logger.Info().Msgf("Starting roulette. Version %s", internal.VERSION)

	return supervisor.Listen(ctx)
}
