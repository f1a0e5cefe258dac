// Command redisevent connects to a Redis-compatible Unix domain
// socket, subscribes to one or more keyspace/keyevent/timer channels,
// and prints each delivered event to standard output.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	_ "go.uber.org/automaxprocs"

	redis "github.com/pascaldekloe/redisevent"
)

// Config is the process's own configuration, loaded from environment
// variables (and an optional .env file); separate from redis.Config,
// which the library itself never reaches into the environment for.
type Config struct {
	SocketPath    string  `env:"REDISEVENT_SOCKET" envDefault:"/var/run/redis.sock"`
	MetricsAddr   string  `env:"REDISEVENT_METRICS_ADDR" envDefault:":9101"`
	LogLevel      string  `env:"REDISEVENT_LOG_LEVEL" envDefault:"info"`
	CommandRate   float64 `env:"REDISEVENT_COMMAND_RATE" envDefault:"0"`
	IgnoreSubAck  bool    `env:"REDISEVENT_IGNORE_SUB_ACK" envDefault:"true"`
}

func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "redisevent: .env:", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("redisevent: config: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()
	names := flag.Args()
	if len(names) == 0 {
		os.Stderr.WriteString(`NAME
	redisevent — print keyspace, keyevent and timer subscription events

SYNOPSIS
	redisevent channel-or-period ...

DESCRIPTION
	Each operand is subscribed via redis.Client.Subscribe. A numeric
	operand is a local timer period in milliseconds; anything else is
	a key name or a recognized notification event name.
`)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "redisevent:", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	reg := prometheus.NewRegistry()
	metrics := redis.NewMetrics(reg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	client := redis.NewClient(redis.Config{Path: cfg.SocketPath, IgnoreSubAck: cfg.IgnoreSubAck}).
		SetLogger(logger).
		SetMetrics(metrics)

	if cfg.CommandRate > 0 {
		client.SetCommandRateLimit(rate.NewLimiter(rate.Limit(cfg.CommandRate), 1))
	}

	client.OnConnect(func() {
		logger.Info().Msg("connected")
	})
	client.OnError(func(err error) {
		logger.Error().Err(err).Msg("client error")
	})
	client.OnDisconnect(func() {
		logger.Info().Msg("disconnected")
	})

	tokens := make([]any, len(names))
	for i, n := range names {
		tokens[i] = n
	}

	if err := client.Subscribe(func(err error, reply redis.Reply) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "redisevent:", err)
			return
		}
		printEvent(reply)
	}, tokens...); err != nil {
		fmt.Fprintln(os.Stderr, "redisevent:", err)
		os.Exit(1)
	}

	client.Connect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	client.Exit()
}

func printEvent(reply redis.Reply) {
	if reply.Type != redis.TypeArray {
		fmt.Println(reply.String())
		return
	}
	for i, e := range reply.Array {
		if i > 0 {
			fmt.Print(" ")
		}
		switch e.Type {
		case redis.TypeInteger:
			fmt.Print(e.Integer)
		default:
			fmt.Print(e.String())
		}
	}
	fmt.Println()
}
