// Command eventtail follows a Kafka event topic and prints each event to
// stdout. Ops tool for watching the round and payment streams during an
// incident.
//
//	eventtail -topic crash.round.events [-group eventtail-local]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/liftoff/platform/internal/infra"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	topic := flag.String("topic", "crash.round.events", "topic to follow")
	group := flag.String("group", "eventtail-local", "consumer group id")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if !cfg.KafkaEnabled || cfg.KafkaBrokers == "" {
		logger.Error("kafka disabled; set KAFKA_ENABLED and KAFKA_BROKERS")
		os.Exit(1)
	}

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, *topic, *group, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("following topic", "topic", *topic, "group", *group)
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("read message", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\t%s\n", msg.Time.Format("15:04:05.000"), msg.Key, msg.Value)
	}
}
