package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/namikmesic/llama-sidekick/internal/chat"
	"github.com/namikmesic/llama-sidekick/internal/config"
	"github.com/namikmesic/llama-sidekick/internal/jetstream"
	"github.com/namikmesic/llama-sidekick/internal/prompt"
	"github.com/namikmesic/llama-sidekick/internal/recorder"
	"github.com/namikmesic/llama-sidekick/internal/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadChat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	config.SetupLogging(cfg.LogLevel)

	tools, err := chat.LoadTools(cfg.ToolsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	client, err := chat.NewClient(cfg.ServiceURL, cfg.APIKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	text, err := prompt.FromEditor(ctx, cfg.Editor)
	if err != nil {
		log.Error().Err(err).Msg("failed to read prompt")
		return 1
	}
	if text == "" {
		fmt.Println("Prompt is empty. Exiting.")
		return 0
	}

	var observer chat.Observer
	if cfg.Recording.Enabled() {
		rec, shutdown := startRecording(ctx, cfg.Recording, client.Endpoint())
		defer shutdown()
		observer = rec
	}

	fmt.Println("Sending request to the service...")

	ex := chat.NewExchange(client, os.Stdout, observer)
	res, err := ex.Run(ctx, chat.NewRequest(cfg.ModelName, text, tools))
	if err != nil {
		// Text already streamed stays on screen; end its line first.
		fmt.Println()
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("request cancelled")
		} else {
			log.Error().Err(err).Str("endpoint", client.Endpoint()).Msg("request failed")
		}
		return 1
	}

	if err := chat.RenderToolCalls(os.Stdout, res.ToolCalls); err != nil {
		log.Error().Err(err).Msg("failed to render tool calls")
		return 1
	}
	fmt.Println()

	log.Debug().
		Str("exchange_id", res.ID.String()).
		Str("finish_reason", res.FinishReason).
		Int("malformed_frames", res.Malformed).
		Dur("duration", res.Duration).
		Msg("exchange finished")
	return 0
}

// startRecording wires the telemetry pipeline: postgres, embedded JetStream,
// batch writer and recorder consumer. The returned func drains and tears it
// down in reverse order.
func startRecording(ctx context.Context, cfg config.Recording, endpoint string) (*recorder.Recorder, func()) {
	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := storage.RunMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	natsServer, err := jetstream.NewServer(cfg.NATSStoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded NATS")
	}
	nc, err := natsServer.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to embedded NATS")
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get JetStream context")
	}
	if err := jetstream.EnsureStream(js); err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream stream")
	}

	writer := storage.NewBatchWriter(pool, cfg.WriterBufferSize, cfg.WriterBatchSize, cfg.WriterFlushMs)
	rec := recorder.New(writer, js, endpoint)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := rec.StartConsumer(consumerCtx, js); err != nil {
			log.Error().Err(err).Msg("recorder consumer failed")
		}
	}()

	return rec, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Drain(drainCtx); err != nil {
			log.Warn().Err(err).Msg("recording incomplete")
		}
		consumerCancel()
		<-consumerDone
		nc.Drain()
		natsServer.Shutdown()
		writer.Shutdown()
		pool.Close()
	}
}
