package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/namikmesic/llama-sidekick/internal/config"
	"github.com/namikmesic/llama-sidekick/internal/launcher"
	"github.com/namikmesic/llama-sidekick/internal/model"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadServe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := model.Ensure(ctx, model.ExecConverter{Command: cfg.Model.ConvertCommand}, model.Options{
		ModelID:      cfg.Model.HFModelID,
		Quantization: cfg.Quantization,
		Dir:          cfg.Model.ModelPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("model conversion failed")
	}

	srv := &launcher.Server{
		Path:        cfg.ServerPath,
		Model:       path,
		ContextSize: cfg.ContextSize,
		Host:        cfg.Host,
		Port:        cfg.Port,
		GPULayers:   cfg.GPULayers,
		APIKey:      cfg.APIKey,
	}

	err = srv.Run(ctx)
	var exitErr *launcher.ExitError
	switch {
	case err == nil:
	case errors.Is(err, launcher.ErrStopped):
		log.Info().Msg("server stopped by user")
	case errors.As(err, &exitErr):
		log.Error().Int("status", exitErr.Code).Msg("llama.cpp server exited with a non-zero status")
		os.Exit(1)
	default:
		log.Fatal().Err(err).Msg("failed to run llama.cpp server")
	}
}
