package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/namikmesic/llama-sidekick/internal/config"
	"github.com/namikmesic/llama-sidekick/internal/model"
	"github.com/rs/zerolog/log"
)

// publish makes sure the quantized GGUF model exists locally, uploads it to
// the configured bucket and prints its file name on stdout.
func main() {
	cfg, err := config.LoadPublish()
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

	name := filepath.Base(path)
	uploader := model.NewGCSUploader(cfg.GCPStorageBucket)
	if _, err := uploader.Upload(ctx, path, name); err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.GCPStorageBucket).Msg("upload failed")
	}

	fmt.Println(name)
}
