package config

import (
	"github.com/caarlos0/env/v11"
)

// Recording configures the optional exchange telemetry pipeline. An empty
// DatabaseURL disables it.
type Recording struct {
	DatabaseURL      string `env:"DATABASE_URL"`
	NATSStoreDir     string `env:"NATS_STORE_DIR"`
	WriterBufferSize int    `env:"WRITER_BUFFER_SIZE" envDefault:"1000"`
	WriterBatchSize  int    `env:"WRITER_BATCH_SIZE" envDefault:"100"`
	WriterFlushMs    int    `env:"WRITER_FLUSH_MS" envDefault:"100"`
}

func (r Recording) Enabled() bool {
	return r.DatabaseURL != ""
}

type Chat struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceURL string `env:"SERVICE_URL,required,notEmpty"`
	APIKey     string `env:"API_KEY,required,notEmpty"`
	ModelName  string `env:"MODEL_NAME" envDefault:"gpt-4"`
	ToolsFile  string `env:"TOOLS_FILE" envDefault:"tools.json"`
	Editor     string `env:"EDITOR" envDefault:"vim"`
	Recording  Recording
}

// Model holds what publish and serve share for locating or producing the GGUF file.
type Model struct {
	HFModelID      string `env:"HF_MODEL_ID,required,notEmpty"`
	ModelPath      string `env:"MODEL_PATH" envDefault:"/model-store"`
	ConvertCommand string `env:"CONVERT_COMMAND" envDefault:"convert-to-gguf"`
}

type Publish struct {
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	Model            Model
	Quantization     string `env:"QUANTIZATION" envDefault:"f16"`
	GCPStorageBucket string `env:"GCP_STORAGE_BUCKET,required,notEmpty"`
}

type Serve struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	Model        Model
	Quantization string `env:"QUANTIZATION" envDefault:"q4_k_m"`
	ServerPath   string `env:"LLAMA_SERVER_PATH" envDefault:"/app/llama.cpp/build/bin/server"`
	ContextSize  int    `env:"CONTEXT_SIZE" envDefault:"4096"`
	Host         string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port         int    `env:"SERVER_PORT" envDefault:"8080"`
	GPULayers    int    `env:"GPU_LAYERS" envDefault:"99"`
	APIKey       string `env:"API_KEY"`
}

func LoadChat() (*Chat, error) {
	return load[Chat]()
}

func LoadPublish() (*Publish, error) {
	return load[Publish]()
}

func LoadServe() (*Serve, error) {
	return load[Serve]()
}

func load[T any]() (*T, error) {
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
