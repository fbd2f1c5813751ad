package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/viant/afs"
	_ "github.com/viant/afsc/gs"
)

// Uploader copies local model files to object storage. Any afs scheme works;
// gs:// is registered by this package.
type Uploader struct {
	fs      afs.Service
	baseURL string
}

func NewUploader(fs afs.Service, baseURL string) *Uploader {
	return &Uploader{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewGCSUploader uploads into the root of a Google Cloud Storage bucket using
// application default credentials.
func NewGCSUploader(bucket string) *Uploader {
	return NewUploader(afs.New(), "gs://"+bucket)
}

// Upload stores localPath as object and returns its URL.
func (u *Uploader) Upload(ctx context.Context, localPath, object string) (string, error) {
	dest := u.baseURL + "/" + strings.TrimLeft(object, "/")

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	log.Info().Str("file", localPath).Str("url", dest).Msg("uploading model")
	if err := u.fs.Upload(ctx, dest, 0o644, f); err != nil {
		return "", fmt.Errorf("upload %s: %w", dest, err)
	}
	log.Info().Str("url", dest).Msg("model uploaded")
	return dest, nil
}
