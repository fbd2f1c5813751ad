package jetstream

import (
	"errors"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	StreamName    = "LLAMA"
	SubjectPrefix = "llama.exchange."
	doneSuffix    = ".done"
)

func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"llama.>"},
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

// AllSubjects matches every chunk and done subject.
func AllSubjects() string {
	return SubjectPrefix + ">"
}

func ChunkSubject(exchangeID string) string {
	return SubjectPrefix + exchangeID
}

func DoneSubject(exchangeID string) string {
	return SubjectPrefix + exchangeID + doneSuffix
}

// ParseSubject extracts the exchange id from a chunk or done subject.
func ParseSubject(subject string) (exchangeID string, done bool, ok bool) {
	rest, found := strings.CutPrefix(subject, SubjectPrefix)
	if !found || rest == "" {
		return "", false, false
	}
	if id, isDone := strings.CutSuffix(rest, doneSuffix); isDone {
		return id, true, id != ""
	}
	return rest, false, !strings.Contains(rest, ".")
}
