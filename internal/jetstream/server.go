package jetstream

import (
	"fmt"
	"os"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

// Server is an embedded, in-process JetStream server. It never listens on
// the network.
type Server struct {
	ns       *server.Server
	storeDir string
	ownsDir  bool
}

// NewServer starts the server. An empty storeDir uses a temporary directory
// that is removed on Shutdown.
func NewServer(storeDir string) (*Server, error) {
	owns := false
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "llama-sidekick-js-*")
		if err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		storeDir, owns = dir, true
	}

	ns, err := server.NewServer(&server.Options{
		DontListen: true,
		JetStream:  true,
		StoreDir:   storeDir,
		NoSigs:     true,
	})
	if err != nil {
		return nil, err
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready")
	}
	return &Server{ns: ns, storeDir: storeDir, ownsDir: owns}, nil
}

func (s *Server) Connect() (*nats.Conn, error) {
	return nats.Connect(s.ns.ClientURL(), nats.InProcessServer(s.ns))
}

func (s *Server) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	if s.ownsDir {
		os.RemoveAll(s.storeDir)
	}
}
