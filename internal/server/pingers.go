package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes Qdrant with its native HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name implements Pinger.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping implements Pinger.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Checker is anything with a context-aware Ping, such as
// *credential.RedisStore or *store.SQLiteStore.
type Checker interface {
	Ping(ctx context.Context) error
}

// namedPinger labels a Checker.
type namedPinger struct {
	name string
	p    Checker
}

// NewPinger wraps c as a Pinger reported under name.
func NewPinger(name string, c Checker) Pinger {
	return &namedPinger{name: name, p: c}
}

func (n *namedPinger) Name() string { return n.name }

func (n *namedPinger) Ping(ctx context.Context) error {
	if err := n.p.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", n.name, err)
	}
	return nil
}
