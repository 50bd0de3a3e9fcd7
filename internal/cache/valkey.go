package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/valkey-io/valkey-go"
)

// Valkey implements Store using Valkey (Redis-compatible).
type Valkey struct {
	client valkey.Client
}

// NewValkey creates a new Valkey cache client.
func NewValkey(addr string) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, eris.Wrap(err, "cache: valkey connect")
	}
	return &Valkey{client: client}, nil
}

// Get retrieves a value by key. A missing key returns ErrMiss.
func (c *Valkey) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s", key)
	}
	return b, nil
}

// Set stores a value with a TTL.
func (c *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.client.Do(ctx,
		c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(ttl).Build(),
	)
	if err := cmd.Error(); err != nil {
		return eris.Wrapf(err, "cache: set %s", key)
	}
	return nil
}

// Delete removes a key.
func (c *Valkey) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Close releases the client.
func (c *Valkey) Close() {
	c.client.Close()
}
