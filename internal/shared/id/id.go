// Package id generates identifiers for the desktop backend.
//
// Identifiers are prefixed ULIDs so they sort by creation time and read
// well in logs (ntf_01H..., cli_01H...). Bus messages use random UUIDs,
// they are never sorted.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NotificationID identifies a notification
type NotificationID string

// ClientID identifies a bus client (WebSocket connection or app socket)
type ClientID string

// SocketID identifies an app socket opened through its capabilities
type SocketID string

// RequestID identifies an API request
type RequestID string

// MessageID identifies a bus message
type MessageID string

const (
	NotificationPrefix = "ntf"
	ClientPrefix       = "cli"
	SocketPrefix       = "sock"
	RequestPrefix      = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs created in the same millisecond still sort in order
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewNotificationID generates a notification ID
func NewNotificationID() NotificationID {
	return NotificationID(Default().GenerateWithPrefix(NotificationPrefix))
}

// NewClientID generates a bus client ID
func NewClientID() ClientID {
	return ClientID(Default().GenerateWithPrefix(ClientPrefix))
}

// NewSocketID generates an app socket ID
func NewSocketID() SocketID {
	return SocketID(Default().GenerateWithPrefix(SocketPrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewMessageID generates a bus message ID
func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

func (id NotificationID) String() string { return string(id) }
func (id ClientID) String() string       { return string(id) }
func (id SocketID) String() string       { return string(id) }
func (id RequestID) String() string      { return string(id) }
func (id MessageID) String() string      { return string(id) }

// Split separates a prefixed ID into prefix and ULID
func Split(prefixed string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(prefixed, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", prefixed)
	}
	u, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", prefixed, err)
	}
	return prefix, u, nil
}

// Timestamp extracts the creation time of a prefixed ID
func Timestamp(prefixed string) (time.Time, error) {
	_, u, err := Split(prefixed)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
