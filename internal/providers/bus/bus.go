// Package bus routes room messages between app sockets and WebSocket
// clients. Room "global" reaches every client and keeps no history; other
// rooms keep a bounded history.
package bus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// Global is the room every client belongs to
const Global = "global"

// Membership events published to a room when clients come and go
const (
	EventJoined = "user_joined"
	EventLeft   = "user_left"
)

const maxPayloadDepth = 32

var (
	ErrClientExists   = errors.New("client already connected")
	ErrClientNotFound = errors.New("client not connected")
	ErrClosed         = errors.New("bus closed")
)

// Metrics receives bus counters
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	MessageRouted(direction string)
}

// Config tunes history and dead client detection
type Config struct {
	History         int
	ClientTimeout   time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the defaults used by the shell
func DefaultConfig() Config {
	return Config{
		History:         100,
		ClientTimeout:   5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type client struct {
	id          string
	deliver     func(types.Message)
	rooms       map[string]bool
	remote      bool
	connectedAt time.Time
	lastSeen    time.Time
}

// Bus implements capability.Bus
type Bus struct {
	cfg     Config
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]bool
	history map[string][]types.Message
	sent    uint64
	closed  bool
	started bool

	stop chan struct{}
	done chan struct{}
}

// New creates a bus. metrics may be nil.
func New(cfg Config, logger *zap.Logger, metrics Metrics) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.History <= 0 {
		cfg.History = DefaultConfig().History
	}
	return &Bus{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]bool),
		history: make(map[string][]types.Message),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the dead client sweeper until Close
func (b *Bus) Start() {
	if b.cfg.CleanupInterval <= 0 || b.cfg.ClientTimeout <= 0 {
		return
	}
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := b.CleanupDead(); n > 0 {
					b.logger.Info("removed dead bus clients", zap.Int("count", n))
				}
			case <-b.stop:
				return
			}
		}
	}()
}

// Connect registers an in-process client. In-process clients live until
// they disconnect.
func (b *Bus) Connect(clientID string, deliver func(types.Message)) error {
	return b.connect(clientID, deliver, false)
}

// ConnectRemote registers a network client subject to idle expiry
func (b *Bus) ConnectRemote(clientID string, deliver func(types.Message)) error {
	return b.connect(clientID, deliver, true)
}

func (b *Bus) connect(clientID string, deliver func(types.Message), remote bool) error {
	if clientID == "" || deliver == nil {
		return fmt.Errorf("connect: client id and deliver are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.clients[clientID]; ok {
		return fmt.Errorf("%w: %s", ErrClientExists, clientID)
	}

	now := b.now()
	b.clients[clientID] = &client{
		id:          clientID,
		deliver:     deliver,
		rooms:       make(map[string]bool),
		remote:      remote,
		connectedAt: now,
		lastSeen:    now,
	}
	if b.metrics != nil {
		b.metrics.ClientConnected()
	}
	b.logger.Debug("bus client connected", zap.String("client", clientID), zap.Bool("remote", remote))
	return nil
}

// Disconnect removes a client from every room. It returns false when the
// client was not connected.
func (b *Bus) Disconnect(clientID string) bool {
	b.mu.Lock()
	ok := b.removeLocked(clientID)
	b.mu.Unlock()
	if ok {
		b.logger.Debug("bus client disconnected", zap.String("client", clientID))
	}
	return ok
}

func (b *Bus) removeLocked(clientID string) bool {
	c, ok := b.clients[clientID]
	if !ok {
		return false
	}
	for room := range c.rooms {
		b.dropMemberLocked(room, clientID)
	}
	delete(b.clients, clientID)
	if b.metrics != nil {
		b.metrics.ClientDisconnected()
	}
	return true
}

func (b *Bus) dropMemberLocked(room, clientID string) {
	members := b.rooms[room]
	delete(members, clientID)
	if len(members) == 0 {
		delete(b.rooms, room)
	}
}

// Join adds a client to room and announces it to the room
func (b *Bus) Join(clientID, room string) error {
	if err := utils.ValidateRoom(room); err != nil {
		return err
	}
	if room == Global {
		return b.Touch(clientID)
	}

	b.mu.Lock()
	c, ok := b.clients[clientID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	c.lastSeen = b.now()
	if c.rooms[room] {
		b.mu.Unlock()
		return nil
	}
	c.rooms[room] = true
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[string]bool)
	}
	b.rooms[room][clientID] = true
	b.mu.Unlock()

	b.announce(room, EventJoined, clientID)
	return nil
}

// Leave removes a client from room
func (b *Bus) Leave(clientID, room string) error {
	b.mu.Lock()
	c, ok := b.clients[clientID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	c.lastSeen = b.now()
	if !c.rooms[room] {
		b.mu.Unlock()
		return nil
	}
	delete(c.rooms, room)
	b.dropMemberLocked(room, clientID)
	b.mu.Unlock()

	b.announce(room, EventLeft, clientID)
	return nil
}

func (b *Bus) announce(room, event, clientID string) {
	_, err := b.publish(room, event, map[string]interface{}{
		"client_id": clientID,
		"room":      room,
	}, "system", false)
	if err != nil {
		b.logger.Debug("membership announcement dropped", zap.String("room", room), zap.Error(err))
	}
}

// Touch records activity for a client
func (b *Bus) Touch(clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[clientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	c.lastSeen = b.now()
	return nil
}

// Publish delivers a message to every member of room (every client for
// Global) and records it in the room history
func (b *Bus) Publish(room, event string, payload interface{}, sender string) (types.Message, error) {
	if room == "" {
		room = Global
	}
	if err := utils.ValidateRoom(room); err != nil {
		return types.Message{}, err
	}
	if event == "" {
		event = "message"
	}
	if err := utils.ValidatePayload(payload, maxPayloadDepth); err != nil {
		return types.Message{}, fmt.Errorf("publish to %s: %w", room, err)
	}
	return b.publish(room, event, payload, sender, true)
}

func (b *Bus) publish(room, event string, payload interface{}, sender string, record bool) (types.Message, error) {
	msg := types.Message{
		ID:        id.NewMessageID().String(),
		Room:      room,
		Event:     event,
		Payload:   payload,
		Sender:    sender,
		Timestamp: b.now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return msg, ErrClosed
	}
	if c, ok := b.clients[sender]; ok {
		c.lastSeen = msg.Timestamp
	}
	var targets []func(types.Message)
	if room == Global {
		for _, c := range b.clients {
			targets = append(targets, c.deliver)
		}
	} else {
		for cid := range b.rooms[room] {
			targets = append(targets, b.clients[cid].deliver)
		}
		if record {
			h := append(b.history[room], msg)
			if len(h) > b.cfg.History {
				h = h[len(h)-b.cfg.History:]
			}
			b.history[room] = h
		}
	}
	b.sent += uint64(len(targets))
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.MessageRouted("in")
	}
	for _, deliver := range targets {
		b.safeDeliver(deliver, msg)
		if b.metrics != nil {
			b.metrics.MessageRouted("out")
		}
	}
	return msg, nil
}

func (b *Bus) safeDeliver(deliver func(types.Message), msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus delivery panicked", zap.String("room", msg.Room), zap.Any("panic", r))
		}
	}()
	deliver(msg)
}

// Rooms lists rooms with at least one member and their sizes
func (b *Bus) Rooms() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.rooms))
	for room, members := range b.rooms {
		out[room] = len(members)
	}
	return out
}

// History returns up to limit recent messages of room, oldest first.
// limit <= 0 returns everything kept.
func (b *Bus) History(room string, limit int) []types.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h := b.history[room]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]types.Message, len(h))
	copy(out, h)
	return out
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID          string    `json:"id"`
	Rooms       []string  `json:"rooms"`
	Remote      bool      `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Clients lists connected clients sorted by id
func (b *Bus) Clients() []ClientInfo {
	b.mu.RLock()
	out := make([]ClientInfo, 0, len(b.clients))
	for _, c := range b.clients {
		rooms := make([]string, 0, len(c.rooms))
		for r := range c.rooms {
			rooms = append(rooms, r)
		}
		sort.Strings(rooms)
		out = append(out, ClientInfo{
			ID:          c.id,
			Rooms:       rooms,
			Remote:      c.remote,
			ConnectedAt: c.connectedAt,
			LastSeen:    c.lastSeen,
		})
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats summarises the bus
type Stats struct {
	Clients        int    `json:"clients"`
	Rooms          int    `json:"rooms"`
	HistoryCount   int    `json:"history_count"`
	Delivered      uint64 `json:"delivered"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Stats returns current counters
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{
		Clients:        len(b.clients),
		Rooms:          len(b.rooms),
		Delivered:      b.sent,
		TimeoutSeconds: int(b.cfg.ClientTimeout.Seconds()),
	}
	for _, h := range b.history {
		st.HistoryCount += len(h)
	}
	return st
}

// CleanupDead removes remote clients idle longer than the client timeout
func (b *Bus) CleanupDead() int {
	if b.cfg.ClientTimeout <= 0 {
		return 0
	}
	cutoff := b.now().Add(-b.cfg.ClientTimeout)

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for cid, c := range b.clients {
		if c.remote && c.lastSeen.Before(cutoff) {
			b.removeLocked(cid)
			n++
		}
	}
	return n
}

// Close stops the sweeper and disconnects every client
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for cid := range b.clients {
		b.removeLocked(cid)
	}
	started := b.started
	b.mu.Unlock()

	close(b.stop)
	if started {
		<-b.done
	}
}
