// Package capability builds the narrow per-app API handed to sandboxed code
// in place of ambient access to settings, notifications, files, sockets and
// the network.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

var (
	ErrUnavailable = errors.New("capability unavailable")
	ErrClosed      = errors.New("capabilities released")
)

// storagePrefix namespaces an app's key/value storage inside its settings
const storagePrefix = "storage."

// SettingsStore persists per-app settings
type SettingsStore interface {
	GetAppSetting(ctx context.Context, appID, key string) (interface{}, bool, error)
	AllAppSettings(ctx context.Context, appID string) (map[string]interface{}, error)
	SetAppSetting(ctx context.Context, appID, key string, value interface{}) error
	DeleteAppSetting(ctx context.Context, appID, key string) error
}

// Notifier raises user-facing notifications
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) (types.Notification, error)
}

// FileSystem is the shared virtual file system
type FileSystem interface {
	Mkdir(ctx context.Context, path string) (types.FileInfo, error)
	WriteFile(ctx context.Context, path string, data []byte) (types.FileInfo, error)
	ReadFile(ctx context.Context, path string) ([]byte, types.FileInfo, error)
	List(ctx context.Context, path string) ([]types.FileInfo, error)
	Stat(ctx context.Context, path string) (types.FileInfo, error)
	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Glob(ctx context.Context, pattern string) ([]types.FileInfo, error)
}

// Bus is the pub/sub message bus
type Bus interface {
	Connect(clientID string, deliver func(types.Message)) error
	Disconnect(clientID string) bool
	Join(clientID, room string) error
	Leave(clientID, room string) error
	Publish(room, event string, payload interface{}, sender string) (types.Message, error)
}

// Fetcher performs outbound HTTP
type Fetcher interface {
	Fetch(ctx context.Context, req types.FetchRequest) (types.FetchResponse, error)
}

// Deps are the services a bundle brokers. Nil members make the matching
// capability return ErrUnavailable.
type Deps struct {
	Settings SettingsStore
	Notifier Notifier
	FS       FileSystem
	Bus      Bus
	Fetcher  Fetcher
	Logger   *zap.Logger
}

// Factory creates one bundle per app instance
type Factory struct {
	deps Deps
}

// NewFactory creates a factory over deps
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Factory{deps: deps}
}

// New creates a fresh bundle for appID. Bundles are never shared.
func (f *Factory) New(appID string) *Bundle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bundle{
		appID:   appID,
		deps:    f.deps,
		logger:  f.deps.Logger.With(zap.String("app_id", appID)),
		ctx:     ctx,
		cancel:  cancel,
		sockets: make(map[string]*Socket),
	}
}

// Bundle is the capability set of one app instance
type Bundle struct {
	appID  string
	deps   Deps
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	sockets map[string]*Socket
	closed  bool
}

// AppID returns the owning app
func (b *Bundle) AppID() string { return b.appID }

// Context is cancelled when the bundle is cleaned up. Asynchronous work
// done for the app runs under it.
func (b *Bundle) Context() context.Context { return b.ctx }

// GetAppSetting returns a setting, or def when unset or unavailable
func (b *Bundle) GetAppSetting(key string, def interface{}) interface{} {
	if b.deps.Settings == nil {
		return def
	}
	v, ok, err := b.deps.Settings.GetAppSetting(b.ctx, b.appID, key)
	if err != nil {
		b.logger.Warn("read setting failed", zap.String("key", key), zap.Error(err))
		return def
	}
	if !ok {
		return def
	}
	return v
}

// GetAllAppSettings returns defaults merged with stored values, without
// the app's private storage keys
func (b *Bundle) GetAllAppSettings() map[string]interface{} {
	out := make(map[string]interface{})
	if b.deps.Settings == nil {
		return out
	}
	all, err := b.deps.Settings.AllAppSettings(b.ctx, b.appID)
	if err != nil {
		b.logger.Warn("read settings failed", zap.Error(err))
		return out
	}
	for k, v := range all {
		if !strings.HasPrefix(k, storagePrefix) {
			out[k] = v
		}
	}
	return out
}

// SetAppSetting stores a setting
func (b *Bundle) SetAppSetting(ctx context.Context, key string, value interface{}) error {
	if b.deps.Settings == nil {
		return ErrUnavailable
	}
	if key == "" || strings.HasPrefix(key, storagePrefix) {
		return fmt.Errorf("invalid setting key %q", key)
	}
	return b.deps.Settings.SetAppSetting(ctx, b.appID, key, value)
}

// ShowNotification raises a notification owned by the app
func (b *Bundle) ShowNotification(title, message string, level types.NotificationLevel) (types.Notification, error) {
	if b.deps.Notifier == nil {
		return types.Notification{}, ErrUnavailable
	}
	if level == "" {
		level = types.LevelInfo
	}
	return b.deps.Notifier.Notify(context.Background(), types.Notification{
		AppID:   b.appID,
		Title:   title,
		Message: message,
		Level:   level,
	})
}

// StorageGet reads from the app's private key/value storage
func (b *Bundle) StorageGet(key string) (interface{}, bool) {
	if b.deps.Settings == nil {
		return nil, false
	}
	v, ok, err := b.deps.Settings.GetAppSetting(b.ctx, b.appID, storagePrefix+key)
	if err != nil {
		b.logger.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, ok
}

// StorageSet writes to the app's private key/value storage
func (b *Bundle) StorageSet(key string, value interface{}) error {
	if b.deps.Settings == nil {
		return ErrUnavailable
	}
	return b.deps.Settings.SetAppSetting(b.ctx, b.appID, storagePrefix+key, value)
}

// StorageRemove deletes a key from the app's private storage
func (b *Bundle) StorageRemove(key string) error {
	if b.deps.Settings == nil {
		return ErrUnavailable
	}
	return b.deps.Settings.DeleteAppSetting(b.ctx, b.appID, storagePrefix+key)
}

// StorageKeys lists the app's private storage keys
func (b *Bundle) StorageKeys() []string {
	if b.deps.Settings == nil {
		return nil
	}
	all, err := b.deps.Settings.AllAppSettings(b.ctx, b.appID)
	if err != nil {
		return nil
	}
	var keys []string
	for k := range all {
		if rest, ok := strings.CutPrefix(k, storagePrefix); ok {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys
}

// FS returns the virtual file system
func (b *Bundle) FS() (FileSystem, error) {
	if b.deps.FS == nil {
		return nil, ErrUnavailable
	}
	return b.deps.FS, nil
}

// Fetch performs an HTTP request under ctx
func (b *Bundle) Fetch(ctx context.Context, req types.FetchRequest) (types.FetchResponse, error) {
	if b.deps.Fetcher == nil {
		return types.FetchResponse{}, ErrUnavailable
	}
	return b.deps.Fetcher.Fetch(ctx, req)
}

// Connect opens a socket on the bus and joins room when it is not empty.
// deliver is called from bus goroutines.
func (b *Bundle) Connect(room string, deliver func(types.Message)) (*Socket, error) {
	if b.deps.Bus == nil {
		return nil, ErrUnavailable
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	s := &Socket{
		ID:     id.NewSocketID().String(),
		bundle: b,
		rooms:  make(map[string]bool),
	}
	if err := b.deps.Bus.Connect(s.ID, deliver); err != nil {
		return nil, fmt.Errorf("connect socket: %w", err)
	}
	if room != "" {
		if err := b.deps.Bus.Join(s.ID, room); err != nil {
			b.deps.Bus.Disconnect(s.ID)
			return nil, fmt.Errorf("join %s: %w", room, err)
		}
		s.rooms[room] = true
	}
	b.sockets[s.ID] = s
	b.logger.Debug("socket connected", zap.String("socket", s.ID), zap.String("room", room))
	return s, nil
}

// Sockets returns the number of open sockets
func (b *Bundle) Sockets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

// Cleanup cancels in-flight work and disconnects every socket.
// It is safe to call more than once.
func (b *Bundle) Cleanup() error {
	b.cancel()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sockets := make([]*Socket, 0, len(b.sockets))
	for _, s := range b.sockets {
		sockets = append(sockets, s)
	}
	b.sockets = make(map[string]*Socket)
	b.mu.Unlock()

	var errs []error
	for _, s := range sockets {
		if !b.deps.Bus.Disconnect(s.ID) {
			errs = append(errs, fmt.Errorf("socket %s already disconnected", s.ID))
		}
	}
	if len(sockets) > 0 {
		b.logger.Debug("sockets disconnected", zap.Int("count", len(sockets)))
	}
	return errors.Join(errs...)
}

// Socket is an app connection to the bus
type Socket struct {
	ID     string
	bundle *Bundle

	mu     sync.Mutex
	rooms  map[string]bool
	closed bool
}

// Join adds the socket to room
func (s *Socket) Join(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.bundle.deps.Bus.Join(s.ID, room); err != nil {
		return err
	}
	s.rooms[room] = true
	return nil
}

// Leave removes the socket from room
func (s *Socket) Leave(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.rooms, room)
	return s.bundle.deps.Bus.Leave(s.ID, room)
}

// Rooms lists joined rooms
func (s *Socket) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Emit publishes an event to room, or to every joined room when room is empty
func (s *Socket) Emit(room, event string, payload interface{}) error {
	rooms := []string{room}
	if room == "" {
		rooms = s.Rooms()
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	for _, r := range rooms {
		if _, err := s.bundle.deps.Bus.Publish(r, event, payload, s.ID); err != nil {
			return fmt.Errorf("publish %s: %w", r, err)
		}
	}
	return nil
}

// Close disconnects the socket
func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	b := s.bundle
	b.mu.Lock()
	delete(b.sockets, s.ID)
	b.mu.Unlock()
	b.deps.Bus.Disconnect(s.ID)
}
