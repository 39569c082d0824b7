package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Conn is one live transport connection
type Conn interface {
	ReadEvents() ([]*ws.Event, error)
	WriteEvent(e *ws.Event) error
	Close() error
}

// Dialer establishes a transport connection
type Dialer func(ctx context.Context) (Conn, error)

// Options configures a session manager
type Options struct {
	// WebSocket endpoint, e.g. wss://host/ws
	URL   string
	Token string

	// HTTP base for the recovery query, e.g. https://host
	APIBaseURL string

	// Path of the local handle file
	HandlePath string

	KeepAliveInterval time.Duration

	// OnEvent observes every inbound event after the manager has applied
	// its own bookkeeping
	OnEvent func(e *ws.Event)

	// Dialer overrides the default gorilla dialer
	Dialer Dialer

	HTTPClient *http.Client
}

// Manager mirrors server session state on the client side: it persists
// session handles, keeps the transport alive with automatic reconnect and
// backoff, re-subscribes to live topics after a reconnect, and sends
// periodic keep-alives for owned sessions. It only ever emits intent
// events; session state is owned by the server.
type Manager struct {
	opts  Options
	store *HandleStore

	mu   sync.Mutex
	conn Conn

	done chan struct{}
}

// NewManager creates a session manager; call Run to connect
func NewManager(opts Options) *Manager {
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = gorillaDialer(opts.URL, opts.Token)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		opts:  opts,
		store: NewHandleStore(opts.HandlePath),
		done:  make(chan struct{}),
	}
}

// Run connects and serves the transport until the context is cancelled,
// reconnecting with exponential backoff after any failure.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	go m.keepAliveLoop(ctx)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.opts.Dialer(ctx)
		if err != nil {
			logger.WithError(err).Warn("Transport dial failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()

		m.resume(ctx)
		m.readLoop(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()
	}
}

// Done is closed once Run has returned
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// StartSOS asks the server to open an SOS broadcast session
func (m *Manager) StartSOS(lat, lng float64) error {
	return m.send(ws.NewEvent(ws.EventStartSOS, coordPayload(lat, lng)))
}

// StartShare asks the server to open a live-location share
func (m *Manager) StartShare(lat, lng float64) error {
	return m.send(ws.NewEvent(ws.EventLocationStart, coordPayload(lat, lng)))
}

// UpdateLocation streams a position for the persisted session of a kind
func (m *Manager) UpdateLocation(kind models.SessionKind, lat, lng float64) error {
	handle, err := m.store.Load(kind)
	if err != nil {
		return err
	}

	event := ws.EventUpdateLocation
	if kind == models.KindLocationShare {
		event = ws.EventLocationUpdate
	}
	data := coordPayload(lat, lng)
	data["session_id"] = handle.SessionID
	return m.send(ws.NewEvent(event, data))
}

// End terminates the persisted session of a kind
func (m *Manager) End(kind models.SessionKind) error {
	handle, err := m.store.Load(kind)
	if err != nil {
		return err
	}

	event := ws.EventLeaveSOS
	if kind == models.KindLocationShare {
		event = ws.EventLocationEnd
	}
	return m.send(ws.NewEvent(event, map[string]interface{}{
		"session_id": handle.SessionID,
	}))
}

// Handle returns the persisted handle for a session kind
func (m *Manager) Handle(kind models.SessionKind) (Handle, error) {
	return m.store.Load(kind)
}

// Send emits an arbitrary intent event
func (m *Manager) Send(e *ws.Event) error {
	return m.send(e)
}

// resume re-establishes topic membership: local handles first, falling
// back to the server's recovery query when none are persisted.
func (m *Manager) resume(ctx context.Context) {
	handles, err := m.store.All()
	if err != nil || len(handles) == 0 {
		handles = m.recoverFromServer(ctx)
	}

	for _, handle := range handles {
		event := ws.EventJoinSOS
		if handle.Kind == models.KindLocationShare {
			event = ws.EventLocationJoin
		}
		if err := m.send(ws.NewEvent(event, map[string]interface{}{
			"session_id": handle.SessionID,
		})); err != nil {
			logger.WithError(err).Warn("Failed to re-join session topic")
		}
	}
}

// recoverFromServer queries the active-session endpoint and persists the
// recovered handles.
func (m *Manager) recoverFromServer(ctx context.Context) []Handle {
	if m.opts.APIBaseURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.APIBaseURL+"/api/sessions/active", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+m.opts.Token)

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Session recovery query failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var envelope struct {
		Data struct {
			SOS           *models.SOSSession           `json:"sos"`
			LocationShare *models.LocationShareSession `json:"location_share"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil
	}

	var handles []Handle
	if s := envelope.Data.SOS; s != nil {
		handles = append(handles, Handle{
			SessionID:     s.SessionID,
			ShareableLink: s.ShareableLink,
			Kind:          models.KindSOS,
		})
	}
	if s := envelope.Data.LocationShare; s != nil {
		handles = append(handles, Handle{
			SessionID:     s.ShareID,
			ShareableLink: s.ShareableLink,
			Kind:          models.KindLocationShare,
		})
	}

	for _, handle := range handles {
		if err := m.store.Save(handle); err != nil {
			logger.WithError(err).Warn("Failed to persist recovered handle")
		}
	}
	return handles
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		if ctx.Err() != nil {
			return
		}

		events, err := conn.ReadEvents()
		if err != nil {
			logger.WithError(err).Info("Transport connection lost")
			return
		}

		for _, event := range events {
			m.apply(event)
			if m.opts.OnEvent != nil {
				m.opts.OnEvent(event)
			}
		}
	}
}

// apply performs the manager's own bookkeeping for an inbound event
func (m *Manager) apply(e *ws.Event) {
	switch e.Event {
	case ws.EventSOSStarted:
		m.saveHandle(Handle{
			SessionID:     e.Str("session_id"),
			ShareableLink: e.Str("shareable_link"),
			Kind:          models.KindSOS,
		})
	case ws.EventShareStarted:
		m.saveHandle(Handle{
			SessionID:     e.Str("share_id"),
			ShareableLink: e.Str("shareable_link"),
			Kind:          models.KindLocationShare,
		})
	case ws.EventStatusUpdate:
		// the authoritative side reports the session over; drop the
		// handle. User-directed replays carry the id in the payload,
		// room broadcasts in the envelope.
		if e.Str("status") != "inactive" {
			return
		}
		sessionID := e.Str("session_id")
		if sessionID == "" {
			sessionID = e.RoomID
		}
		if sessionID != "" {
			if err := m.store.ClearSession(sessionID); err != nil {
				logger.WithError(err).Warn("Failed to clear session handle")
			}
		}
	}
}

func (m *Manager) saveHandle(handle Handle) {
	if handle.SessionID == "" {
		return
	}
	if err := m.store.Save(handle); err != nil {
		logger.WithError(err).Warn("Failed to persist session handle")
	}
}

// keepAliveLoop sends a keep-alive for every persisted handle while the
// transport is up
func (m *Manager) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handles, err := m.store.All()
			if err != nil {
				continue
			}
			for _, handle := range handles {
				m.send(ws.NewEvent(ws.EventKeepAlive, map[string]interface{}{
					"session_id": handle.SessionID,
				}))
			}
		}
	}
}

func (m *Manager) send(e *ws.Event) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("transport not connected")
	}
	return conn.WriteEvent(e)
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func coordPayload(lat, lng float64) map[string]interface{} {
	return map[string]interface{}{
		"lat": lat,
		"lng": lng,
	}
}

// gorillaConn adapts a gorilla connection to the Conn interface. The
// server may coalesce several events into one frame separated by
// newlines.
type gorillaConn struct {
	conn *gorilla.Conn
}

func (g *gorillaConn) ReadEvents() ([]*ws.Event, error) {
	_, payload, err := g.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var events []*ws.Event
	for _, part := range bytes.Split(payload, []byte{'\n'}) {
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		event, err := ws.FromJSON(part)
		if err != nil {
			logger.WithError(err).Warn("Dropping malformed inbound event")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (g *gorillaConn) WriteEvent(e *ws.Event) error {
	payload, err := e.ToJSON()
	if err != nil {
		return err
	}
	return g.conn.WriteMessage(gorilla.TextMessage, payload)
}

func (g *gorillaConn) Close() error {
	return g.conn.Close()
}

func gorillaDialer(url, token string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		dialer := gorilla.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, url+"?token="+token, nil)
		if err != nil {
			return nil, err
		}
		return &gorillaConn{conn: conn}, nil
	}
}
