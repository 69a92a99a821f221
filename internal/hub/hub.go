// Package hub fans typed update and alert events out to long-lived observer
// connections, partitioned into role, user, and entity groups.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/metrics"
)

// Event kinds on the wire.
const (
	EventProduction = "production_update"
	EventMachine    = "machine_update"
	EventInventory  = "inventory_update"
	EventAlert      = "alert"
	EventAnalytics  = "analytics"
	EventInit       = "init"
)

// liveStateTTL bounds how long a late subscriber can re-sync from the last
// published event of each kind.
const liveStateTTL = 60 * time.Second

// sendBuffer is the per-client outbound queue; a full buffer drops events
// rather than blocking the broadcaster.
const sendBuffer = 64

// recentAlertsCap bounds the shared recent-alerts list.
const recentAlertsCap = 50

type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conn is the observer connection; *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Escalator forwards critical alerts to an out-of-band channel (SNS).
type Escalator interface {
	EscalateAlert(ctx context.Context, alert domain.AlertUpdate) error
}

// Bridge mirrors events to other process instances (MQTT).
type Bridge interface {
	Publish(topic string, payload []byte) error
}

type Client struct {
	conn   Conn
	send   chan Envelope
	userID string
	role   string
	groups map[string]bool
}

// Hub tracks observer connections and group membership. Events are delivered
// in publish order per connection; a disconnected observer loses events until
// its next Authenticate and must re-sync from the cached snapshots.
type Hub struct {
	store     cache.Store
	escalator Escalator
	bridge    Bridge

	mu      sync.RWMutex
	clients map[*Client]bool
	groups  map[string]map[*Client]bool
}

func New(store cache.Store) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[*Client]bool),
		groups:  make(map[string]map[*Client]bool),
	}
}

// WithEscalator routes critical alerts through an out-of-band notifier.
func (h *Hub) WithEscalator(e Escalator) *Hub { h.escalator = e; return h }

// WithBridge mirrors every broadcast to a cross-instance transport.
func (h *Hub) WithBridge(b Bridge) *Hub { h.bridge = b; return h }

// Register adds a connection and starts its writer. The client receives
// nothing until Authenticate.
func (h *Hub) Register(conn Conn) *Client {
	c := &Client{
		conn:   conn,
		send:   make(chan Envelope, sendBuffer),
		groups: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

// Unregister drops the connection from all groups and closes it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for g := range c.groups {
		if members := h.groups[g]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, g)
			}
		}
	}
	h.mu.Unlock()
	close(c.send)
}

func (c *Client) writeLoop() {
	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			log.Debug().Err(err).Str("user", c.userID).Msg("observer write failed")
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}

func (c *Client) enqueue(env Envelope) {
	select {
	case c.send <- env:
	default:
		log.Warn().Str("user", c.userID).Str("event", env.Type).Msg("observer send buffer full, event dropped")
	}
}

// Authenticate records the connection's identity, joins it to its role and
// user groups, and pushes the cached initial snapshots its role may see.
func (h *Hub) Authenticate(ctx context.Context, c *Client, userID, role string) {
	h.mu.Lock()
	c.userID = userID
	c.role = role
	h.joinLocked(c, "role:"+role)
	h.joinLocked(c, "user:"+userID)
	h.mu.Unlock()

	c.enqueue(Envelope{Type: EventInit, Data: h.initialSnapshot(ctx, role), Timestamp: time.Now()})
}

// Subscribe joins an additional entity-scoped group such as "order:<id>" or
// "machine:<id>" so the client can narrow-cast without polling.
func (h *Hub) Subscribe(c *Client, scope string) {
	h.mu.Lock()
	h.joinLocked(c, scope)
	h.mu.Unlock()
}

func (h *Hub) joinLocked(c *Client, group string) {
	members := h.groups[group]
	if members == nil {
		members = make(map[*Client]bool)
		h.groups[group] = members
	}
	members[c] = true
	c.groups[group] = true
}

func (h *Hub) initialSnapshot(ctx context.Context, role string) map[string]interface{} {
	snap := map[string]interface{}{}

	var prod domain.ProductionSummary
	if ok, _ := cache.GetJSON(ctx, h.store, cache.KeyProductionSummary, &prod); ok {
		snap["production_summary"] = prod
	}
	if alerts, err := cache.RangeJSON[domain.AlertUpdate](ctx, h.store, cache.KeyRecentAlerts, 0, 19); err == nil && len(alerts) > 0 {
		snap["recent_alerts"] = alerts
	}
	if canSeeMachines(role) {
		var ms domain.MachineSummary
		if ok, _ := cache.GetJSON(ctx, h.store, cache.KeyMachineSummary, &ms); ok {
			snap["machine_summary"] = ms
		}
	}
	if canSeeInventory(role) {
		var is domain.InventorySummary
		if ok, _ := cache.GetJSON(ctx, h.store, cache.KeyInventorySummary, &is); ok {
			snap["inventory_summary"] = is
		}
	}
	return snap
}

// publish delivers an envelope to the union of the named groups. No ordering
// guarantee exists across group members beyond publish order.
func (h *Hub) publish(env Envelope, groups ...string) {
	delivered := make(map[*Client]bool)
	h.mu.RLock()
	for _, g := range groups {
		for c := range h.groups[g] {
			if !delivered[c] {
				delivered[c] = true
				c.enqueue(env)
			}
		}
	}
	h.mu.RUnlock()
}

func roleGroups(roles []string) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = "role:" + r
	}
	return out
}

// stash keeps the most recent event of each kind in the shared cache so late
// subscribers get current state on connect, then mirrors it over the bridge.
func (h *Hub) stash(ctx context.Context, kind string, payload interface{}) {
	metrics.BroadcastsTotal.WithLabelValues(kind).Inc()
	if err := cache.SetJSON(ctx, h.store, cache.HubLastKey(kind), payload, liveStateTTL); err != nil {
		log.Error().Err(err).Str("event", kind).Msg("live state cache write failed")
	}
	if h.bridge != nil {
		b, err := json.Marshal(Envelope{Type: kind, Data: payload, Timestamp: time.Now()})
		if err == nil {
			if err := h.bridge.Publish("factory/events/"+kind, b); err != nil {
				log.Error().Err(err).Str("event", kind).Msg("bridge publish failed")
			}
		}
	}
}

func (h *Hub) BroadcastProductionUpdate(ctx context.Context, m domain.ProductionMetrics) {
	h.stash(ctx, EventProduction, m)
	env := Envelope{Type: EventProduction, Data: m, Timestamp: time.Now()}
	h.publish(env, append(roleGroups(productionRoles), "order:"+m.OrderID)...)
}

func (h *Hub) BroadcastMachineUpdate(ctx context.Context, s domain.MachineStatus) {
	h.stash(ctx, EventMachine, s)
	env := Envelope{Type: EventMachine, Data: s, Timestamp: time.Now()}
	h.publish(env, append(roleGroups(machineRoles), "machine:"+s.MachineID)...)
}

func (h *Hub) BroadcastInventoryUpdate(ctx context.Context, s domain.InventoryStatus) {
	h.stash(ctx, EventInventory, s)
	env := Envelope{Type: EventInventory, Data: s, Timestamp: time.Now()}
	h.publish(env, append(roleGroups(inventoryRoles), "item:"+s.ItemID)...)
}

func (h *Hub) BroadcastInventorySummary(ctx context.Context, s domain.InventorySummary) {
	h.stash(ctx, EventInventory, s)
	env := Envelope{Type: EventInventory, Data: s, Timestamp: time.Now()}
	h.publish(env, roleGroups(inventoryRoles)...)
}

// BroadcastAlert routes the alert to its type's specialist roles plus admin
// and manager, records it on the bounded recent-alerts list, and escalates
// critical alerts out of band. Emission is best effort: failures are logged
// and dropped.
func (h *Hub) BroadcastAlert(ctx context.Context, a domain.AlertUpdate) {
	if err := cache.PushJSON(ctx, h.store, cache.KeyRecentAlerts, a, recentAlertsCap); err != nil {
		log.Error().Err(err).Str("alert", a.ID).Msg("recent alerts push failed")
	}
	h.stash(ctx, EventAlert, a)

	groups := roleGroups(AlertTargetRoles(a.Type))
	if a.OrderID != "" {
		groups = append(groups, "order:"+a.OrderID)
	}
	if a.MachineID != "" {
		groups = append(groups, "machine:"+a.MachineID)
	}
	h.publish(Envelope{Type: EventAlert, Data: a, Timestamp: time.Now()}, groups...)

	if h.escalator != nil && a.Severity == domain.SeverityCritical {
		if err := h.escalator.EscalateAlert(ctx, a); err != nil {
			log.Error().Err(err).Str("alert", a.ID).Msg("alert escalation failed")
		}
	}
}

func (h *Hub) BroadcastAnalytics(ctx context.Context, snap domain.AnalyticsSnapshot) {
	h.stash(ctx, EventAnalytics, snap)
	env := Envelope{Type: EventAnalytics, Data: snap, Timestamp: time.Now()}
	h.publish(env, roleGroups(analyticsRoles)...)
}
