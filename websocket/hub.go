package websocket

import (
	"context"
	"sync"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"

	"github.com/sirupsen/logrus"
)

const (
	// Buffer size of the hub's inbound queues
	hubQueueSize = 1024

	// Upper bound on a single replay page; keeps a page inside one client's send queue
	replayPageSize = sendBufferSize - 32

	// Time allowed for event log reads made from the run loop
	replayTimeout = 5 * time.Second

	// Clients with no inbound traffic for this long are dropped by the cleanup pass
	inactiveTimeout = 5 * time.Minute
)

// Hub fans domain events and notification lifecycle messages out to
// connected clients. All writes to a client's send queue happen on the
// run loop, so messages for one tracker reach a client in the order the
// hub received them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound queues, drained only by Run
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	direct     chan directMessage
	resume     chan resumeRequest

	// Collaborators
	eventLog interfaces.EventLog
	trackers interfaces.TrackerStateProvider
	unread   interfaces.UnreadCounter
	ingestor interfaces.PositionIngestor

	mutex sync.RWMutex
	stats *HubStats

	ctx    context.Context
	cancel context.CancelFunc

	cleanupTicker *time.Ticker
	shutdownOnce  sync.Once
}

// HubOptions wires the hub to the rest of the process. Every field is optional.
type HubOptions struct {
	EventLog interfaces.EventLog
	Trackers interfaces.TrackerStateProvider
	Unread   interfaces.UnreadCounter
	Ingestor interfaces.PositionIngestor
}

type HubStats struct {
	TotalConnections  int64
	ActiveConnections int
	MessagesSent      int64
	MessagesDropped   int64
	EventsReplayed    int64
	LastActivity      time.Time
	mutex             sync.RWMutex
}

// BroadcastMessage is a message for every client whose filter accepts TrackerID.
// An empty TrackerID reaches all clients.
type BroadcastMessage struct {
	TrackerID string
	Message   models.WSMessage
}

type directMessage struct {
	client  *Client
	message models.WSMessage
}

type resumeRequest struct {
	client        *Client
	afterSequence int64
}

func NewHub(opts HubOptions) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client, 64),
		unregister:    make(chan *Client, 64),
		broadcast:     make(chan BroadcastMessage, hubQueueSize),
		direct:        make(chan directMessage, hubQueueSize),
		resume:        make(chan resumeRequest, 64),
		eventLog:      opts.EventLog,
		trackers:      opts.Trackers,
		unread:        opts.Unread,
		ingestor:      opts.Ingestor,
		stats:         &HubStats{},
		ctx:           ctx,
		cancel:        cancel,
		cleanupTicker: time.NewTicker(time.Minute),
	}
}

// AttachTrackers connects the tracker pool once it exists. It must be
// called before Run.
func (h *Hub) AttachTrackers(trackers interfaces.TrackerStateProvider, ingestor interfaces.PositionIngestor) {
	h.trackers = trackers
	h.ingestor = ingestor
}

func (h *Hub) Run() {
	logrus.Info("WebSocket Hub started")
	go h.runCleanup()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "disconnected")

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case msg := <-h.direct:
			if h.clients[msg.client] {
				h.enqueue(msg.client, msg.message)
			}

		case req := <-h.resume:
			if h.clients[req.client] {
				h.replay(req.client, req.afterSequence)
			}

		case <-h.ctx.Done():
			h.closeAll()
			logrus.Info("WebSocket Hub stopped")
			return
		}
	}
}

// Register hands a freshly upgraded client to the run loop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.conn.Close()
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	active := len(h.clients)
	h.mutex.Unlock()

	h.stats.mutex.Lock()
	h.stats.TotalConnections++
	h.stats.ActiveConnections = active
	h.stats.LastActivity = time.Now()
	h.stats.mutex.Unlock()

	logrus.Infof("Client registered: %s (Total: %d)", client.connectionID, active)

	h.enqueue(client, models.WSMessage{
		Type:      models.WSTypeInitialData,
		Data:      h.initialData(client),
		Timestamp: time.Now(),
	})

	if client.resumeFrom >= 0 {
		h.replay(client, client.resumeFrom)
	}
}

func (h *Hub) initialData(client *Client) models.WSInitialData {
	data := models.WSInitialData{
		ClientID:  client.connectionID,
		Trackers:  []models.TrackerSummary{},
		Geofences: []models.Geofence{},
	}

	if h.trackers != nil {
		for _, summary := range h.trackers.Summaries() {
			if client.filter.Accepts(summary.ID) {
				data.Trackers = append(data.Trackers, summary)
			}
		}
		data.Geofences = h.trackers.Geofences()
	}

	ctx, cancel := context.WithTimeout(h.ctx, replayTimeout)
	defer cancel()

	if h.eventLog != nil {
		if last, err := h.eventLog.LastSequence(ctx); err == nil {
			data.LastSequence = last
		} else {
			logrus.Warnf("Failed to read last event sequence: %v", err)
		}
	}
	if h.unread != nil {
		if count, err := h.unread.UnreadCount(ctx); err == nil {
			data.UnreadCount = count
		} else {
			logrus.Warnf("Failed to count unread notifications: %v", err)
		}
	}

	return data
}

// replay sends one page of events after afterSequence. While more pages
// remain the client is marked as catching up and live domain events are
// withheld from it; they are in the log and arrive with a later page.
func (h *Hub) replay(client *Client, afterSequence int64) {
	if h.eventLog == nil {
		h.enqueue(client, replayComplete(afterSequence, false))
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, replayTimeout)
	defer cancel()

	events, err := h.eventLog.Since(ctx, afterSequence, replayPageSize)
	if err != nil {
		logrus.Errorf("Replay for client %s failed: %v", client.connectionID, err)
		h.enqueue(client, errorMessage(models.WSErrorReplayFailed, "Failed to replay events", ""))
		return
	}

	last := afterSequence
	sent := 0
	for _, event := range events {
		last = event.Sequence
		if !client.filter.Accepts(event.TrackerID) {
			continue
		}
		if !h.enqueue(client, domainEventMessage(event)) {
			return
		}
		sent++
	}

	more := len(events) == replayPageSize
	client.catchingUp = more
	if last > client.lastSequence {
		client.lastSequence = last
	}

	h.stats.mutex.Lock()
	h.stats.EventsReplayed += int64(sent)
	h.stats.mutex.Unlock()

	logrus.Debugf("Replayed %d events to client %s after sequence %d", sent, client.connectionID, afterSequence)
	h.enqueue(client, replayComplete(last, more))
}

func (h *Hub) broadcastMessage(msg BroadcastMessage) {
	sequence := msg.Message.Sequence

	for client := range h.clients {
		if !client.filter.Accepts(msg.TrackerID) {
			continue
		}
		if sequence > 0 {
			if client.catchingUp || sequence <= client.lastSequence {
				continue
			}
			client.lastSequence = sequence
		}
		h.enqueue(client, msg.Message)
	}

	h.stats.mutex.Lock()
	h.stats.LastActivity = time.Now()
	h.stats.mutex.Unlock()
}

// enqueue never blocks the run loop. A client whose queue is full is
// disconnected; it catches up from the event log when it reconnects.
func (h *Hub) enqueue(client *Client, message models.WSMessage) bool {
	select {
	case client.send <- message:
		h.stats.mutex.Lock()
		h.stats.MessagesSent++
		h.stats.mutex.Unlock()
		return true
	default:
		h.stats.mutex.Lock()
		h.stats.MessagesDropped++
		h.stats.mutex.Unlock()
		logrus.Warnf("Send queue full for client %s, disconnecting", client.connectionID)
		h.removeClient(client, "slow consumer")
		return false
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	active := len(h.clients)
	h.mutex.Unlock()

	close(client.send)

	h.stats.mutex.Lock()
	h.stats.ActiveConnections = active
	h.stats.mutex.Unlock()

	logrus.Infof("Client unregistered: %s (%s, Total: %d)", client.connectionID, reason, active)
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		h.removeClient(client, "hub shutdown")
	}
}

func (h *Hub) publish(msg BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

func (h *Hub) sendTo(client *Client, message models.WSMessage) {
	select {
	case h.direct <- directMessage{client: client, message: message}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) requestResume(client *Client, afterSequence int64) {
	select {
	case h.resume <- resumeRequest{client: client, afterSequence: afterSequence}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Public broadcasting methods

func (h *Hub) BroadcastDomainEvent(event models.DomainEvent) {
	h.publish(BroadcastMessage{
		TrackerID: event.TrackerID,
		Message:   domainEventMessage(event),
	})
}

func (h *Hub) BroadcastGPSUpdate(summary models.TrackerSummary) {
	h.publish(BroadcastMessage{
		TrackerID: summary.ID,
		Message: models.WSMessage{
			Type:      models.WSTypeGPSUpdate,
			Data:      summary,
			TrackerID: summary.ID,
			Timestamp: time.Now(),
		},
	})
}

func (h *Hub) BroadcastBoundaryNotification(record models.NotificationRecord) {
	h.publish(BroadcastMessage{
		TrackerID: record.TrackerID,
		Message: models.WSMessage{
			Type:      models.WSTypeBoundaryNotification,
			Data:      record,
			TrackerID: record.TrackerID,
			Timestamp: time.Now(),
		},
	})
}

// BroadcastNotificationUpdate goes to every client so unread counts stay in sync.
func (h *Hub) BroadcastNotificationUpdate(update models.WSNotificationUpdate) {
	h.publish(BroadcastMessage{
		Message: models.WSMessage{
			Type:      models.WSTypeNotificationUpdate,
			Data:      update,
			Timestamp: time.Now(),
		},
	})
}

func (h *Hub) BroadcastViolationCleared(cleared models.WSViolationCleared) {
	h.publish(BroadcastMessage{
		TrackerID: cleared.TrackerID,
		Message: models.WSMessage{
			Type:      models.WSTypeViolationCleared,
			Data:      cleared,
			TrackerID: cleared.TrackerID,
			Timestamp: time.Now(),
		},
	})
}

func (h *Hub) BroadcastAttentionCue(cue models.WSAttentionCue) {
	h.publish(BroadcastMessage{
		Message: models.WSMessage{
			Type:      models.WSTypeAttentionCue,
			Data:      cue,
			Timestamp: time.Now(),
		},
	})
}

// Utility methods

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetStats() models.WSHubStats {
	h.stats.mutex.RLock()
	defer h.stats.mutex.RUnlock()

	return models.WSHubStats{
		TotalConnections:  h.stats.TotalConnections,
		ActiveConnections: h.ClientCount(),
		MessagesSent:      h.stats.MessagesSent,
		MessagesDropped:   h.stats.MessagesDropped,
		EventsReplayed:    h.stats.EventsReplayed,
		LastActivity:      h.stats.LastActivity,
	}
}

func (h *Hub) runCleanup() {
	for {
		select {
		case <-h.cleanupTicker.C:
			h.performCleanup()
		case <-h.ctx.Done():
			return
		}
	}
}

// performCleanup closes connections that stopped answering; their read
// pumps then unregister them through the run loop.
func (h *Hub) performCleanup() {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if time.Since(client.LastActivity()) > inactiveTimeout {
			logrus.Warnf("Removing inactive client: %s", client.connectionID)
			client.conn.Close()
		}
	}
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		logrus.Info("Shutting down WebSocket Hub...")
		h.cleanupTicker.Stop()
		h.cancel()
		logrus.Info("WebSocket Hub shutdown complete")
	})
}
