// File: internal/server/websocket.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/discovery"
	"github.com/xkilldash9x/consentscan/internal/events"
)

// MessageType names a websocket frame. Outbound scan events use the event
// kinds from the events package.
type MessageType string

const (
	MsgTypeStartScan    MessageType = "start_scan"
	MsgTypeScanAccepted MessageType = "scan_accepted"
	MsgTypeError        MessageType = "error"
)

// WSMessage is the frame exchanged over the websocket.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	ScanID    string          `json:"scan_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Outbound frames buffered per client.
	sendChannelSize = 256
)

// wsClient is one websocket connection. Scans it starts run under ctx and
// are cancelled when the connection goes away.
type wsClient struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan WSMessage
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warn("Failed to upgrade connection to WebSocket", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	client := &wsClient{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan WSMessage, sendChannelSize),
		ctx:    ctx,
		cancel: cancel,
	}
	client.logger = s.logger.With(zap.String("clientID", client.id))
	client.logger.Info("WebSocket connection established.", zap.String("remoteAddr", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.writePump()
	}()
	client.readPump()
	<-done
	client.logger.Debug("WebSocket handler finished.")
}

// readPump decodes inbound frames until the connection fails, then cancels
// the client's scans.
func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			} else {
				c.logger.Info("WebSocket connection closed.")
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", fmt.Sprintf("Malformed message: %v", err))
			continue
		}
		c.processMessage(msg)
	}
}

// writePump owns every write to the connection. It cancels the client when
// it stops.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks senders waiting on a full buffer.
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return

		case msg := <-c.send:
			payload, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("Failed to encode WebSocket message", zap.Error(err))
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("Failed to set write deadline", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("Error writing WebSocket message", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("Failed to set write deadline for PING", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Error sending PING message", zap.Error(err))
				return
			}
		}
	}
}

func (c *wsClient) processMessage(msg WSMessage) {
	switch msg.Type {
	case MsgTypeStartScan:
		c.startScan(msg)
	default:
		c.logger.Warn("Received unknown message type from client", zap.String("type", string(msg.Type)))
		c.sendError(msg.RequestID, fmt.Sprintf("Unknown or unsupported message type: %s", msg.Type))
	}
}

// startScan validates the command before anything touches the browser. A
// rejected target still gets a scan_error followed by scan_done.
func (c *wsClient) startScan(msg WSMessage) {
	var req schemas.ScanRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError(msg.RequestID, fmt.Sprintf("Invalid start_scan payload: %v", err))
			return
		}
	}

	emitter := c.emitterFor(msg.RequestID)
	if _, err := discovery.ValidateTarget(req.URL); err != nil {
		c.logger.Info("Rejected scan request", zap.String("url", req.URL), zap.Error(err))
		reporter := events.NewReporter("", emitter)
		reporter.Error(schemas.InvalidTargetMessage)
		reporter.Done()
		return
	}

	job, req := c.server.register(req)
	c.sendMessage(MsgTypeScanAccepted, job.ID, msg.RequestID, map[string]string{"scan_id": job.ID})
	c.logger.Info("Scan started over WebSocket", zap.String("scanID", job.ID), zap.String("target", req.URL))
	c.server.launch(c.ctx, job.ID, req, emitter)
}

// emitterFor forwards scan events to this client, tagged with requestID.
func (c *wsClient) emitterFor(requestID string) events.Emitter {
	return events.EmitterFunc(func(ev events.Event) {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			c.logger.Error("Failed to encode event", zap.String("kind", string(ev.Kind())), zap.Error(err))
			return
		}
		c.enqueue(WSMessage{
			Type:      MessageType(ev.Kind()),
			ScanID:    ev.ScanID,
			Data:      data,
			Timestamp: ev.Time.UTC().Format(time.RFC3339),
			RequestID: requestID,
		})
	})
}

func (c *wsClient) sendMessage(msgType MessageType, scanID, requestID string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("Failed to encode message data", zap.Error(err))
		return
	}
	c.enqueue(WSMessage{
		Type:      msgType,
		ScanID:    scanID,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	})
}

func (c *wsClient) sendError(requestID, message string) {
	c.sendMessage(MsgTypeError, "", requestID, map[string]string{"error": message})
}

// enqueue queues msg for the write pump. Terminal scan frames wait for buffer
// space until the client goes away; any other frame is dropped when the
// buffer is full.
func (c *wsClient) enqueue(msg WSMessage) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	if mustDeliver(msg.Type) {
		select {
		case c.send <- msg:
		case <-c.ctx.Done():
		}
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Error("WebSocket send buffer full, dropping message.",
			zap.String("requestID", msg.RequestID), zap.String("type", string(msg.Type)))
	}
}

// mustDeliver reports whether a frame ends or answers a scan.
func mustDeliver(t MessageType) bool {
	switch events.Kind(t) {
	case events.KindScanError, events.KindScanResult, events.KindScanComplete, events.KindScanDone:
		return true
	}
	return t == MsgTypeScanAccepted
}
