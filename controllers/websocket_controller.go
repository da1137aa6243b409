package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

const (
	// Time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	wsPongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Configure properly for production
	},
}

// QueueEvent is pushed to dashboard clients when a doctor's pending
// queue changes.
type QueueEvent struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

type wsClient struct {
	id       string
	doctorID string
	conn     *websocket.Conn
	send     chan []byte
}

// WebSocketController fans queue-changed events out to connected
// dashboards, one subscription per doctor. It implements
// services.QueueNotifier.
type WebSocketController struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]bool // doctor id (hex) -> clients
}

var _ services.QueueNotifier = (*WebSocketController)(nil)

func NewWebSocketController() *WebSocketController {
	return &WebSocketController{
		clients: make(map[string]map[*wsClient]bool),
	}
}

// QueueChanged pushes one event to every dashboard watching the doctor.
func (wc *WebSocketController) QueueChanged(doctorID primitive.ObjectID, m *models.Message) {
	data, err := json.Marshal(QueueEvent{Type: "queue_changed", Message: m})
	if err != nil {
		return
	}

	wc.mu.RLock()
	defer wc.mu.RUnlock()
	for client := range wc.clients[doctorID.Hex()] {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the event rather than block intake.
		}
	}
}

// HandleWebSocket upgrades a dashboard connection and subscribes it to a
// doctor's queue events.
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	doctorID := c.Query("doctor_id")
	if _, err := primitive.ObjectIDFromHex(doctorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid doctor_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := &wsClient{
		id:       uuid.NewString(),
		doctorID: doctorID,
		conn:     conn,
		send:     make(chan []byte, 64),
	}
	wc.register(client)

	go wc.writePump(client)
	go wc.readPump(client)
}

func (wc *WebSocketController) register(client *wsClient) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.clients[client.doctorID] == nil {
		wc.clients[client.doctorID] = make(map[*wsClient]bool)
	}
	wc.clients[client.doctorID][client] = true
}

func (wc *WebSocketController) unregister(client *wsClient) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if clients, ok := wc.clients[client.doctorID]; ok {
		if clients[client] {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(wc.clients, client.doctorID)
		}
	}
}

// readPump discards inbound frames; the feed is one-way but reading is
// required to process pongs and detect disconnects.
func (wc *WebSocketController) readPump(client *wsClient) {
	defer func() {
		wc.unregister(client)
		client.conn.Close()
	}()
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket client %s: %v", client.id, err)
			}
			break
		}
	}
}

func (wc *WebSocketController) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
