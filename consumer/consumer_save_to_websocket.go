package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dylanpieper/batchGPT/processor"
)

type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	filters      ClientFilters
	mu           sync.RWMutex
	lastPing     time.Time
	connected    bool
	registered   bool
	registerChan chan struct{}
	messageQueue [][]byte   // Queue to store messages before registration
	queueMu      sync.Mutex // Separate mutex for queue operations
	maxQueueSize int
}

// ClientFilters contains filter criteria for events
type ClientFilters struct {
	Types   []string `json:"types"`
	RunKeys []string `json:"run_keys"`
	Columns []string `json:"columns"`
}

// RegistrationMessage represents the initial registration message
type RegistrationMessage struct {
	Type    string        `json:"type"`    // "register" for registration messages
	Filters ClientFilters `json:"filters"` // Initial filters to apply
}

// SaveToWebSocket streams run events to connected dashboard clients.
type SaveToWebSocket struct {
	processors   []processor.Processor
	upgrader     websocket.Upgrader
	hub          *Hub
	server       *http.Server
	maxQueueSize int
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("New client connected, awaiting registration...")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Client unregistered, total clients: %d", len(h.clients))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.connected || !client.registered {
					continue // Skip unregistered clients
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func NewSaveToWebSocket(config map[string]interface{}) (*SaveToWebSocket, error) {
	port, ok := config["port"].(string)
	if !ok {
		port = "8080"
	}

	path, ok := config["path"].(string)
	if !ok {
		path = "/ws"
	}

	maxQueueSize, ok := config["max_queue_size"].(int)
	if !ok {
		maxQueueSize = 1000 // Default queue size
	}

	hub := NewHub()
	go hub.run()

	ws := &SaveToWebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hub:          hub,
		maxQueueSize: maxQueueSize,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, ws.handleWebSocket)
	ws.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Starting WebSocket server on %s", ws.server.Addr)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket server error: %v", err)
		}
	}()

	return ws, nil
}

func (w *SaveToWebSocket) handleWebSocket(rw http.ResponseWriter, req *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, 256),
		connected:    true,
		lastPing:     time.Now(),
		registered:   false,
		registerChan: make(chan struct{}),
		maxQueueSize: w.maxQueueSize,
	}

	// Start registration timeout timer
	regTimer := time.NewTimer(10 * time.Second)
	go func() {
		select {
		case <-regTimer.C:
			if !client.registered {
				log.Printf("Client registration timeout")
				client.conn.Close()
				return
			}
		case <-client.registerChan:
			regTimer.Stop()
		}
	}()

	w.hub.register <- client

	// Send welcome message with registration instructions
	welcome := map[string]interface{}{
		"type":    "welcome",
		"message": "Please send registration message to begin receiving events",
		"format": map[string]interface{}{
			"type": "register",
			"filters": map[string]interface{}{
				"types":    []string{},
				"run_keys": []string{},
				"columns":  []string{},
			},
		},
	}
	welcomeJSON, _ := json.Marshal(welcome)
	client.send <- welcomeJSON

	go w.readPump(client)
	go w.writePump(client)
}

func (w *SaveToWebSocket) readPump(client *Client) {
	defer func() {
		w.hub.unregister <- client
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512 * 1024)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.mu.Lock()
		client.lastPing = time.Now()
		client.mu.Unlock()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			break
		}

		var regMsg RegistrationMessage
		if err := json.Unmarshal(message, &regMsg); err != nil {
			log.Printf("Error parsing message: %v", err)
			continue
		}

		client.mu.Lock()
		if regMsg.Type == "register" {
			if !client.registered {
				client.registered = true
				client.filters = regMsg.Filters
				close(client.registerChan)
				log.Printf("Client registered with filters: %+v", client.filters)

				// Deliver events queued before registration
				go func() {
					client.queueMu.Lock()
					queued := client.messageQueue
					client.messageQueue = nil
					client.queueMu.Unlock()

					for _, msg := range queued {
						var data map[string]interface{}
						if err := json.Unmarshal(msg, &data); err != nil {
							log.Printf("Error unmarshaling queued message: %v", err)
							continue
						}

						if w.shouldSendToClient(client, data) {
							select {
							case client.send <- msg:
							default:
								log.Printf("Failed to send queued message - channel full")
							}
						}
					}
				}()

				// Send confirmation
				confirm := map[string]interface{}{
					"type":    "registered",
					"message": "Registration successful, processing queued events",
					"filters": client.filters,
				}
				confirmJSON, _ := json.Marshal(confirm)
				client.send <- confirmJSON
			} else {
				// Update filters for already registered client
				client.filters = regMsg.Filters
				log.Printf("Client filters updated: %+v", client.filters)
			}
		}
		client.mu.Unlock()
	}
}

func (w *SaveToWebSocket) writePump(client *Client) {
	ticker := time.NewTicker(time.Second * 30)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			writer, err := client.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := writer.Write(message); err != nil {
				return
			}

			if err := writer.Close(); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			client.mu.RLock()
			lastPing := client.lastPing
			client.mu.RUnlock()

			if time.Since(lastPing) > 90*time.Second {
				log.Printf("Client timed out")
				return
			}
		}
	}
}

func (c *Client) queueMessage(msg []byte) error {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if len(c.messageQueue) >= c.maxQueueSize {
		return fmt.Errorf("message queue full")
	}

	msgCopy := make([]byte, len(msg))
	copy(msgCopy, msg)
	c.messageQueue = append(c.messageQueue, msgCopy)
	return nil
}

func (w *SaveToWebSocket) Subscribe(processor processor.Processor) {
	w.processors = append(w.processors, processor)
}

func (w *SaveToWebSocket) Process(ctx context.Context, msg processor.Message) error {
	payload, ok := msg.Payload.([]byte)
	if !ok {
		log.Printf("Expected []byte payload, got %T", msg.Payload)
		return nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("error unmarshaling payload: %w", err)
	}

	for client := range w.hub.clients {
		if !client.connected {
			continue
		}

		client.mu.RLock()
		registered := client.registered
		client.mu.RUnlock()

		if !registered {
			// Queue until the client has registered its filters
			if err := client.queueMessage(payload); err != nil {
				log.Printf("Failed to queue message: %v", err)
			}
			continue
		}

		if w.shouldSendToClient(client, data) {
			select {
			case client.send <- payload:
			default:
				close(client.send)
				delete(w.hub.clients, client)
			}
		}
	}

	return nil
}

func (w *SaveToWebSocket) shouldSendToClient(client *Client, data map[string]interface{}) bool {
	client.mu.RLock()
	filters := client.filters
	client.mu.RUnlock()

	// If no filters set, send all messages
	if len(filters.Types) == 0 && len(filters.RunKeys) == 0 && len(filters.Columns) == 0 {
		return true
	}

	if msgType, ok := data["type"].(string); ok {
		if len(filters.Types) > 0 {
			typeMatch := false
			for _, t := range filters.Types {
				if t == msgType {
					typeMatch = true
					break
				}
			}
			if !typeMatch {
				return false
			}
		}
	}

	if len(filters.RunKeys) > 0 {
		runMatch := false
		if runKey, ok := data["run_key"].(string); ok {
			for _, key := range filters.RunKeys {
				if key == runKey {
					runMatch = true
					break
				}
			}
		}
		if !runMatch {
			return false
		}
	}

	if len(filters.Columns) > 0 {
		if column, ok := data["column"].(string); ok {
			columnMatch := false
			for _, name := range filters.Columns {
				if name == column {
					columnMatch = true
					break
				}
			}
			if !columnMatch {
				return false
			}
		}
	}

	return true
}

func (w *SaveToWebSocket) Close() error {
	for client := range w.hub.clients {
		client.conn.Close()
	}

	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(ctx)
	}
	return nil
}
