package replica

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"collabtext/core"
	"collabtext/protocol"
	"github.com/gorilla/websocket"
)

// Client is one connected editing surface.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type envelope struct {
	client *Client
	data   []byte
}

// Hub maintains the set of connected editing surfaces and pushes renders to
// them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan envelope
	done       chan struct{}

	upgrader websocket.Upgrader
	// execute applies a command; render produces the current view.
	execute func(protocol.Command) error
	render  func() protocol.Render
}

// NewHub creates a hub whose clients' commands go to execute.
func NewHub(execute func(protocol.Command) error, render func() protocol.Render) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan envelope),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		execute: execute,
		render:  render,
	}
}

func (h *Hub) String() string {
	return "Hub"
}

// Run dispatches registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			core.LogDebug(h, "Client registered. Total clients: ", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				core.LogDebug(h, "Client unregistered. Total clients: ", len(h.clients))
			}
		case e := <-h.direct:
			if h.clients[e.client] {
				select {
				case e.client.send <- e.data:
				default:
				}
			}
		case message := <-h.broadcast:
			for client := range h.clients {
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

// Push sends the current render to every client.
func (h *Hub) Push() {
	data, err := json.Marshal(h.render())
	if err != nil {
		core.LogError(h, "Unable to encode render: ", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		core.LogWarn(h, "Broadcast queue full, skipping render")
	}
}

// ServeHTTP upgrades an editing surface connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		core.LogWarn(h, "Upgrade failed: ", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	if data, err := json.Marshal(h.render()); err == nil {
		client.send <- data
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd protocol.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			core.LogWarn(c.hub, "Error decoding command: ", err)
			c.reject(err)
			continue
		}
		if err := c.hub.execute(cmd); err != nil {
			core.LogDebug(c.hub, "Rejected ", cmd.Action, ": ", err)
			c.reject(err)
		}
	}
}

// reject tells only this client why its command failed.
func (c *Client) reject(cause error) {
	r := c.hub.render()
	r.Error = cause.Error()
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- envelope{client: c, data: data}:
	case <-c.hub.done:
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
