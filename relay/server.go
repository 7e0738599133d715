package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"collabtext/core"
	"collabtext/protocol"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 4 << 20

// Server accepts websocket connections and relays messages between the
// connections of each room.
type Server struct {
	broker    Broker
	directory Directory
	upgrader  websocket.Upgrader
	router    *mux.Router
}

// NewServer builds a relay on top of broker. directory may be nil.
func NewServer(broker Broker, directory Directory) *Server {
	if directory == nil {
		directory = NewMemoryDirectory()
	}
	s := &Server{
		broker:    broker,
		directory: directory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		router: mux.NewRouter(),
	}
	s.router.HandleFunc("/ws/{roomId}", s.handleConnections).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleConnections).Methods(http.MethodGet).Queries("roomId", "{roomId}")
	s.router.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

func (s *Server) String() string {
	return "Relay"
}

// Handler returns the HTTP handler serving the relay's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

type connection struct {
	id   string
	room string
	ws   *websocket.Conn
}

func (c *connection) String() string {
	return "Conn " + c.id + " room=" + c.room
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["roomId"]
	if room == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Subscribe before the handshake completes so the client misses nothing
	// published after it is connected.
	sub, err := s.broker.Subscribe(ctx, room)
	if err != nil {
		core.LogError(s, "Unable to subscribe to room ", room, ": ", err)
		http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		core.LogWarn(s, "Upgrade failed: ", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	c := &connection{id: uuid.NewString(), room: room, ws: ws}
	core.WithFields(c, log.Fields{"remote": r.RemoteAddr}).Info("Connected")

	// 2. Forward frames from the room to the client, skipping its own.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range sub.Frames() {
			if f.Origin == c.id {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, f.Data); err != nil {
				core.LogWarn(c, "Unable to write to client: ", err)
				ws.Close()
				return
			}
		}
		// the broker dropped us
		ws.Close()
	}()

	s.announce(ctx, c, protocol.TypeUserJoined)

	// 3. Publish what the client sends to the rest of the room.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			core.LogInfo(c, "Client disconnected: ", err)
			break
		}
		if !s.accept(c, data) {
			continue
		}
		if err := s.broker.Publish(ctx, room, Frame{Origin: c.id, Data: data}); err != nil {
			core.LogError(c, "Unable to publish: ", err)
		}
	}

	s.announce(ctx, c, protocol.TypeUserLeft)
	sub.Close()
	<-done
}

// accept reports whether a client message may be relayed. Only document
// updates for the connection's own room pass; presence is the relay's to send.
func (s *Server) accept(c *connection, data []byte) bool {
	m, err := protocol.Decode(data)
	if err != nil {
		core.LogWarn(c, "Dropping invalid message: ", err)
		return false
	}
	if m.RoomID != c.room {
		core.LogWarn(c, "Dropping message for room ", m.RoomID)
		return false
	}
	if m.Type != protocol.TypeDocUpdate {
		core.LogWarn(c, "Dropping client-sent ", m.Type, " message")
		return false
	}
	core.LogTrace(c, "Relaying ", len(data), " bytes")
	return true
}

// announce updates the presence count and tells the rest of the room.
func (s *Server) announce(ctx context.Context, c *connection, typ string) {
	var count int64
	var err error
	if typ == protocol.TypeUserJoined {
		count, err = s.broker.Join(ctx, c.room)
	} else {
		count, err = s.broker.Leave(ctx, c.room)
	}
	if err != nil {
		core.LogError(c, "Unable to update presence: ", err)
		return
	}
	if err := s.directory.Touch(ctx, c.room, count); err != nil {
		core.LogWarn(c, "Unable to record room: ", err)
	}
	data, err := protocol.Encode(protocol.Presence(typ, c.room, count))
	if err != nil {
		core.LogError(c, "Unable to encode presence: ", err)
		return
	}
	if err := s.broker.Publish(ctx, c.room, Frame{Origin: c.id, Data: data}); err != nil {
		core.LogError(c, "Unable to publish presence: ", err)
	}
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.directory.Rooms(r.Context())
	if err != nil {
		core.LogError(s, "Unable to list rooms: ", err)
		http.Error(w, "unable to list rooms", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rooms)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": core.Version,
		"uptime":  time.Since(core.StartTimestamp).Round(time.Second).String(),
	})
}
