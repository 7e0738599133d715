package replica

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"collabtext/core"
	"collabtext/protocol"
	"github.com/gorilla/mux"
)

// Agent connects a replica to its editing surfaces and to the relay.
type Agent struct {
	replica  *Replica
	hub      *Hub
	upstream *Upstream
}

// NewAgent wires r to the relay at relayURL.
func NewAgent(r *Replica, relayURL string, maxBackoff time.Duration) *Agent {
	a := &Agent{replica: r}
	a.hub = NewHub(a.execute, r.Render)
	a.upstream = NewUpstream(relayURL, maxBackoff, a.receive, a.connected)
	return a
}

func (a *Agent) String() string {
	return "Agent " + a.replica.Room()
}

// Replica returns the agent's replica.
func (a *Agent) Replica() *Replica {
	return a.replica
}

// Run serves editing surfaces and keeps the relay connection up until ctx is
// cancelled.
func (a *Agent) Run(ctx context.Context) error {
	go a.hub.Run(ctx)
	return a.upstream.Run(ctx)
}

// Execute applies a local editor command, forwards it to the relay and
// refreshes every editing surface.
func (a *Agent) Execute(cmd protocol.Command) error {
	return a.execute(cmd)
}

func (a *Agent) execute(cmd protocol.Command) error {
	m, err := a.replica.Execute(cmd)
	if err != nil {
		return err
	}
	a.upstream.Send(m)
	a.hub.Push()
	return nil
}

func (a *Agent) receive(m protocol.Message) {
	changed, err := a.replica.Apply(m)
	if err != nil {
		core.LogWarn(a, "Ignoring ", m.Type, ": ", err)
		return
	}
	// Someone new is in the room; bring them up to date.
	if m.Type == protocol.TypeUserJoined {
		a.sendSnapshot()
	}
	if changed {
		a.hub.Push()
	}
}

// connected publishes the whole store after a (re)connect so edits made while
// offline, or dropped from the send buffer, reach the room.
func (a *Agent) connected(dropped bool) {
	if dropped {
		core.LogInfo(a, "Updates were dropped while disconnected, resending full state")
	}
	a.sendSnapshot()
}

func (a *Agent) sendSnapshot() {
	if a.replica.Len() == 0 {
		return
	}
	m, err := a.replica.Snapshot()
	if err != nil {
		core.LogError(a, "Unable to serialize store: ", err)
		return
	}
	a.upstream.Send(m)
}

// Handler returns the agent's HTTP routes: the editor websocket, a JSON view of
// the document and, when uiDir is set, the static editor files.
func (a *Agent) Handler(uiDir string) http.Handler {
	router := mux.NewRouter()
	router.Handle("/ws", a.hub).Methods(http.MethodGet)
	router.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.replica.Render())
	}).Methods(http.MethodGet)
	if uiDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(uiDir)))
	}
	return router
}
