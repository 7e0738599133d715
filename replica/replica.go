// Package replica hosts one document replica: it owns the replica's store,
// turns editor commands into CRDT operations and outbound relay messages, and
// merges what other replicas send back.
package replica

import (
	"fmt"
	"sync"

	"collabtext/core"
	"collabtext/crdt"
	"collabtext/protocol"
)

// Replica serialises access to a single crdt.Store.
type Replica struct {
	mu       sync.Mutex
	room     string
	snapshot bool
	store    *crdt.Store
	peers    int64
	lease    *ClockLease
}

// New creates a replica of room for site whose clock resumes after clock.
// With snapshot set, every outbound update carries the whole store instead of
// the changed record.
func New(room, site string, clock uint64, snapshot bool) *Replica {
	s := crdt.NewStore(site)
	s.Observe(clock)
	return &Replica{room: room, snapshot: snapshot, store: s}
}

func (r *Replica) String() string {
	return "Replica " + r.store.Site() + " room=" + r.room
}

// SetLease makes the replica persist its clock high-water mark through l.
func (r *Replica) SetLease(l *ClockLease) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lease = l
}

// Room returns the room the replica belongs to.
func (r *Replica) Room() string {
	return r.room
}

// Execute applies an editor command and returns the message to send to the
// relay.
func (r *Replica) Execute(cmd protocol.Command) (protocol.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	switch cmd.Action {
	case protocol.ActionInsert:
		c, err := r.store.Insert(cmd.Value, cmd.PrevID, cmd.NextID, cmd.Patch())
		if err != nil {
			return protocol.Message{}, err
		}
		id = c.ID
	case protocol.ActionDelete:
		if err := r.store.Delete(cmd.ID); err != nil {
			return protocol.Message{}, err
		}
		id = cmd.ID
	case protocol.ActionFormat:
		if err := r.store.UpdateMetadata(cmd.ID, cmd.Patch()); err != nil {
			return protocol.Message{}, err
		}
		id = cmd.ID
	default:
		return protocol.Message{}, fmt.Errorf("unknown action %q", cmd.Action)
	}
	r.renewLease()
	return r.outbound(id)
}

func (r *Replica) outbound(id string) (protocol.Message, error) {
	var data []byte
	var err error
	if r.snapshot {
		data, err = r.store.Serialize()
	} else {
		c, _ := r.store.Get(id)
		data, err = crdt.EncodeDelta(c)
	}
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.DocUpdate(r.room, data), nil
}

// Apply merges a message received from the relay. It reports whether the
// visible state (document or presence) changed.
func (r *Replica) Apply(m protocol.Message) (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}
	if m.RoomID != r.room {
		return false, fmt.Errorf("message for room %q delivered to room %q", m.RoomID, r.room)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch m.Type {
	case protocol.TypeDocUpdate:
		chars, err := crdt.DecodeDelta([]byte(m.Content))
		if err != nil {
			return false, err
		}
		n := r.store.Join(chars...)
		r.renewLease()
		core.LogTrace(r, "Merged ", len(chars), " records, ", n, " changed")
		return n > 0, nil
	default:
		count, err := m.Count()
		if err != nil {
			return false, err
		}
		changed := r.peers != count
		r.peers = count
		return changed, nil
	}
}

// Snapshot returns a doc-update carrying the whole store.
func (r *Replica) Snapshot() (protocol.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.store.Serialize()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.DocUpdate(r.room, data), nil
}

// Render returns the view the editing surface draws.
func (r *Replica) Render() protocol.Render {
	r.mu.Lock()
	defer r.mu.Unlock()
	return protocol.Render{
		Room:   r.room,
		Site:   r.store.Site(),
		Peers:  r.peers,
		Digest: r.store.Digest(),
		Spans:  protocol.Spans(r.store.Text()),
	}
}

// Text returns the visible document as a string.
func (r *Replica) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.String()
}

// Len returns the number of records held, tombstones included.
func (r *Replica) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Len()
}

// Clock returns the replica's logical clock.
func (r *Replica) Clock() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Clock()
}

func (r *Replica) renewLease() {
	if r.lease == nil {
		return
	}
	if err := r.lease.Ensure(r.store.Clock()); err != nil {
		core.LogError(r, "Unable to persist clock: ", err)
	}
}
