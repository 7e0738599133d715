package replica

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketReplica = []byte("replica")
	keySite       = []byte("site")
)

// DefaultLeaseBlock is how many clock values a lease reserves at a time.
const DefaultLeaseBlock = 1024

// StateStore keeps a replica's identity on disk: its site id and the highest
// clock value it may have used. Document content is not stored.
type StateStore struct {
	db *bbolt.DB
}

// OpenState opens (or creates) the state file at path.
func OpenState(path string) (*StateStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReplica)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &StateStore{db: db}, nil
}

// Close closes the state file.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Site returns the persisted site id, storing override or a fresh random id
// the first time. A non-empty override always wins and is persisted.
func (s *StateStore) Site(override string) (string, error) {
	var site string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketReplica)
		switch {
		case override != "":
			site = override
		case b.Get(keySite) != nil:
			site = string(b.Get(keySite))
			return nil
		default:
			site = uuid.NewString()
		}
		return b.Put(keySite, []byte(site))
	})
	return site, err
}

func clockKey(site string) []byte {
	return []byte("clock:" + site)
}

// Clock returns the clock high-water mark recorded for site, or 0.
func (s *StateStore) Clock(site string) (uint64, error) {
	var clock uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketReplica).Get(clockKey(site)); len(v) == 8 {
			clock = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return clock, err
}

// SaveClock records clock for site unless a higher value is already stored.
func (s *StateStore) SaveClock(site string, clock uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketReplica)
		if v := b.Get(clockKey(site)); len(v) == 8 && binary.BigEndian.Uint64(v) >= clock {
			return nil
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, clock)
		return b.Put(clockKey(site), buf)
	})
}

// ClockLease reserves clock values in blocks so a restarted replica resumes
// past anything it may have stamped, without a disk write per edit.
type ClockLease struct {
	state *StateStore
	site  string
	limit uint64
	block uint64
}

// NewLease resumes the lease for site and returns it with the clock value the
// replica must start from.
func NewLease(state *StateStore, site string, block uint64) (*ClockLease, uint64, error) {
	start, err := state.Clock(site)
	if err != nil {
		return nil, 0, err
	}
	l := &ClockLease{state: state, site: site, limit: start, block: block}
	if err := l.Ensure(start); err != nil {
		return nil, 0, err
	}
	return l, start, nil
}

// Ensure extends the lease when clock has reached its limit.
func (l *ClockLease) Ensure(clock uint64) error {
	if clock < l.limit {
		return nil
	}
	if clock > math.MaxUint64-l.block {
		return fmt.Errorf("clock %d leaves no room for a lease of %d", clock, l.block)
	}
	next := clock + l.block
	if err := l.state.SaveClock(l.site, next); err != nil {
		return err
	}
	l.limit = next
	return nil
}

// Limit returns the highest clock value covered by the lease.
func (l *ClockLease) Limit() uint64 {
	return l.limit
}
