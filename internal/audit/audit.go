package audit

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/quorumgate/quorumgate/internal/event"
	"github.com/quorumgate/quorumgate/internal/hash"
)

var (
	EventsBucket   = []byte("events")
	MetadataBucket = []byte("metadata")
)

var (
	metaLastSeq  = []byte("last_seq")
	metaLastHash = []byte("last_hash")
)

// genesisSeed anchors the chain; the first entry links to its hash.
const genesisSeed = "quorumgate-audit-genesis"

// Entry is one recorded notification. DataHash covers the event itself;
// ChainHash links it to every entry before it, so rewriting history
// breaks the chain from the edit onward.
type Entry struct {
	Seq       uint64      `json:"seq"`
	Event     event.Event `json:"event"`
	DataHash  string      `json:"data_hash"`
	PrevHash  string      `json:"prev_hash"`
	ChainHash string      `json:"chain_hash"`
}

// Store is an append-only, tamper-evident trail of governance
// notifications backed by BoltDB. It implements event.Sink. Engine
// state is never stored here, only the observational events.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{EventsBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Emit appends one event to the trail.
func (s *Store) Emit(ev event.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(MetadataBucket)
		events := tx.Bucket(EventsBucket)

		seq := uint64(1)
		if raw := meta.Get(metaLastSeq); raw != nil {
			var last uint64
			if _, err := fmt.Sscanf(string(raw), "%d", &last); err != nil {
				return fmt.Errorf("corrupt last_seq metadata: %w", err)
			}
			seq = last + 1
		}

		prevHash := hash.CalculateString(genesisSeed)
		if raw := meta.Get(metaLastHash); raw != nil {
			prevHash = string(raw)
		}

		dataHash, err := hash.Calculate(ev)
		if err != nil {
			return fmt.Errorf("failed to hash event: %w", err)
		}

		entry := Entry{
			Seq:       seq,
			Event:     ev,
			DataHash:  dataHash,
			PrevHash:  prevHash,
			ChainHash: hash.ChainLink(prevHash, dataHash),
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}

		if err := events.Put([]byte(seqKey(seq)), data); err != nil {
			return err
		}
		if err := meta.Put(metaLastSeq, []byte(fmt.Sprintf("%d", seq))); err != nil {
			return err
		}
		return meta.Put(metaLastHash, []byte(entry.ChainHash))
	})
}

// Entries returns the full trail in append order.
func (s *Store) Entries() ([]Entry, error) {
	var out []Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(EventsBucket).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt audit entry at key %s: %w", k, err)
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// VerifyChain walks the trail recomputing every hash and reports the
// first broken link as a *TamperError.
func (s *Store) VerifyChain() error {
	entries, err := s.Entries()
	if err != nil {
		return err
	}

	prevHash := hash.CalculateString(genesisSeed)
	for _, entry := range entries {
		dataHash, err := hash.Calculate(entry.Event)
		if err != nil {
			return fmt.Errorf("failed to hash event at seq %d: %w", entry.Seq, err)
		}
		if dataHash != entry.DataHash {
			return NewTamperError(entry.Seq, "event data does not match its recorded hash")
		}
		if entry.PrevHash != prevHash {
			return NewTamperError(entry.Seq, "previous-hash link is broken")
		}
		if expected := hash.ChainLink(prevHash, dataHash); expected != entry.ChainHash {
			return NewTamperError(entry.Seq, "chained hash does not match")
		}
		prevHash = entry.ChainHash
	}

	return nil
}

// Root folds the trail's chain hashes into a single merkle root; the
// second return is the entry count.
func (s *Store) Root() (string, int, error) {
	entries, err := s.Entries()
	if err != nil {
		return "", 0, err
	}

	mt := hash.NewMerkleTree()
	for _, entry := range entries {
		mt.AddLeafHash(entry.ChainHash)
	}
	return mt.GetRoot(), len(entries), nil
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%016d", seq)
}
