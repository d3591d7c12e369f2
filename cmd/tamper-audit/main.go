package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// AuditEntry mirrors the entry layout of the audit trail. The tool is
// deliberately standalone so it can corrupt a database regardless of
// what the main binary thinks should be in it.
type AuditEntry struct {
	Seq       uint64                 `json:"seq"`
	Event     map[string]interface{} `json:"event"`
	DataHash  string                 `json:"data_hash"`
	PrevHash  string                 `json:"prev_hash"`
	ChainHash string                 `json:"chain_hash"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <audit-db-path>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "This tool corrupts the first audit entry so chain verification can be demonstrated\n")
		os.Exit(1)
	}

	dbPath := os.Args[1]
	fmt.Printf("Opening audit database: %s\n", dbPath)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	bucketName := []byte("events")

	var targetKey []byte
	var targetEntry AuditEntry

	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", bucketName)
		}

		cursor := bucket.Cursor()
		k, v := cursor.First()
		if k == nil {
			return fmt.Errorf("audit trail is empty")
		}

		var entry AuditEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("failed to decode first entry: %w", err)
		}

		targetKey = make([]byte, len(k))
		copy(targetKey, k)
		targetEntry = entry

		fmt.Printf("Found entry seq=%d\n", entry.Seq)
		fmt.Printf("  Original ChainHash: %s...\n", entry.ChainHash[:32])
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}

	// Rewrite the recorded event while keeping its hashes, the way an
	// attacker editing history would.
	targetEntry.Event["principal"] = "mallory"

	err = db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(targetEntry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketName).Put(targetKey, data)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write tampered entry: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Entry tampered. Run 'quorumgate audit --verify' to detect it.")
}
