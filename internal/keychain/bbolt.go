package keychain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	entriesBucket = []byte("entries") // entry id -> JSON entry
	userBucket    = []byte("by_user") // userID + "/" + entry id -> entry id
	syncBucket    = []byte("sync")    // userID -> RFC3339 timestamp of last passkey sync
)

// BoltStore is a bbolt-backed Store.
type BoltStore struct {
	db *bolt.DB
}

// Open opens or creates the keychain database at the given path.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening keychain database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{entriesBucket, userBucket, syncBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Create persists a new entry and returns its id.
func (s *BoltStore) Create(entry Entry) (string, error) {
	if entry.UserID == "" || entry.Type == "" {
		return "", fmt.Errorf("keychain entry requires userId and type")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding entry: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(entriesBucket).Put([]byte(entry.ID), data); err != nil {
			return err
		}
		return tx.Bucket(userBucket).Put(userKey(entry.UserID, entry.ID), []byte(entry.ID))
	})
	if err != nil {
		return "", fmt.Errorf("writing entry: %w", err)
	}
	return entry.ID, nil
}

// ListByUser returns all entries for a user.
func (s *BoltStore) ListByUser(userID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		all := tx.Bucket(entriesBucket)
		c := tx.Bucket(userBucket).Cursor()
		prefix := []byte(userID + "/")
		for k, id := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, id = c.Next() {
			data := all.Get(id)
			if data == nil {
				continue
			}
			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("decoding entry %s: %w", id, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetByCredentialID returns the entry bound to a credential, or nil if no
// such entry exists.
func (s *BoltStore) GetByCredentialID(userID, credentialID string) (*Entry, error) {
	entries, err := s.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].CredentialID == credentialID {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// MarkSyncStatus records that the user's passkey set changed, for UI flags
// kept outside this store.
func (s *BoltStore) MarkSyncStatus(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(syncBucket).Put([]byte(userID), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// LastSync returns the recorded sync time for a user, or zero time.
func (s *BoltStore) LastSync(userID string) (time.Time, error) {
	var ts time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(syncBucket).Get([]byte(userID))
		if v == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			return fmt.Errorf("parsing sync timestamp: %w", err)
		}
		ts = parsed
		return nil
	})
	return ts, err
}

func userKey(userID, entryID string) []byte {
	return []byte(userID + "/" + entryID)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
