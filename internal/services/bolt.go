package services

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const (
	prefsBucket  = "preferences"
	prefModelKey = "model"
	boltFileMode = 0600
)

// BoltDB implements the preference store using a BoltDB file. Only UI preferences are kept; the
// conversation itself is never written to disk.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens the database at path, creating it with 0600 permissions if it doesn't exist, and
// initializes the preferences bucket.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, boltFileMode, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(prefsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return BoltDB{}, fmt.Errorf("failed to create preferences bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// SelectedModel returns the stored model identifier, or an empty string if none was stored.
func (b BoltDB) SelectedModel(context.Context) (string, error) {
	var model string
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(prefsBucket))
		if bk == nil {
			return nil
		}
		model = string(bk.Get([]byte(prefModelKey)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read selected model: %w", err)
	}
	return model, nil
}

// SetSelectedModel stores model as the selected model identifier.
func (b BoltDB) SetSelectedModel(_ context.Context, model string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(prefsBucket))
		if bk == nil {
			return fmt.Errorf("bucket %s not found", prefsBucket)
		}
		return bk.Put([]byte(prefModelKey), []byte(model))
	})
	if err != nil {
		return fmt.Errorf("failed to store selected model: %w", err)
	}
	return nil
}

// Close closes the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
