package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const uploadBucketName = "uploads"

// DB defines the interface for the upload ledger
type DB interface {
	// SaveUpload records an accepted upload under its correlation ID
	SaveUpload(record *UploadRecord) error

	// GetUpload retrieves an upload record by correlation ID
	GetUpload(id string) (*UploadRecord, error)

	// DeleteUpload removes an upload record
	DeleteUpload(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(uploadBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveUpload records an accepted upload under its correlation ID
func (b *BoltDB) SaveUpload(record *UploadRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling upload record: %w", err)
		}
		return bucket.Put([]byte(record.ID), data)
	})
}

// GetUpload retrieves an upload record by correlation ID
func (b *BoltDB) GetUpload(id string) (*UploadRecord, error) {
	var record *UploadRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("upload not found: %s", id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteUpload removes an upload record
func (b *BoltDB) DeleteUpload(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
