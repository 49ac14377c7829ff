// Package blobstore keeps uploaded files in a bbolt database, one bucket per folder.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("blob not found")

// BoltStore stores blobs by folder and returns URLs served by the files route.
type BoltStore struct {
	db        *bbolt.DB
	publicURL string
}

// Open opens (or creates) the blob database at file.
func Open(file string, publicURL string) (*BoltStore, error) {
	db, err := bbolt.Open(file, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &BoltStore{db: db, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Store saves data under folder with a fresh key that keeps the file extension.
func (s *BoltStore) Store(ctx context.Context, data []byte, folder string, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validSegment(folder) {
		return "", fmt.Errorf("invalid folder %q", folder)
	}
	key := uuid.NewString() + strings.ToLower(path.Ext(filename))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(folder))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return fmt.Sprintf("%s/files/%s/%s", s.publicURL, folder, key), nil
}

// Get returns a copy of the blob stored under folder/key.
func (s *BoltStore) Get(folder, key string) ([]byte, error) {
	if !validSegment(folder) || !validSegment(key) {
		return nil, ErrNotFound
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(folder))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\")
}
