package storage

import "io"

// BlobStore holds scenario media (backgrounds, avatars).
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	URL(key string) string
}
