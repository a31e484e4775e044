// Package docstore abstracts the document backend behind a read-only Store so
// the sandbox and the schema builder never touch a driver directly.
package docstore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrUnsupported = errors.New("operation not supported by this document store")
	ErrWriteStage  = errors.New("write stages are not allowed in aggregation pipelines")
	ErrInvalidID   = errors.New("invalid identifier")
)

// Document is one decoded document with plain Go values.
type Document = map[string]interface{}

// Filter uses the familiar query-operator vocabulary ($gt, $in, $and, ...).
type Filter = map[string]interface{}

type SortField struct {
	Field      string
	Descending bool
}

type FindOptions struct {
	Sort       []SortField
	Skip       int64
	Limit      int64
	Projection map[string]interface{}
}

// Store is the read surface of a document backend.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	// SampleOne returns the first document of a collection; ok is false when it is empty.
	SampleOne(ctx context.Context, collection string) (doc Document, ok bool, err error)
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error)
	FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Distinct(ctx context.Context, collection, field string, filter Filter) ([]interface{}, error)
	Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ID is a document identifier, always carried and rendered as a plain string.
type ID string

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

func (id ID) String() string { return string(id) }

// IsObjectID reports whether the id has the 12-byte hex shape.
func (id ID) IsObjectID() bool { return objectIDPattern.MatchString(string(id)) }

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// ParseID validates a user-supplied identifier.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(s) > 512 {
		return "", fmt.Errorf("%w: too long", ErrInvalidID)
	}
	return ID(s), nil
}

// NewID returns an ObjectId-shaped id: 4 bytes of unix time and 8 random bytes.
func NewID() ID {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:])
	return ID(hex.EncodeToString(b[:]))
}

// CheckPipeline rejects stages that would write.
func CheckPipeline(pipeline []Document) error {
	for _, stage := range pipeline {
		for op := range stage {
			switch op {
			case "$out", "$merge":
				return fmt.Errorf("%w: %s", ErrWriteStage, op)
			}
		}
	}
	return nil
}
