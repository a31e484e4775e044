// internal/models/query_types.go
package models

import (
	"fmt"
	"strings"
)

// Backend selects which data store a question is answered against.
type Backend string

const (
	BackendRelational Backend = "relational"
	BackendDocument   Backend = "document"
)

var backendAliases = map[string]Backend{
	"relational":    BackendRelational,
	"sql":           BackendRelational,
	"postgres":      BackendRelational,
	"postgresql":    BackendRelational,
	"pgx":           BackendRelational,
	"sqlite":        BackendRelational,
	"document":      BackendDocument,
	"mongo":         BackendDocument,
	"mongodb":       BackendDocument,
	"elasticsearch": BackendDocument,
	"memory":        BackendDocument,
}

// ParseBackend maps user-facing backend names onto a Backend.
func ParseBackend(s string) (Backend, error) {
	if b, ok := backendAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b, nil
	}
	return "", fmt.Errorf("unknown backend %q", s)
}

func (b Backend) Valid() bool {
	return b == BackendRelational || b == BackendDocument
}

// Language is the fence tag the completion service is asked to emit.
func (b Backend) Language() string {
	if b == BackendDocument {
		return "lua"
	}
	return "sql"
}

// ArtifactKind tells the executor how to treat the generated source.
type ArtifactKind string

const (
	// KindStatement is handed to the store driver as a single statement.
	KindStatement ArtifactKind = "STATEMENT"
	// KindExpression is evaluated in the sandbox for the value bound to result.
	KindExpression ArtifactKind = "EXPRESSION"
)

// KindFor returns the artifact kind produced for a backend.
func KindFor(b Backend) ArtifactKind {
	if b == BackendDocument {
		return KindExpression
	}
	return KindStatement
}
