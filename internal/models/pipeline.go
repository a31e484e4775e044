// internal/models/pipeline.go
package models

// Query is one user question bound to a backend.
type Query struct {
	Text    string  `json:"text"`
	Backend Backend `json:"backend"`
}

// EmptyCollectionMarker stands in for the shape of a collection with no documents.
const EmptyCollectionMarker = "Empty Collection"

// SampleUnavailableMarker stands in for the shape of a collection whose
// contents could not be read. It says nothing about whether it is empty.
const SampleUnavailableMarker = "Sample unavailable"

// Entity is a table or collection plus its shape description.
type Entity struct {
	Name  string `json:"name"`
	Shape string `json:"shape"`
	Empty bool   `json:"empty,omitempty"`
}

// SchemaSnapshot describes the structure of the target store.
type SchemaSnapshot struct {
	Backend  Backend  `json:"backend"`
	Entities []Entity `json:"entities"`
}

// Entity returns the named entity, if present.
func (s SchemaSnapshot) Entity(name string) (Entity, bool) {
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

func (s SchemaSnapshot) Names() []string {
	names := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		names = append(names, e.Name)
	}
	return names
}

// GeneratedArtifact is the executable fragment pulled out of a completion.
type GeneratedArtifact struct {
	Backend Backend      `json:"backend"`
	Source  string       `json:"source"`
	Kind    ArtifactKind `json:"kind"`
}

type OutcomeKind string

const (
	OutcomeScalar OutcomeKind = "scalar"
	OutcomeRows   OutcomeKind = "rows"
	OutcomeError  OutcomeKind = "error"
)

// Record is one flat row or document.
type Record = map[string]interface{}

// ExecutionOutcome is the normalized result of running an artifact.
// Only the field matching Kind is meaningful.
type ExecutionOutcome struct {
	Kind    OutcomeKind
	Scalar  interface{}
	Rows    []Record
	Message string
}

func ScalarOutcome(v interface{}) ExecutionOutcome {
	return ExecutionOutcome{Kind: OutcomeScalar, Scalar: v}
}

func RowsOutcome(rows []Record) ExecutionOutcome {
	if rows == nil {
		rows = []Record{}
	}
	return ExecutionOutcome{Kind: OutcomeRows, Rows: rows}
}

func ErrorOutcome(msg string) ExecutionOutcome {
	return ExecutionOutcome{Kind: OutcomeError, Message: msg}
}

func (o ExecutionOutcome) Failed() bool {
	return o.Kind == OutcomeError
}

// ResponseEnvelope is the sole externally visible artifact of one pipeline run.
type ResponseEnvelope struct {
	Answer           *string  `json:"answer"`
	GeneratedQueries []string `json:"generatedQueries"`
	RawResults       []string `json:"rawResults"`
	Error            *string  `json:"error"`
}

// Succeeded reports whether the run reached DONE.
func (e ResponseEnvelope) Succeeded() bool {
	return e.Error == nil
}

func (e ResponseEnvelope) AnswerText() string {
	if e.Answer == nil {
		return ""
	}
	return *e.Answer
}

func (e ResponseEnvelope) ErrorText() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}
