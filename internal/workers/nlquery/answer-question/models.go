// internal/workers/nlquery/answer-question/models.go
package answerquestion

type Input struct {
	Question string `json:"question"`
	Backend  string `json:"backend,omitempty"`
}

// Output carries the envelope fields plus the run status for gateway routing.
type Output struct {
	Answer           *string  `json:"answer"`
	GeneratedQueries []string `json:"generatedQueries"`
	RawResults       []string `json:"rawResults"`
	Error            *string  `json:"error"`
	Backend          string   `json:"backend"`
	Status           string   `json:"status"`
	ErrorCode        string   `json:"errorCode,omitempty"`
}

const (
	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)
