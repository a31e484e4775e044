// Package evaluation runs batches of questions through the pipeline and
// aggregates success rates and timings per backend and category.
package evaluation

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/models"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"

	summaryWidth = 50
)

type Case struct {
	Backend  models.Backend
	Category string
	Question string
}

type Result struct {
	Case
	Status   string
	Summary  string
	Duration time.Duration
	Envelope models.ResponseEnvelope
}

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *apperrors.StandardError)
}

// Run answers every case in order. onDone, when set, sees each result as soon
// as it is available. A cancelled context stops before the next case.
func Run(ctx context.Context, runner Runner, cases []Case, onDone func(Result)) []Result {
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		envelope, _ := runner.Run(ctx, c.Question, c.Backend)
		r := Result{
			Case:     c,
			Duration: time.Since(start),
			Envelope: envelope,
		}
		if envelope.Error != nil {
			r.Status = StatusFailed
			r.Summary = Summarize(envelope.ErrorText())
		} else {
			r.Status = StatusSuccess
			r.Summary = Summarize(envelope.AnswerText())
		}

		results = append(results, r)
		if onDone != nil {
			onDone(r)
		}
	}
	return results
}

// Summarize shortens text to fit one table cell.
func Summarize(text string) string {
	if utf8.RuneCountInString(text) < summaryWidth {
		return text
	}
	runes := []rune(text)
	return string(runes[:summaryWidth-3]) + "..."
}

type Stats struct {
	Total     int
	Succeeded int
	Failed    int

	AverageOverall time.Duration
	// AverageByBackend and AverageByCategory are keyed by backend and category name.
	AverageByBackend  map[models.Backend]time.Duration
	CountByBackend    map[models.Backend]int
	AverageByCategory map[string]time.Duration
}

func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}

// Categories returns the category names in alphabetical order.
func (s Stats) Categories() []string {
	out := make([]string, 0, len(s.AverageByCategory))
	for c := range s.AverageByCategory {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func Aggregate(results []Result) Stats {
	s := Stats{
		Total:             len(results),
		AverageByBackend:  make(map[models.Backend]time.Duration),
		CountByBackend:    make(map[models.Backend]int),
		AverageByCategory: make(map[string]time.Duration),
	}

	var total time.Duration
	byBackend := make(map[models.Backend]time.Duration)
	byCategory := make(map[string]time.Duration)
	categoryCount := make(map[string]int)

	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
		total += r.Duration
		byBackend[r.Backend] += r.Duration
		s.CountByBackend[r.Backend]++
		byCategory[r.Category] += r.Duration
		categoryCount[r.Category]++
	}

	if s.Total > 0 {
		s.AverageOverall = total / time.Duration(s.Total)
	}
	for b, d := range byBackend {
		s.AverageByBackend[b] = d / time.Duration(s.CountByBackend[b])
	}
	for c, d := range byCategory {
		s.AverageByCategory[c] = d / time.Duration(categoryCount[c])
	}
	return s
}
