// internal/pipeline/extract/extract.go
// Package extract pulls the executable artifact out of raw completion text.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"nlquery-agent/internal/models"
)

var ErrExtractionFailed = errors.New("EXTRACTION_FAILED")

const fence = "```"

var (
	fencePatterns = map[models.Backend]*regexp.Regexp{
		models.BackendRelational: fencedBlock("sql"),
		models.BackendDocument:   fencedBlock("lua"),
	}

	selectPattern = regexp.MustCompile(`(?is)\bSELECT\s.+?(?:;|\z)`)
	resultLine    = regexp.MustCompile(`(?m)^.*\bresult\s*=[^=].*$`)
)

// fencedBlock matches a closed fence tagged with lang; the tag must be followed
// by whitespace so ```sqlite or ```luau do not match.
func fencedBlock(lang string) *regexp.Regexp {
	return regexp.MustCompile("(?is)```[ \\t]*" + lang + "(?:[ \\t]*\\r?\\n|[ \\t]+)(.*?)```")
}

// Extract returns the first fenced block tagged with the backend's language,
// falling back to a backend-specific structural match. Text with an
// unterminated fence never yields an artifact.
func Extract(text string, backend models.Backend) (models.GeneratedArtifact, error) {
	pattern, ok := fencePatterns[backend]
	if !ok {
		return models.GeneratedArtifact{}, fmt.Errorf("%w: unknown backend %q", ErrExtractionFailed, backend)
	}

	if strings.Count(text, fence)%2 != 0 {
		return models.GeneratedArtifact{}, fmt.Errorf("%w: unterminated code fence", ErrExtractionFailed)
	}

	if m := pattern.FindStringSubmatch(text); m != nil {
		source := strings.TrimSpace(m[1])
		if source == "" {
			return models.GeneratedArtifact{}, fmt.Errorf("%w: empty %s block", ErrExtractionFailed, backend.Language())
		}
		return artifact(backend, source), nil
	}

	var source string
	if backend == models.BackendRelational {
		source = relationalFallback(text)
	} else {
		source = documentFallback(text)
	}
	if source == "" {
		return models.GeneratedArtifact{}, fmt.Errorf("%w: no %s code found", ErrExtractionFailed, backend.Language())
	}
	return artifact(backend, source), nil
}

func artifact(backend models.Backend, source string) models.GeneratedArtifact {
	return models.GeneratedArtifact{
		Backend: backend,
		Source:  source,
		Kind:    models.KindFor(backend),
	}
}

// relationalFallback takes the first SELECT up to a terminator or the end of text.
func relationalFallback(text string) string {
	loc := selectPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	source := text[loc[0]:loc[1]]
	if i := strings.Index(source, fence); i >= 0 {
		source = source[:i]
	}
	return strings.TrimSpace(source)
}

// documentFallback takes everything from the first line binding result.
func documentFallback(text string) string {
	loc := resultLine.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	source := text[loc[0]:]
	if i := strings.Index(source, fence); i >= 0 {
		source = source[:i]
	}
	return strings.TrimSpace(source)
}
