package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"nlquery-agent/internal/models"
)

const maxRawChars = 1500

func queryTitle(backend models.Backend) string {
	if backend == models.BackendDocument {
		return "Generated Lua"
	}
	return "Generated SQL"
}

// renderEnvelope prints the generated query, the raw result and the answer,
// skipping whatever the run did not get to.
func renderEnvelope(w io.Writer, backend models.Backend, env models.ResponseEnvelope) {
	for _, q := range env.GeneratedQueries {
		fmt.Fprintln(w, box(queryTitle(backend), q))
	}
	for _, r := range env.RawResults {
		fmt.Fprintln(w, box("Result", clip(r, maxRawChars)))
	}

	if env.Error != nil {
		fmt.Fprint(w, pterm.Error.Sprintln(env.ErrorText()))
	}
	if env.Answer != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Answer"))
		fmt.Fprintln(w, env.AnswerText())
	}
}

func renderSchema(w io.Writer, snapshot models.SchemaSnapshot) {
	if len(snapshot.Entities) == 0 {
		fmt.Fprint(w, pterm.Warning.Sprintln("No tables or collections found"))
		return
	}
	for _, e := range snapshot.Entities {
		fmt.Fprintln(w, box(e.Name, e.Shape))
	}
}

func box(title, content string) string {
	if strings.TrimSpace(content) == "" {
		content = "(empty)"
	}
	return pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(title)).
		WithPadding(1).
		Sprint(content)
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + fmt.Sprintf("\n... (%d more characters)", len(runes)-n)
}
