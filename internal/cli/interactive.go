package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/models"
)

var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"shell"},
	Short:   "Ask questions one after another",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

type commandKind int

const (
	cmdNone commandKind = iota
	cmdAsk
	cmdSwitch
	cmdSchema
	cmdHelp
	cmdExit
)

type command struct {
	kind     commandKind
	backend  models.Backend
	question string
	err      error
}

var exitWords = map[string]bool{"exit": true, "quit": true, "salir": true}

// parseCommand reads one prompt line. "switch <backend>" and "use <backend>"
// change the target, anything unrecognised is a question.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}
	}

	lower := strings.ToLower(line)
	if exitWords[lower] {
		return command{kind: cmdExit}
	}
	switch lower {
	case "help", "?":
		return command{kind: cmdHelp}
	case "schema":
		return command{kind: cmdSchema}
	}

	fields := strings.Fields(lower)
	if len(fields) == 2 && (fields[0] == "switch" || fields[0] == "use") {
		backend, err := models.ParseBackend(fields[1])
		return command{kind: cmdSwitch, backend: backend, err: err}
	}
	return command{kind: cmdAsk, question: line}
}

// asker is the part of the pipeline the prompt drives.
type asker interface {
	Run(ctx context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *apperrors.StandardError)
	Describe(ctx context.Context, backend models.Backend) (models.SchemaSnapshot, error)
	Supports(backend models.Backend) bool
}

type shell struct {
	pipeline asker
	backend  models.Backend
	in       *bufio.Reader
	out      io.Writer
}

func runInteractive(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Println(pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("nlquery")).
		WithPadding(1).
		Sprint("Ask a question about your data.\nType 'help' for commands, 'exit' to leave."))

	p := &shell{pipeline: s.app.Pipeline, backend: s.backend, in: bufio.NewReader(os.Stdin), out: os.Stdout}
	return p.loop(ctx)
}

// loop reads lines until exit, end of input or cancellation.
func (p *shell) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(p.out, "\n[%s] > ", p.backend)

		line, err := p.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		cmd := parseCommand(line)
		if cmd.kind == cmdExit {
			fmt.Fprintln(p.out, "Bye.")
			return nil
		}
		p.handle(ctx, cmd)

		if eof {
			fmt.Fprintln(p.out)
			return nil
		}
	}
}

func (p *shell) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdNone:
	case cmdHelp:
		fmt.Fprintln(p.out, helpText)
	case cmdSwitch:
		switch {
		case cmd.err != nil:
			fmt.Fprint(p.out, pterm.Error.Sprintln(cmd.err.Error()))
		case !p.pipeline.Supports(cmd.backend):
			fmt.Fprint(p.out, pterm.Warning.Sprintf("backend %s is not configured\n", cmd.backend))
		default:
			p.backend = cmd.backend
			fmt.Fprint(p.out, pterm.Info.Sprintf("now querying the %s backend\n", p.backend))
		}
	case cmdSchema:
		snapshot, err := p.pipeline.Describe(ctx, p.backend)
		if err != nil {
			fmt.Fprint(p.out, pterm.Error.Sprintln(apperrors.Normalize(err).Human()))
			return
		}
		renderSchema(p.out, snapshot)
	case cmdAsk:
		envelope, _ := p.pipeline.Run(ctx, cmd.question, p.backend)
		renderEnvelope(p.out, p.backend, envelope)
	}
}

const helpText = `Commands:
  switch <backend>   query another backend (postgres, sql, mongo, document); "use" works too
  schema             show the tables or collections of the current backend
  help               show this text
  exit               leave (also quit, salir)
Anything else is answered as a question.`
