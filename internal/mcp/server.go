// Package mcp exposes the pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"nlquery-agent/internal/common/config"
	apperrors "nlquery-agent/internal/common/errors"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/models"
)

const (
	ToolAnswerQuestion = "answer_question"
	ToolDescribeSchema = "describe_schema"
)

// Pipeline is what the tools call into.
type Pipeline interface {
	Run(ctx context.Context, question string, backend models.Backend) (models.ResponseEnvelope, *apperrors.StandardError)
	Describe(ctx context.Context, backend models.Backend) (models.SchemaSnapshot, error)
}

// ToolDeps holds shared dependencies for the tool handlers.
type ToolDeps struct {
	Pipeline       Pipeline
	DefaultBackend models.Backend
	Logger         logger.Logger
}

type Server struct {
	cfg  config.MCPConfig
	mcp  *mcpserver.MCPServer
	http *mcpserver.StreamableHTTPServer
	log  logger.Logger
}

func NewServer(cfg config.MCPConfig, version string, deps *ToolDeps) *Server {
	srv := mcpserver.NewMCPServer(
		"nlquery-agent",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	answerTool := mcp.NewTool(ToolAnswerQuestion,
		mcp.WithDescription("Answer a natural-language question by generating and running a read-only query against the configured data store. Returns the answer, the generated query and the raw result."),
		mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		mcp.WithString("backend", mcp.Description("relational (sql, postgres) or document (mongo); uses the default when omitted")),
	)
	describeTool := mcp.NewTool(ToolDescribeSchema,
		mcp.WithDescription("Describe the tables or collections of a backend"),
		mcp.WithString("backend", mcp.Description("relational or document"), mcp.Required()),
	)

	srv.AddTool(answerTool, deps.HandleAnswerQuestion)
	srv.AddTool(describeTool, deps.HandleDescribeSchema)

	path := cfg.Path
	if path == "" {
		path = "/mcp"
	}
	return &Server{
		cfg:  cfg,
		mcp:  srv,
		http: mcpserver.NewStreamableHTTPServer(srv, mcpserver.WithEndpointPath(path)),
		log:  deps.Logger.WithFields(map[string]interface{}{"component": "mcp"}),
	}
}

// Start serves streamable HTTP until Shutdown (blocking).
func (s *Server) Start() error {
	s.log.Info("mcp server listening", map[string]interface{}{"address": s.cfg.Address})
	if err := s.http.Start(s.cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// HandleAnswerQuestion runs one question. Pipeline failures come back as tool
// errors carrying the whole envelope so the caller still sees partial artifacts.
func (d *ToolDeps) HandleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := request.GetString("question", "")
	if strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question parameter is required"), nil
	}

	backend, err := d.backend(request.GetString("backend", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	envelope, failure := d.Pipeline.Run(ctx, question, backend)
	payload, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	if failure != nil {
		d.Logger.Warn("tool call failed", map[string]interface{}{
			"tool":      ToolAnswerQuestion,
			"backend":   string(backend),
			"errorCode": string(failure.Code),
		})
		return mcp.NewToolResultError(string(payload)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (d *ToolDeps) HandleDescribeSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("backend", "")
	if strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("backend parameter is required"), nil
	}
	backend, err := models.ParseBackend(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snapshot, err := d.Pipeline.Describe(ctx, backend)
	if err != nil {
		return mcp.NewToolResultError(apperrors.Normalize(err).Human()), nil
	}

	var sb strings.Builder
	for i, e := range snapshot.Entities {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s:\n%s", e.Name, e.Shape)
	}
	if len(snapshot.Entities) == 0 {
		sb.WriteString("(no tables or collections)")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (d *ToolDeps) backend(raw string) (models.Backend, error) {
	if strings.TrimSpace(raw) == "" {
		return d.DefaultBackend, nil
	}
	return models.ParseBackend(raw)
}
