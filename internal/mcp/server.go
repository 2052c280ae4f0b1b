// Package mcp exposes document analysis to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

// Processor is satisfied by *pipeline.Processor.
type Processor interface {
	Process(ctx context.Context, doc pipeline.Document) (pipeline.Report, error)
}

// Server wraps the pipeline and the optional history for MCP tools.
type Server struct {
	proc    Processor
	repo    repository.AnalysisRepository
	logger  *slog.Logger
	version string
}

func NewServer(proc Processor, repo repository.AnalysisRepository, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{proc: proc, repo: repo, logger: logger, version: version}
}

// MCPServer builds the tool set.
func (ms *Server) MCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		"property-verifier",
		ms.version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s.AddTool(
		mcp.NewTool(
			"analyze_document",
			mcp.WithDescription("Run OCR, field extraction and the LLM assessment on a local PDF, JPG or PNG property document."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the document on the server's filesystem")),
			mcp.WithString("document_type", mcp.Description("Rent Agreement, Title Deed or NOC (default Rent Agreement)")),
		),
		ms.handleAnalyzeDocument,
	)

	s.AddTool(
		mcp.NewTool(
			"list_document_types",
			mcp.WithDescription("List supported document types and their file formats."),
		),
		ms.handleListDocumentTypes,
	)

	s.AddTool(
		mcp.NewTool(
			"get_analysis",
			mcp.WithDescription("Fetch a stored analysis by id."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Analysis UUID")),
		),
		ms.handleGetAnalysis,
	)
	return s
}

// Run starts the MCP server on Stdio.
func (ms *Server) Run() error {
	ms.logger.Info("Starting MCP server on Stdio")
	return server.ServeStdio(ms.MCPServer())
}

func (ms *Server) handleAnalyzeDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	path, _ := args["path"].(string)
	rawType, _ := args["document_type"].(string)

	v := common.NewValidator().Field("path", path, common.Required, common.AllowedFile)
	if rawType != "" {
		v.Field("document_type", rawType, common.KnownDocumentType)
	}
	if err := v.Err(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	docType := constants.DefaultDocumentType
	if rawType != "" {
		docType, _ = constants.ParseDocumentType(rawType)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := storage.Info(abs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}
	hash, err := storage.HashFile(abs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}
	ms.logger.Info("mcp.analyze.start", "path", abs, "size", info.Size, "document_type", docType)

	rep, err := ms.proc.Process(ctx, pipeline.Document{
		Path:         abs,
		Filename:     filepath.Base(abs),
		DocumentType: docType,
		SHA256:       hash,
	})
	if err != nil {
		ms.logger.Error("mcp.analyze.failed", "path", abs, "error", err)
		return mcp.NewToolResultError(common.MapError(err).Message), nil
	}
	return jsonResult(rep)
}

func (ms *Server) handleListDocumentTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := make(map[string][]string, 3)
	for _, dt := range constants.AllDocumentTypes() {
		out[dt.String()] = constants.SupportedFormats(dt)
	}
	return jsonResult(out)
}

func (ms *Server) handleGetAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if ms.repo == nil {
		return mcp.NewToolResultError("analysis history is disabled"), nil
	}
	raw, _ := request.GetArguments()["id"].(string)
	if err := common.NewValidator().Field("id", raw, common.Required, common.UUID).Err(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id := uuid.MustParse(raw)
	rec, err := ms.repo.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("analysis %s not found", id)), nil
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(pipeline.ReportFromRecord(rec))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
