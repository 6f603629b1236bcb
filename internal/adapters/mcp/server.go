package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

const defaultLimit = 5

// Tools exposes the retrieval use cases as MCP tools.
type Tools struct {
	searcher  ports.DocumentSearcher
	query     ports.DocumentQueryService
	documents ports.DocumentReader
}

func NewTools(searcher ports.DocumentSearcher, query ports.DocumentQueryService, documents ports.DocumentReader) *Tools {
	return &Tools{searcher: searcher, query: query, documents: documents}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(name, version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic search over ingested documents. Returns the most relevant passages with scores."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 5)")),
		mcp.WithString("document_id", mcp.Description("Restrict results to one document")),
	), tools.SearchDocuments)

	s.AddTool(mcp.NewTool("ask_question",
		mcp.WithDescription("Answer a question from the ingested documents and cite the passages used."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of passages to consider (default 5)")),
		mcp.WithString("document_id", mcp.Description("Restrict retrieval to one document")),
	), tools.AskQuestion)

	if tools.documents != nil {
		s.AddTool(mcp.NewTool("list_documents",
			mcp.WithDescription("List ingested documents, most recently updated first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default 50)")),
		), tools.ListDocuments)
	}
	return s
}

func (t *Tools) SearchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := t.searcher.Search(ctx, query, req.GetInt("limit", defaultLimit), filterFrom(req))
	if err != nil {
		return toolError("search_documents", err), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No relevant passages found."), nil
	}

	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString(domain.ContextDelimiter)
		}
		fmt.Fprintf(&b, "[%d] %s (chunk %d, score %.3f)\n%s",
			i+1, sourceName(h.Point.Payload), h.Point.Payload.ChunkIndex, h.Score, h.Point.Payload.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *Tools) AskQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := t.query.Answer(ctx, question, req.GetInt("limit", defaultLimit), filterFrom(req))
	if err != nil {
		return toolError("ask_question", err), nil
	}

	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for i, h := range answer.Sources {
			fmt.Fprintf(&b, "\n[%d] %s (chunk %d, score %.3f)", i+1, sourceName(h.Point.Payload), h.Point.Payload.ChunkIndex, h.Score)
		}
	}
	fmt.Fprintf(&b, "\n\nConfidence: %s", answer.Confidence)
	return mcp.NewToolResultText(b.String()), nil
}

func (t *Tools) ListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := t.documents.List(ctx, req.GetInt("limit", 0))
	if err != nil {
		return toolError("list_documents", err), nil
	}
	raw, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal documents: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func filterFrom(req mcp.CallToolRequest) domain.SearchFilter {
	id := strings.TrimSpace(req.GetString("document_id", ""))
	if id == "" {
		return nil
	}
	return domain.SearchFilter{"document_id": id}
}

func sourceName(p domain.PointPayload) string {
	if p.DocumentName != "" {
		return p.DocumentName
	}
	return p.DocumentID
}

// toolError reports failures in-band so the client model can react to them.
func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp_tool_failed", "tool", tool, "code", domain.Code(err), "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.Code(err), err))
}
