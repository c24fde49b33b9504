package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docchat/internal/chat"
	"github.com/Aman-CERP/docchat/internal/retrieval"
	"github.com/Aman-CERP/docchat/internal/store"
	"github.com/Aman-CERP/docchat/pkg/version"
)

const (
	serverName   = "docchat"
	defaultLimit = retrieval.DefaultTopK
	maxLimit     = 50
)

// Service is the part of the chat service exposed over MCP.
type Service interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Passage, error)
	Chat(ctx context.Context, message string) (*chat.Reply, error)
	History(ctx context.Context) ([]store.Message, error)
	Documents(ctx context.Context) ([]store.FileInfo, error)
	Status(ctx context.Context) (*chat.Status, error)
}

// Server is the MCP server. It bridges MCP clients with the chat service.
type Server struct {
	mcp    *mcp.Server
	svc    Service
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearchDocuments,
		Description: "Find the passages of the uploaded documents closest in meaning to a query. Returns file name, slot, distance and text for each passage, closest first.",
	},
	{
		Name:        ToolAsk,
		Description: "Ask a question grounded in the uploaded documents. Runs a full chat turn: the question and reply are stored in the conversation history.",
	},
	{
		Name:        ToolListDocuments,
		Description: "List uploaded files with their chunk counts.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report index size, embedding model, backend and how many chunks lack an index slot.",
	},
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(svc Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}

	s := &Server{
		svc:    svc,
		logger: slog.Default(),
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func description(name string) string {
	for _, t := range tools {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearchDocuments, Description: description(ToolSearchDocuments)}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAsk, Description: description(ToolAsk)}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolListDocuments, Description: description(ToolListDocuments)}, s.mcpListDocumentsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: description(ToolIndexStatus)}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// CallTool invokes a tool by name and returns its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolSearchDocuments:
		query, _ := args["query"].(string)
		limit := 0
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		_, text, err := s.search(ctx, SearchInput{Query: query, Limit: limit})
		return text, err
	case ToolAsk:
		message, _ := args["message"].(string)
		_, text, err := s.ask(ctx, AskInput{Message: message})
		return text, err
	case ToolListDocuments:
		_, text, err := s.listDocuments(ctx)
		return text, err
	case ToolIndexStatus:
		out, err := s.indexStatus(ctx)
		if err != nil {
			return "", err
		}
		return formatStatus(out), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

// traced logs the start and end of one tool call.
func (s *Server) traced(tool string, fn func() error) error {
	start := time.Now()
	requestID := uuid.NewString()[:8]
	s.logger.Debug("mcp_tool_started",
		slog.String("request_id", requestID),
		slog.String("tool", tool))

	err := fn()
	duration := time.Since(start)
	if err != nil {
		s.logger.Warn("mcp_tool_failed",
			slog.String("request_id", requestID),
			slog.String("tool", tool),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	s.logger.Info("mcp_tool_completed",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.Duration("duration", duration))
	return nil
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, string, error) {
	var out SearchOutput
	var text string
	err := s.traced(ToolSearchDocuments, func() error {
		query := strings.TrimSpace(in.Query)
		if query == "" {
			return NewInvalidParamsError("query parameter is required and must be a non-empty string")
		}
		passages, err := s.svc.Search(ctx, query, clampLimit(in.Limit, defaultLimit, 1, maxLimit))
		if err != nil {
			return err
		}
		out = SearchOutput{Passages: toPassageOutputs(passages)}
		text = FormatPassages(query, passages)
		return nil
	})
	return out, text, err
}

func (s *Server) ask(ctx context.Context, in AskInput) (AskOutput, string, error) {
	var out AskOutput
	var text string
	err := s.traced(ToolAsk, func() error {
		if strings.TrimSpace(in.Message) == "" {
			return NewInvalidParamsError("message parameter is required and must be a non-empty string")
		}
		reply, err := s.svc.Chat(ctx, in.Message)
		if err != nil {
			return err
		}
		out = toAskOutput(reply)
		text = FormatReply(reply)
		return nil
	})
	return out, text, err
}

func (s *Server) listDocuments(ctx context.Context) (ListDocumentsOutput, string, error) {
	var out ListDocumentsOutput
	var text string
	err := s.traced(ToolListDocuments, func() error {
		files, err := s.svc.Documents(ctx)
		if err != nil {
			return err
		}
		out = ListDocumentsOutput{Documents: toDocumentOutputs(files)}
		text = FormatDocuments(files)
		return nil
	})
	return out, text, err
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	var out *IndexStatusOutput
	err := s.traced(ToolIndexStatus, func() error {
		st, err := s.svc.Status(ctx)
		if err != nil {
			return err
		}
		out = &IndexStatusOutput{
			Files:      st.Files,
			Chunks:     st.Chunks,
			Messages:   st.Messages,
			Vectors:    st.Vectors,
			Model:      st.Model,
			Dimensions: st.Dimensions,
			Backend:    string(st.Backend),
			Generation: st.Generation,
			Drift:      st.Chunks - st.Vectors,
		}
		return nil
	})
	return out, err
}

func formatStatus(st *IndexStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	fmt.Fprintf(&sb, "- **Files:** %d\n", st.Files)
	fmt.Fprintf(&sb, "- **Chunks:** %d\n", st.Chunks)
	fmt.Fprintf(&sb, "- **Vectors:** %d\n", st.Vectors)
	fmt.Fprintf(&sb, "- **Messages:** %d\n", st.Messages)
	fmt.Fprintf(&sb, "- **Model:** %s (%d dimensions)\n", st.Model, st.Dimensions)
	fmt.Fprintf(&sb, "- **Backend:** %s, generation %d\n", st.Backend, st.Generation)
	if st.Drift != 0 {
		fmt.Fprintf(&sb, "\n%d chunk(s) and index slot(s) are out of step and will be skipped at retrieval.\n", abs(st.Drift))
	}
	return sb.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out, text, err := s.search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(text), out, nil
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	out, text, err := s.ask(ctx, in)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return textResult(text), out, nil
}

func (s *Server) mcpListDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	out, text, err := s.listDocuments(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}
	return textResult(text), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, *IndexStatusOutput, error) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
