package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docchat/internal/chat"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/retrieval"
	"github.com/Aman-CERP/docchat/internal/store"
)

type fakeService struct {
	passages  []retrieval.Passage
	searchK   int
	searchErr error
	asked     []string
	status    chat.Status
}

func (f *fakeService) Search(_ context.Context, _ string, k int) ([]retrieval.Passage, error) {
	f.searchK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.passages, nil
}

func (f *fakeService) Chat(_ context.Context, message string) (*chat.Reply, error) {
	f.asked = append(f.asked, message)
	return &chat.Reply{
		TurnID:  "turn",
		Content: "Paris.",
		Sources: []chat.Source{
			{FileName: "france.txt", Slot: 0, Distance: 0.1},
			{FileName: "france.txt", Slot: 3, Distance: 0.2},
		},
	}, nil
}

func (f *fakeService) History(context.Context) ([]store.Message, error) {
	return []store.Message{{ID: 1, Role: store.RoleUser, Content: "hi"}}, nil
}

func (f *fakeService) Documents(context.Context) ([]store.FileInfo, error) {
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return []store.FileInfo{{FileName: "france.txt", Chunks: 4, FirstIngested: ts, LastIngested: ts}}, nil
}

func (f *fakeService) Status(context.Context) (*chat.Status, error) {
	st := f.status
	return &st, nil
}

func newTestServer(t *testing.T, svc *fakeService) *Server {
	t.Helper()
	s, err := NewServer(svc)
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	name, _ := s.Info()
	assert.Equal(t, "docchat", name)
	assert.NotNil(t, s.MCPServer())

	var names []string
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{ToolSearchDocuments, ToolAsk, ToolListDocuments, ToolIndexStatus}, names)
}

func TestCallTool_SearchDocuments(t *testing.T) {
	// Given: a service returning two passages
	svc := &fakeService{passages: []retrieval.Passage{
		{Slot: 2, FileName: "a.txt", Text: "alpha", Distance: 0.5},
		{Slot: 7, FileName: "b.txt", Text: "beta", Distance: 1.25},
	}}
	s := newTestServer(t, svc)

	// When
	text, err := s.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "letters", "limit": float64(2)})

	// Then
	require.NoError(t, err)
	assert.Equal(t, 2, svc.searchK)
	assert.Contains(t, text, "Found 2 passages")
	assert.Contains(t, text, "### 1. a.txt (slot 2, distance: 0.5000)")
	assert.Contains(t, text, "beta")
}

func TestCallTool_SearchLimitClamped(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc)

	_, err := s.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.DefaultTopK, svc.searchK)

	_, err = s.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "q", "limit": float64(1000)})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, svc.searchK)
}

func TestCallTool_SearchValidation(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	_, err := s.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "   "})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestCallTool_SearchServiceError(t *testing.T) {
	s := newTestServer(t, &fakeService{searchErr: dcerrors.New(dcerrors.ErrCodeEmbeddingFailed, "embed failed", nil)})

	_, err := s.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "q"})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeEmbeddingFailed, me.Code)
}

func TestCallTool_Ask(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc)

	text, err := s.CallTool(context.Background(), ToolAsk, map[string]any{"message": "Capital of France?"})

	require.NoError(t, err)
	assert.Equal(t, []string{"Capital of France?"}, svc.asked)
	assert.Equal(t, "Paris.\n\n**Sources:** `france.txt`", text)
}

func TestCallTool_AskEmpty(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc)

	_, err := s.CallTool(context.Background(), ToolAsk, map[string]any{})

	assert.Error(t, err)
	assert.Empty(t, svc.asked)
}

func TestCallTool_ListDocuments(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	text, err := s.CallTool(context.Background(), ToolListDocuments, nil)

	require.NoError(t, err)
	assert.Contains(t, text, "| france.txt | 4 | 2026-05-01T10:00:00Z |")
}

func TestCallTool_IndexStatus(t *testing.T) {
	s := newTestServer(t, &fakeService{status: chat.Status{
		Files: 1, Chunks: 5, Vectors: 4, Model: "static-256", Dimensions: 256, Backend: store.BackendFlat, Generation: 3,
	}})

	text, err := s.CallTool(context.Background(), ToolIndexStatus, nil)

	require.NoError(t, err)
	assert.Contains(t, text, "**Model:** static-256 (256 dimensions)")
	assert.Contains(t, text, "flat, generation 3")
	assert.Contains(t, text, "1 chunk(s) and index slot(s) are out of step")
}

func TestCallTool_Unknown(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	_, err := s.CallTool(context.Background(), "search_code", nil)

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeMethodNotFound, me.Code)
}

func TestSDKHandlers(t *testing.T) {
	svc := &fakeService{passages: []retrieval.Passage{{Slot: 1, FileName: "a.txt", Text: "alpha"}}}
	s := newTestServer(t, svc)
	ctx := context.Background()

	res, out, err := s.mcpSearchHandler(ctx, nil, SearchInput{Query: "alpha"})
	require.NoError(t, err)
	require.Len(t, out.Passages, 1)
	assert.Equal(t, "a.txt", out.Passages[0].FileName)
	require.Len(t, res.Content, 1)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "alpha")

	_, ask, err := s.mcpAskHandler(ctx, nil, AskInput{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", ask.Reply)
	assert.Len(t, ask.Sources, 2)

	_, docs, err := s.mcpListDocumentsHandler(ctx, nil, ListDocumentsInput{})
	require.NoError(t, err)
	require.Len(t, docs.Documents, 1)
	assert.Equal(t, "2026-05-01T10:00:00Z", docs.Documents[0].LastIngested)

	res, status, err := s.mcpIndexStatusHandler(ctx, nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, status.Drift)

	_, _, err = s.mcpSearchHandler(ctx, nil, SearchInput{})
	assert.Error(t, err)
}

func TestReadResource(t *testing.T) {
	s := newTestServer(t, &fakeService{})

	res, err := s.readResource(context.Background(), ResourceHistory)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	var messages []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0]["role"])

	res, err = s.readResource(context.Background(), ResourceDocuments)
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, `"file_name": "france.txt"`)

	_, err = s.readResource(context.Background(), "docchat://nope")
	assert.Error(t, err)
}

func TestFormatPassages_Empty(t *testing.T) {
	assert.Equal(t, `No passages found for "x"`, FormatPassages("x", nil))
}

func TestFormatPassages_Singular(t *testing.T) {
	out := FormatPassages("x", []retrieval.Passage{{FileName: "a.txt", Text: "t"}})
	assert.Contains(t, out, "Found 1 passage\n")
}

func TestFormatDocuments_Empty(t *testing.T) {
	assert.Equal(t, "No documents have been uploaded.", FormatDocuments(nil))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 5, clampLimit(0, 5, 1, 50))
	assert.Equal(t, 1, clampLimit(1, 5, 1, 50))
	assert.Equal(t, 50, clampLimit(99, 5, 1, 50))
}
