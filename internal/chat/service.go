// Package chat is the docchat application service: document ingestion, chat
// turns and history, built on the corpus, the document store, the embedder
// and the completion client.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/docchat/internal/chunk"
	"github.com/Aman-CERP/docchat/internal/completion"
	"github.com/Aman-CERP/docchat/internal/config"
	"github.com/Aman-CERP/docchat/internal/embed"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/extract"
	"github.com/Aman-CERP/docchat/internal/index"
	"github.com/Aman-CERP/docchat/internal/metrics"
	"github.com/Aman-CERP/docchat/internal/retrieval"
	"github.com/Aman-CERP/docchat/internal/store"
)

// DocumentStore is the relational persistence the service needs.
type DocumentStore interface {
	AddChunks(ctx context.Context, fileName string, texts []string) ([]int64, error)
	DeleteChunks(ctx context.Context, ids []int64) (int64, error)
	GetChunk(ctx context.Context, id int64) (*store.Chunk, error)
	AddMessage(ctx context.Context, role store.Role, content string) (*store.Message, error)
	ListMessages(ctx context.Context) ([]store.Message, error)
	ClearMessages(ctx context.Context) (int64, error)
	ListFiles(ctx context.Context) ([]store.FileInfo, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Corpus is the searchable vector index with its add+persist entry point.
type Corpus interface {
	Commit(ctx context.Context, vectors [][]float32, refs []store.ChunkRef) (int, error)
	Search(ctx context.Context, query []float32, k int) ([]store.Hit, error)
	Resolve(slot int) (store.ChunkRef, bool)
	Size() int
	Manifest() index.Manifest
}

// refresher is implemented by read-only corpora that follow another writer.
type refresher interface {
	ReadOnly() bool
	Refresh() (bool, error)
}

// Options configures a Service. Docs, Corpus, Embedder, Chunker and
// Completer are required.
type Options struct {
	Docs      DocumentStore
	Corpus    Corpus
	Embedder  embed.Embedder
	Chunker   chunk.Chunker
	Completer completion.Completer
	Metrics   *metrics.Metrics

	// UploadDir keeps a copy of each uploaded file; empty disables it.
	UploadDir      string
	MaxUploadBytes int64

	TopK          int
	ContextBudget int
	SystemPrompt  string
}

// Service runs ingestion and chat turns.
type Service struct {
	opts      Options
	retriever *retrieval.Retriever
	metrics   *metrics.Metrics
}

// New validates opts and creates a Service.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Docs == nil:
		return nil, fmt.Errorf("chat: document store is required")
	case opts.Corpus == nil:
		return nil, fmt.Errorf("chat: corpus is required")
	case opts.Embedder == nil:
		return nil, fmt.Errorf("chat: embedder is required")
	case opts.Chunker == nil:
		return nil, fmt.Errorf("chat: chunker is required")
	case opts.Completer == nil:
		return nil, fmt.Errorf("chat: completer is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = retrieval.DefaultContextBudget
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = config.DefaultSystemPrompt
	}

	m := opts.Metrics
	s := &Service{opts: opts, metrics: m}
	s.retriever = retrieval.New(opts.Embedder, opts.Corpus, opts.Docs,
		retrieval.WithDriftHandler(func(slot int, reason retrieval.DriftReason) {
			retrieval.LogDrift(slot, reason)
			m.RecordDrift(string(reason))
		}))
	m.SetIndexedVectors(opts.Corpus.Size())
	return s, nil
}

// IngestResult describes one indexed upload.
type IngestResult struct {
	FileName  string `json:"file_name"`
	Chunks    int    `json:"chunks"`
	FirstSlot int    `json:"first_slot"`
}

// Ingest validates, stores, extracts, chunks, embeds and indexes an upload.
// Chunk rows are committed before the corpus so a slot never points at a
// chunk id that could be handed out again. If the corpus commit fails the
// rows are deleted; rows left behind by a crash are stored but unsearchable.
// Once embedding is done the store and corpus steps ignore cancellation.
// Text with no words indexes nothing.
func (s *Service) Ingest(ctx context.Context, name string, data []byte) (result *IngestResult, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			s.metrics.RecordUpload(metrics.OutcomeError, 0)
			slog.Warn("document_ingest_failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
		}
	}()

	if strings.TrimSpace(name) == "" {
		return nil, dcerrors.New(dcerrors.ErrCodeNoFile, "no file uploaded", nil)
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, dcerrors.New(dcerrors.ErrCodeFileTooLarge, "file too large", nil).
			WithDetail("limit_bytes", fmt.Sprint(s.opts.MaxUploadBytes))
	}
	safe, err := extract.SecureFilename(name)
	if err != nil {
		return nil, err
	}
	if !extract.Supported(safe) {
		return nil, dcerrors.New(dcerrors.ErrCodeUnsupportedType, "unsupported file type", nil).
			WithDetail("file", safe)
	}

	if err := s.saveUpload(safe, data); err != nil {
		return nil, err
	}

	text, err := extract.Extract(safe, data)
	if err != nil {
		return nil, err
	}

	chunks := s.opts.Chunker.Chunk(text)
	result = &IngestResult{FileName: safe, Chunks: len(chunks), FirstSlot: s.opts.Corpus.Size()}
	if len(chunks) == 0 {
		s.metrics.RecordUpload(metrics.OutcomeOK, 0)
		slog.Info("document_ingested",
			slog.String("file", safe),
			slog.Int("chunks", 0),
			slog.Duration("duration", time.Since(start)))
		return result, nil
	}

	vectors, err := s.opts.Embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, dcerrors.New(dcerrors.ErrCodeEmbeddingFailed, "failed to embed document", err).
			WithDetail("file", safe)
	}
	if len(vectors) != len(chunks) {
		return nil, dcerrors.InternalError(
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}

	first, err := s.commitChunks(context.WithoutCancel(ctx), safe, chunks, vectors)
	if err != nil {
		return nil, err
	}
	result.FirstSlot = first

	s.metrics.RecordUpload(metrics.OutcomeOK, len(chunks))
	s.metrics.SetIndexedVectors(s.opts.Corpus.Size())
	slog.Info("document_ingested",
		slog.String("file", safe),
		slog.Int("chunks", len(chunks)),
		slog.Int("first_slot", result.FirstSlot),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// commitChunks stores the chunk rows, then adds their vectors to the corpus.
func (s *Service) commitChunks(ctx context.Context, file string, chunks []string, vectors [][]float32) (int, error) {
	ids, err := s.opts.Docs.AddChunks(ctx, file, chunks)
	if err != nil {
		return 0, dcerrors.New(dcerrors.ErrCodeStorageFailed, "failed to store document", err)
	}

	refs := make([]store.ChunkRef, len(ids))
	for i, id := range ids {
		refs[i] = store.ChunkRef{ChunkID: id, FileName: file}
	}
	first, err := s.opts.Corpus.Commit(ctx, vectors, refs)
	if err == nil {
		return first, nil
	}

	if _, derr := s.opts.Docs.DeleteChunks(ctx, ids); derr != nil {
		slog.Warn("unindexed_chunks_left",
			slog.String("file", file),
			slog.Int("chunks", len(ids)),
			slog.String("error", derr.Error()))
	}
	if _, ok := dcerrors.As(err); ok {
		return 0, err
	}
	return 0, dcerrors.New(dcerrors.ErrCodeStorageFailed, "failed to index document", err)
}

func (s *Service) saveUpload(name string, data []byte) error {
	if s.opts.UploadDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return dcerrors.IOError("failed to create upload directory", err)
	}
	if err := os.WriteFile(filepath.Join(s.opts.UploadDir, name), data, 0o644); err != nil {
		return dcerrors.IOError("failed to save upload", err)
	}
	return nil
}

// Source is a passage that grounded a reply.
type Source struct {
	FileName string  `json:"file_name"`
	Slot     int     `json:"slot"`
	Distance float32 `json:"distance"`
}

// Reply is the outcome of a chat turn.
type Reply struct {
	TurnID           string   `json:"turn_id"`
	Content          string   `json:"reply"`
	Sources          []Source `json:"sources"`
	CompletionFailed bool     `json:"completion_failed"`
}

// Chat runs one turn: the user message is stored, passages are retrieved, the
// completion is requested and the reply is stored. Retrieval and completion
// failures never fail the turn; a completion failure becomes the reply text.
func (s *Service) Chat(ctx context.Context, message string) (*Reply, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return nil, dcerrors.New(dcerrors.ErrCodeMessageEmpty, "empty message", nil)
	}

	turnID := uuid.NewString()
	logger := slog.With(slog.String("turn_id", turnID))

	if _, err := s.opts.Docs.AddMessage(ctx, store.RoleUser, msg); err != nil {
		s.metrics.RecordChatTurn(metrics.OutcomeError)
		return nil, dcerrors.New(dcerrors.ErrCodeStorageFailed, "failed to store message", err)
	}

	s.refresh()
	passages, err := s.retriever.Retrieve(ctx, msg, s.opts.TopK)
	if err != nil {
		logger.Warn("retrieval_failed", slog.String("error", err.Error()))
		passages = nil
	}
	s.metrics.RecordRetrieval(len(passages))

	system := retrieval.BuildSystemPrompt(s.opts.SystemPrompt, passages, s.opts.ContextBudget)

	start := time.Now()
	content, err := s.opts.Completer.Complete(ctx, system, msg)
	failed := err != nil
	s.metrics.RecordCompletion(time.Since(start), failed)
	if failed {
		content = completion.FailureReply(err)
		logger.Warn("completion_failed", slog.String("error", err.Error()))
	}

	// The reply is stored even if the caller has gone away.
	if _, err := s.opts.Docs.AddMessage(context.WithoutCancel(ctx), store.RoleAssistant, content); err != nil {
		s.metrics.RecordChatTurn(metrics.OutcomeError)
		return nil, dcerrors.New(dcerrors.ErrCodeStorageFailed, "failed to store reply", err)
	}

	outcome := metrics.OutcomeOK
	if failed {
		outcome = metrics.OutcomeCompletionFailed
	}
	s.metrics.RecordChatTurn(outcome)

	sources := make([]Source, len(passages))
	for i, p := range passages {
		sources[i] = Source{FileName: p.FileName, Slot: p.Slot, Distance: p.Distance}
	}
	logger.Info("chat_turn_completed",
		slog.Int("passages", len(passages)),
		slog.Bool("completion_failed", failed),
		slog.Duration("completion_duration", time.Since(start)))

	return &Reply{
		TurnID:           turnID,
		Content:          content,
		Sources:          sources,
		CompletionFailed: failed,
	}, nil
}

// Search retrieves passages without calling the completion endpoint.
func (s *Service) Search(ctx context.Context, query string, k int) ([]retrieval.Passage, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, dcerrors.New(dcerrors.ErrCodeInvalidInput, "empty query", nil)
	}
	if k <= 0 {
		k = s.opts.TopK
	}
	s.refresh()
	return s.retriever.Retrieve(ctx, q, k)
}

// refresh picks up generations committed by the writing process when the
// corpus was opened read-only. A failed reload keeps the current generation.
func (s *Service) refresh() {
	r, ok := s.opts.Corpus.(refresher)
	if !ok || !r.ReadOnly() {
		return
	}
	if _, err := r.Refresh(); err != nil {
		slog.Warn("corpus_refresh_failed", slog.String("error", err.Error()))
	}
}

// History returns every message, oldest first.
func (s *Service) History(ctx context.Context) ([]store.Message, error) {
	return s.opts.Docs.ListMessages(ctx)
}

// Reset deletes the chat history. Documents and the index are kept.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	n, err := s.opts.Docs.ClearMessages(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("history_reset", slog.Int64("messages", n))
	return n, nil
}

// Documents lists uploaded files.
func (s *Service) Documents(ctx context.Context) ([]store.FileInfo, error) {
	return s.opts.Docs.ListFiles(ctx)
}

// Status summarises the stores and the live index generation.
type Status struct {
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Messages   int           `json:"messages"`
	Vectors    int           `json:"vectors"`
	Model      string        `json:"model"`
	Dimensions int           `json:"dimensions"`
	Backend    store.Backend `json:"backend"`
	Generation uint64        `json:"generation"`
}

// Status reports counts from the document store and the corpus.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	s.refresh()
	stats, err := s.opts.Docs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	m := s.opts.Corpus.Manifest()
	return &Status{
		Files:      stats.Files,
		Chunks:     stats.Chunks,
		Messages:   stats.Messages,
		Vectors:    s.opts.Corpus.Size(),
		Model:      s.opts.Embedder.ModelName(),
		Dimensions: s.opts.Embedder.Dimensions(),
		Backend:    m.Backend,
		Generation: m.Generation,
	}, nil
}
