package mcp

// Tool names.
const (
	ToolSearchDocuments = "search_documents"
	ToolAsk             = "ask"
	ToolListDocuments   = "list_documents"
	ToolIndexStatus     = "index_status"
)

// SearchInput is the input of search_documents.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the text to find similar passages for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of passages, default 5"`
}

// SearchOutput is the output of search_documents.
type SearchOutput struct {
	Passages []PassageOutput `json:"passages" jsonschema:"passages nearest to the query, closest first"`
}

// PassageOutput is one retrieved passage.
type PassageOutput struct {
	FileName string  `json:"file_name" jsonschema:"uploaded file the passage came from"`
	Slot     int     `json:"slot" jsonschema:"index slot of the passage"`
	Distance float32 `json:"distance" jsonschema:"squared L2 distance to the query, lower is closer"`
	Text     string  `json:"text" jsonschema:"passage text"`
}

// AskInput is the input of ask.
type AskInput struct {
	Message string `json:"message" jsonschema:"the user message; the turn is stored in the conversation history"`
}

// AskOutput is the output of ask.
type AskOutput struct {
	Reply            string         `json:"reply" jsonschema:"assistant reply"`
	Sources          []SourceOutput `json:"sources" jsonschema:"files the grounding passages came from"`
	CompletionFailed bool           `json:"completion_failed" jsonschema:"true when the reply is an LLM error message"`
}

// SourceOutput names a passage used to ground a reply.
type SourceOutput struct {
	FileName string  `json:"file_name"`
	Slot     int     `json:"slot"`
	Distance float32 `json:"distance"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput is the output of list_documents.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
}

// DocumentOutput describes one uploaded file.
type DocumentOutput struct {
	FileName      string `json:"file_name"`
	Chunks        int    `json:"chunks"`
	FirstIngested string `json:"first_ingested"`
	LastIngested  string `json:"last_ingested"`
}

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput is the output of index_status.
type IndexStatusOutput struct {
	Files      int    `json:"files"`
	Chunks     int    `json:"chunks"`
	Messages   int    `json:"messages"`
	Vectors    int    `json:"vectors"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Backend    string `json:"backend"`
	Generation uint64 `json:"generation"`
	// Drift is Chunks minus Vectors; non-zero means some rows or slots
	// will be skipped at retrieval time.
	Drift int `json:"drift"`
}
