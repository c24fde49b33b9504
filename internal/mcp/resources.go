package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	ResourceHistory   = "docchat://history"
	ResourceDocuments = "docchat://documents"
)

const mimeJSON = "application/json"

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "history",
		URI:         ResourceHistory,
		Description: "The stored conversation, oldest message first",
		MIMEType:    mimeJSON,
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readResource(ctx, ResourceHistory)
	})

	s.mcp.AddResource(&mcp.Resource{
		Name:        "documents",
		URI:         ResourceDocuments,
		Description: "Uploaded files with chunk counts",
		MIMEType:    mimeJSON,
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readResource(ctx, ResourceDocuments)
	})
}

// readResource renders a resource as JSON text.
func (s *Server) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	var v any
	switch uri {
	case ResourceHistory:
		messages, err := s.svc.History(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		v = messages
	case ResourceDocuments:
		files, err := s.svc.Documents(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		v = toDocumentOutputs(files)
	default:
		return nil, NewInvalidParamsError("unknown resource: " + uri)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeJSON, Text: string(data)}},
	}, nil
}
