package qa

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/applyd/kit"
)

// RegisterMCP registers question-bank tools on an MCP server.
func (s *Store) RegisterMCP(srv *mcp.Server) {
	s.registerFindTool(srv)
	s.registerStoreTool(srv)
	s.registerListTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- find ---

type findReq struct {
	Question  string  `json:"question"`
	Threshold float64 `json:"threshold,omitempty"`
}

func (s *Store) registerFindTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "qa_find_answer",
		Description: "Look up a previously answered application question by fuzzy similarity.",
		InputSchema: inputSchema(map[string]any{
			"question":  map[string]any{"type": "string", "description": "Question text"},
			"threshold": map[string]any{"type": "number", "description": "Minimum Jaccard similarity (default 0.8)"},
		}, []string{"question"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findReq)
		threshold := r.Threshold
		if threshold <= 0 {
			threshold = 0.8
		}
		e, err := s.FindSimilar(ctx, r.Question, threshold)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return map[string]any{"found": false}, nil
		}
		return map[string]any{
			"found":      true,
			"question":   e.Question,
			"answer":     e.Answer,
			"times_used": e.TimesUsed,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r findReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(s.log, tool.Name))(endpoint), decode)
}

// --- store ---

type storeReq struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	JobTitle string `json:"job_title,omitempty"`
	Company  string `json:"company,omitempty"`
}

func (s *Store) registerStoreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "qa_store_answer",
		Description: "Store or refresh an application question-answer pair.",
		InputSchema: inputSchema(map[string]any{
			"question":  map[string]any{"type": "string"},
			"answer":    map[string]any{"type": "string"},
			"job_title": map[string]any{"type": "string"},
			"company":   map[string]any{"type": "string"},
		}, []string{"question", "answer"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*storeReq)
		if err := s.StoreQuestion(ctx, r.Question, r.Answer, r.JobTitle, r.Company, ""); err != nil {
			return nil, err
		}
		return map[string]any{"stored": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r storeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(s.log, tool.Name))(endpoint), decode)
}

// --- list ---

func (s *Store) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "qa_list_questions",
		Description: "List all stored application questions, most used first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		entries, err := s.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{
				"question":   e.Question,
				"answer":     e.Answer,
				"times_used": e.TimesUsed,
			})
		}
		return map[string]any{"questions": out}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(s.log, tool.Name))(endpoint), decode)
}
