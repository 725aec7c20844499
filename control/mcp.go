package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/applyd/kit"
)

// RegisterMCP registers history tools on an MCP server. The question-bank
// tools live on qa.Store; together they give an MCP host read access to
// everything the engine has learned and done.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerHistoryTool(srv)
	s.registerStatsTool(srv)
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

type historyReq struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "application_history",
		Description: "List recent job application outcomes, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max records (default 100)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyReq)
		recs, err := s.history.List(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			out = append(out, map[string]any{
				"title":       rec.Title,
				"company":     rec.Company,
				"status":      string(rec.Status),
				"error":       rec.Error,
				"applied_at":  rec.Timestamp.Format(time.RFC3339),
				"duration_ms": rec.Duration.Milliseconds(),
			})
		}
		return map[string]any{"applications": out}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r historyReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(s.log, tool.Name))(endpoint), decode)
}

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "application_stats",
		Description: "Summarise job application outcomes across the whole history.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		stats, err := s.history.StatsSummary(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"applied": stats.Applied,
			"failed":  stats.Failed,
			"skipped": stats.Skipped,
			"total":   stats.Total(),
		}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(s.log, tool.Name))(endpoint), decode)
}
