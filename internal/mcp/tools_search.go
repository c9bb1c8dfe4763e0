package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultSearchLimit = 5

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Words or a regex matched against tool names, keywords and descriptions"`
	Category string `json:"category,omitempty" jsonschema:"Filter to a category (decision, extraction, duplicates, guard, reasons, search)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
}

type toolMatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Score       int    `json:"score"`
	MatchReason string `json:"match_reason"`
}

type toolSearchOutput struct {
	Query      string      `json:"query" jsonschema:"Search query used"`
	Results    []toolMatch `json:"results" jsonschema:"Matching tools with match score"`
	Count      int         `json:"count" jsonschema:"Number of tools found"`
	TotalTools int         `json:"total_tools" jsonschema:"Total number of tools in registry"`
}

func (s *Server) registerSearchTools() error {
	tool, err := s.describe(&ToolMetadata{
		Name:        ToolSearch,
		Description: "Search the available refund tools by name, description or keyword",
		Category:    CategorySearch,
		Keywords:    []string{"discover", "list", "help"},
	})
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
		done := s.observe(ctx, ToolSearch)

		if strings.TrimSpace(args.Query) == "" {
			err := fmt.Errorf("%w: query is required", errInvalidArgument)
			done(err)
			return nil, toolSearchOutput{}, err
		}

		limit := args.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}

		out := toolSearchOutput{
			Query:      args.Query,
			Results:    []toolMatch{},
			TotalTools: s.toolRegistry.Count(),
		}
		var names []string
		results := s.toolRegistry.Search(SearchQuery{
			Text:     args.Query,
			Category: ToolCategory(args.Category),
			Limit:    limit,
		})
		for _, sr := range results {
			out.Results = append(out.Results, toolMatch{
				Name:        sr.Tool.Name,
				Description: sr.Tool.Description,
				Category:    string(sr.Tool.Category),
				Score:       sr.Score,
				MatchReason: sr.MatchReason,
			})
			names = append(names, sr.Tool.Name)
		}
		out.Count = len(out.Results)
		done(nil)

		if len(names) == 0 {
			return textResult("No tools found matching: %s", args.Query), out, nil
		}
		return textResult("Found %d tool(s) for query '%s': %s", len(names), args.Query, strings.Join(names, ", ")), out, nil
	})
	return nil
}
