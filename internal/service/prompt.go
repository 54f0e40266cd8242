package service

import (
	"research-agent/internal/llm"
)

// SearchToolName is the retrieval tool offered to the model.
const SearchToolName = "search_investment_research"

// DefaultSystemPrompt frames the assistant. The disclaimer text is appended at construction.
const DefaultSystemPrompt = `You are an expert investment research assistant with access to bank house view reports and SEC filings.

You help users understand market outlook, asset allocation, sector analysis, risk factors, Fed policy and regional market views.

Guidelines:
1. Use the search_investment_research tool to find information before answering.
2. Cite the report and page for every fact, e.g. (report_march.pdf, page 5).
3. Present findings as they are. Do not add personal opinions or predictions.
4. If the reports do not contain the answer, say so. Never make up information.
5. Build on earlier questions in the conversation.
6. When giving investment recommendations, include this disclaimer verbatim:
`

// searchArgs are the arguments the model passes to the search tool.
type searchArgs struct {
	Query          string `json:"query"`
	NResults       int    `json:"n_results,omitempty"`
	SourceDocument string `json:"source_document,omitempty"`
}

func searchTool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDef{
			Name: SearchToolName,
			Description: "Search investment research reports and SEC filings. Use this for market outlook, " +
				"asset allocation, sector analysis, risk factors, Fed policy, or investment recommendations.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The research question or topic, e.g. 'What is the view on US equities?'",
					},
					"n_results": map[string]any{
						"type":        "integer",
						"description": "Number of excerpts to return (default: 5)",
						"default":     5,
					},
					"source_document": map[string]any{
						"type":        "string",
						"description": "Restrict the search to one report file name",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
