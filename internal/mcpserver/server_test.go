package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"research-agent/internal/rag"
	"research-agent/internal/service/mocks"
)

func TestNewServer(t *testing.T) {
	t.Run("nil retriever returns error", func(t *testing.T) {
		server, err := NewServer(nil, nil)
		require.ErrorIs(t, err, ErrMissingRetriever)
		assert.Nil(t, server)
	})

	t.Run("valid retriever creates server", func(t *testing.T) {
		server, err := NewServer(mocks.NewMockRetriever(gomock.NewController(t)), nil)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns results with citations", func(t *testing.T) {
		ret := mocks.NewMockRetriever(gomock.NewController(t))
		ret.EXPECT().
			Retrieve(gomock.Any(), "S&P 500 target", 3, rag.Filters{SourceDocument: "report_march.pdf"}).
			Return([]rag.Result{
				{ChunkID: "report_march_page22_chunk0", SourceDocument: "report_march.pdf", PageNumber: 22, Text: "target is 6,400", Distance: 0.2},
			}, nil)

		server, err := NewServer(ret, nil)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "S&P 500 target", NResults: 3, SourceDocument: "report_march.pdf"})
		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, []string{"report_march.pdf, page 22"}, output.Citations)
		assert.Equal(t, "report_march_page22_chunk0", output.Results[0].ChunkID)
		assert.InDelta(t, 0.8, output.Results[0].RelevanceScore, 1e-9)
		assert.Empty(t, output.Message)
	})

	t.Run("no results gives fallback message", func(t *testing.T) {
		ret := mocks.NewMockRetriever(gomock.NewController(t))
		ret.EXPECT().Retrieve(gomock.Any(), "crypto", 0, rag.Filters{}).Return([]rag.Result{}, nil)

		server, err := NewServer(ret, nil)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "crypto"})
		require.NoError(t, err)
		assert.Zero(t, output.Count)
		assert.NotNil(t, output.Citations)
		assert.Equal(t, "No relevant information found in the available reports.", output.Message)
	})

	t.Run("unavailable index is no context", func(t *testing.T) {
		ret := mocks.NewMockRetriever(gomock.NewController(t))
		ret.EXPECT().Retrieve(gomock.Any(), "rates", 0, rag.Filters{}).
			Return(nil, errors.Join(rag.ErrIndexUnavailable, errors.New("dial tcp 127.0.0.1:6334")))

		server, err := NewServer(ret, nil)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "rates"})
		require.NoError(t, err)
		assert.Zero(t, output.Count)
		assert.NotContains(t, output.Message, "dial tcp")
	})

	t.Run("invalid query is an error", func(t *testing.T) {
		ret := mocks.NewMockRetriever(gomock.NewController(t))
		ret.EXPECT().Retrieve(gomock.Any(), " ", 0, rag.Filters{}).Return(nil, rag.ErrInvalidQuery)

		server, err := NewServer(ret, nil)
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: " "})
		assert.ErrorIs(t, err, rag.ErrInvalidQuery)
	})

	t.Run("n_results out of range", func(t *testing.T) {
		server, err := NewServer(mocks.NewMockRetriever(gomock.NewController(t)), nil)
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "rates", NResults: 50})
		assert.Error(t, err)
	})
}

func TestServer_CallToolOverTransport(t *testing.T) {
	ctx := context.Background()

	ret := mocks.NewMockRetriever(gomock.NewController(t))
	ret.EXPECT().Retrieve(gomock.Any(), "key risks", 2, rag.Filters{}).
		Return([]rag.Result{{ChunkID: "b_page4_chunk0", SourceDocument: "b.pdf", PageNumber: 4, Text: "risks", Distance: 0.1}}, nil)

	server, err := NewServer(ret, nil)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = ss.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = cs.Close() }()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "search_investment_research", tools.Tools[0].Name)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_investment_research",
		Arguments: map[string]any{"query": "key risks", "n_results": 2},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "b.pdf, page 4")
}
