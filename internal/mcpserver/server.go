// Package mcpserver exposes the analysis service as MCP tools so LLM agents
// can trigger and query video analyses directly.
//
// Tools:
//
//   - analyze_video    — run the full analysis pipeline for a video
//   - get_analysis     — fetch a stored analysis
//   - related_videos   — similarity lookup over transcript embeddings
//   - level_type_stats — adaptive level type classifier statistics
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tickerlens/tickerlens/internal/leveltype"
	"github.com/tickerlens/tickerlens/pkg/store/postgres"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Service is the application surface the MCP tools need. *app.App
// implements it.
type Service interface {
	AnalyzeVideo(ctx context.Context, videoID string) (*postgres.Record, error)
	GetAnalysis(ctx context.Context, videoID string) (*postgres.Record, error)
	RelatedVideos(ctx context.Context, videoID string, limit int) ([]postgres.RelatedVideo, error)
	LevelTypeStats(ctx context.Context) (leveltype.Stats, error)
}

// Server wraps an [mcp.Server] with the Tickerlens tool set.
type Server struct {
	svc    Service
	server *mcp.Server
}

// NewServer creates an MCP server exposing svc as tools.
func NewServer(svc Service) *Server {
	s := &Server{
		svc: svc,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "tickerlens",
			Version: Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx is cancelled or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over streamable HTTP on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// analyzeInput is the input schema for the analyze_video tool.
type analyzeInput struct {
	VideoID string `json:"video_id" jsonschema:"YouTube video ID to analyze"`
}

// lookupInput is the input schema for get_analysis.
type lookupInput struct {
	VideoID string `json:"video_id" jsonschema:"YouTube video ID of a stored analysis"`
}

// relatedInput is the input schema for related_videos.
type relatedInput struct {
	VideoID string `json:"video_id" jsonschema:"YouTube video ID to find similar videos for"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 5)"`
}

// relatedOutput wraps the similarity results.
type relatedOutput struct {
	VideoID string                  `json:"video_id"`
	Related []postgres.RelatedVideo `json:"related"`
}

// levelTypeStatsOutput flattens leveltype.Stats into JSON-friendly maps.
type levelTypeStatsOutput struct {
	TotalNormalizations int                `json:"total_normalizations"`
	ByMethod            map[string]int     `json:"by_method"`
	AvgConfidence       map[string]float64 `json:"avg_confidence_by_method"`
	LearnedPatterns     int                `json:"learned_patterns"`
	LowConfidenceCount  int                `json:"low_confidence_count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_video",
		Description: "Run the full trading-video analysis pipeline for a YouTube video: transcript acquisition, chunked LLM analysis with automatic output repair, level type normalization, and persistence. Returns the structured intelligence document.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input analyzeInput) (*mcp.CallToolResult, *postgres.Record, error) {
		if input.VideoID == "" {
			return nil, nil, errors.New("video_id is required")
		}
		rec, err := s.svc.AnalyzeVideo(ctx, input.VideoID)
		if err != nil {
			return nil, nil, err
		}
		return nil, rec, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_analysis",
		Description: "Fetch a previously stored video analysis by video ID. Returns the intelligence document, transcript metadata, and processing statistics.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input lookupInput) (*mcp.CallToolResult, *postgres.Record, error) {
		if input.VideoID == "" {
			return nil, nil, errors.New("video_id is required")
		}
		rec, err := s.svc.GetAnalysis(ctx, input.VideoID)
		if err != nil {
			return nil, nil, err
		}
		if rec == nil {
			return nil, nil, fmt.Errorf("no analysis for video %q", input.VideoID)
		}
		return nil, rec, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "related_videos",
		Description: "Find stored videos whose transcripts are semantically similar to the given video, ranked by embedding cosine distance.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input relatedInput) (*mcp.CallToolResult, *relatedOutput, error) {
		if input.VideoID == "" {
			return nil, nil, errors.New("video_id is required")
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 5
		}
		related, err := s.svc.RelatedVideos(ctx, input.VideoID, limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, &relatedOutput{VideoID: input.VideoID, Related: related}, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "level_type_stats",
		Description: "Statistics from the adaptive price-level type classifier: normalization counts and average confidence per method, learned pattern count, and low-confidence classifications awaiting review.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, *levelTypeStatsOutput, error) {
		stats, err := s.svc.LevelTypeStats(ctx)
		if err != nil {
			return nil, nil, err
		}

		out := &levelTypeStatsOutput{
			TotalNormalizations: stats.TotalNormalizations,
			ByMethod:            make(map[string]int, len(stats.ByMethod)),
			AvgConfidence:       make(map[string]float64, len(stats.AvgConfidenceByMethod)),
			LearnedPatterns:     stats.LearnedPatterns,
			LowConfidenceCount:  stats.LowConfidenceCount,
		}
		for m, n := range stats.ByMethod {
			out.ByMethod[string(m)] = n
		}
		for m, c := range stats.AvgConfidenceByMethod {
			out.AvgConfidence[string(m)] = c
		}
		return nil, out, nil
	})
}
