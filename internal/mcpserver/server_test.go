package mcpserver_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tickerlens/tickerlens/internal/analysis"
	"github.com/tickerlens/tickerlens/internal/leveltype"
	"github.com/tickerlens/tickerlens/internal/mcpserver"
	"github.com/tickerlens/tickerlens/pkg/store/postgres"
)

type fakeService struct {
	analyzeFunc func(ctx context.Context, videoID string) (*postgres.Record, error)
	getFunc     func(ctx context.Context, videoID string) (*postgres.Record, error)
	relatedFunc func(ctx context.Context, videoID string, limit int) ([]postgres.RelatedVideo, error)
	statsFunc   func(ctx context.Context) (leveltype.Stats, error)
}

func (f *fakeService) AnalyzeVideo(ctx context.Context, videoID string) (*postgres.Record, error) {
	return f.analyzeFunc(ctx, videoID)
}

func (f *fakeService) GetAnalysis(ctx context.Context, videoID string) (*postgres.Record, error) {
	return f.getFunc(ctx, videoID)
}

func (f *fakeService) RelatedVideos(ctx context.Context, videoID string, limit int) ([]postgres.RelatedVideo, error) {
	return f.relatedFunc(ctx, videoID, limit)
}

func (f *fakeService) LevelTypeStats(ctx context.Context) (leveltype.Stats, error) {
	return f.statsFunc(ctx)
}

func sampleRecord(videoID string) *postgres.Record {
	return &postgres.Record{
		VideoID: videoID,
		Intelligence: analysis.Intelligence{
			ContentType:      analysis.ContentBitcoinAnalysis,
			PrimaryAsset:     "BTC",
			ExecutiveSummary: "Bitcoin consolidating above support.",
		},
		CreatedAt: time.Now(),
	}
}

// connect wires a client session to srv over in-memory transports.
func connect(t *testing.T, svc mcpserver.Service) *mcp.ClientSession {
	t.Helper()

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	srv := mcpserver.NewServer(svc)
	serverSession, err := srv.Connect(ctx, serverTransport)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func textContent(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestListTools(t *testing.T) {
	session := connect(t, &fakeService{})

	var names []string
	for tool, err := range session.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}

	want := []string{"analyze_video", "get_analysis", "level_type_stats", "related_videos"}
	for _, name := range want {
		found := false
		for _, got := range names {
			if got == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("tool %q not listed, got %v", name, names)
		}
	}
}

func TestAnalyzeVideo(t *testing.T) {
	svc := &fakeService{
		analyzeFunc: func(_ context.Context, videoID string) (*postgres.Record, error) {
			return sampleRecord(videoID), nil
		},
	}
	session := connect(t, svc)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "analyze_video",
		Arguments: map[string]any{"video_id": "vid123"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %s", textContent(t, res))
	}
	text := textContent(t, res)
	if !strings.Contains(text, "vid123") {
		t.Errorf("result missing video ID: %s", text)
	}
	if !strings.Contains(text, "BTC") {
		t.Errorf("result missing primary asset: %s", text)
	}
}

func TestAnalyzeVideo_MissingID(t *testing.T) {
	session := connect(t, &fakeService{
		analyzeFunc: func(context.Context, string) (*postgres.Record, error) {
			t.Error("analyze should not be called without a video ID")
			return nil, nil
		},
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "analyze_video",
		Arguments: map[string]any{"video_id": ""},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for empty video_id")
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	session := connect(t, &fakeService{
		getFunc: func(context.Context, string) (*postgres.Record, error) {
			return nil, nil
		},
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_analysis",
		Arguments: map[string]any{"video_id": "missing"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for unknown video")
	}
	if !strings.Contains(textContent(t, res), "missing") {
		t.Errorf("error should name the video: %s", textContent(t, res))
	}
}

func TestGetAnalysis_Found(t *testing.T) {
	session := connect(t, &fakeService{
		getFunc: func(_ context.Context, videoID string) (*postgres.Record, error) {
			return sampleRecord(videoID), nil
		},
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_analysis",
		Arguments: map[string]any{"video_id": "vid9"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %s", textContent(t, res))
	}
	if !strings.Contains(textContent(t, res), "vid9") {
		t.Errorf("result missing video ID: %s", textContent(t, res))
	}
}

func TestRelatedVideos_DefaultLimit(t *testing.T) {
	var gotLimit int
	session := connect(t, &fakeService{
		relatedFunc: func(_ context.Context, videoID string, limit int) ([]postgres.RelatedVideo, error) {
			gotLimit = limit
			return []postgres.RelatedVideo{{VideoID: "other", Distance: 0.09}}, nil
		},
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "related_videos",
		Arguments: map[string]any{"video_id": "vid1"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %s", textContent(t, res))
	}
	if gotLimit != 5 {
		t.Errorf("default limit = %d, want 5", gotLimit)
	}
	if !strings.Contains(textContent(t, res), "other") {
		t.Errorf("result missing related video: %s", textContent(t, res))
	}
}

func TestLevelTypeStats(t *testing.T) {
	session := connect(t, &fakeService{
		statsFunc: func(context.Context) (leveltype.Stats, error) {
			return leveltype.Stats{
				TotalNormalizations: 12,
				ByMethod: map[leveltype.Method]int{
					leveltype.MethodDefault: 7,
					leveltype.MethodContext: 5,
				},
				AvgConfidenceByMethod: map[leveltype.Method]float64{
					leveltype.MethodDefault: 0.3,
					leveltype.MethodContext: 0.6,
				},
				LearnedPatterns:    2,
				LowConfidenceCount: 4,
			}, nil
		},
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "level_type_stats",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %s", textContent(t, res))
	}
	text := textContent(t, res)
	if !strings.Contains(text, `"total_normalizations":12`) {
		t.Errorf("result missing total: %s", text)
	}
	if !strings.Contains(text, `"learned_patterns":2`) {
		t.Errorf("result missing learned patterns: %s", text)
	}
}

func TestServiceErrorSurfacesAsToolError(t *testing.T) {
	session := connect(t, &fakeService{
		statsFunc: func(context.Context) (leveltype.Stats, error) {
			return leveltype.Stats{}, errors.New("classifier disabled")
		},
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "level_type_stats",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error when service fails")
	}
}
