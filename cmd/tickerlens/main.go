// Command tickerlens turns YouTube trading videos into structured market
// intelligence: transcript acquisition, chunked LLM analysis with automatic
// output repair, price level normalization, and PostgreSQL persistence with
// embedding-based similarity search.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
