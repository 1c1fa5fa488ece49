package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aluiziolira/go-scrape-asin/api/handler"
	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol.
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	p := pipeline.New(cfg, pipeline.WithLogger(logger))

	s := server.NewMCPServer(
		"amazon-product-scraper",
		handler.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	getProductTool := mcp.NewTool("get_product",
		mcp.WithDescription("Look up an Amazon product by ASIN and return its title, price, availability, images, rating, seller, specifications and features as JSON."),
		mcp.WithString("asin",
			mcp.Required(),
			mcp.Description("The 10-character Amazon Standard Identification Number, e.g. B08N5WRWNW"),
		),
	)
	s.AddTool(getProductTool, handleGetProduct(p, time.Now))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleGetProduct(f handler.Fetcher, now func() time.Time) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		asin, err := request.RequireString("asin")
		if err != nil {
			return mcp.NewToolResultError("asin is required"), nil
		}

		out, err := f.FetchProduct(ctx, asin)
		_, resp := handler.ProductResponse(out, err, now())
		body, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
		}

		if !resp.Success {
			return mcp.NewToolResultError(string(body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
