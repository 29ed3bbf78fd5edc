package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/webring/internal/mcpserver"
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/moderation"
)

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: app.config.App.LogLevel}))
	slog.SetDefault(logger)

	c, err := open(app.config, logger, true)
	if err != nil {
		return err
	}
	defer c.close()

	svc := c.service(moderation.WithLogger(logger))
	if _, err := svc.Reindex(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc, c.guard, c.photos).ServeStdio()
}

// PrintMembers writes the registry members as JSON.
func PrintMembers(ctx context.Context, opts ...Option) error {
	app, c, err := openQuiet(opts)
	if err != nil {
		return err
	}
	defer c.close()

	snap, err := c.registry.List(ctx)
	if err != nil {
		return err
	}
	members := snap.Records
	if members == nil {
		members = []models.Member{}
	}
	return writeIndented(app, members)
}

// PrintSubmissions writes the pending submissions as JSON.
func PrintSubmissions(ctx context.Context, opts ...Option) error {
	app, c, err := openQuiet(opts)
	if err != nil {
		return err
	}
	defer c.close()

	subs, err := c.queue.List(ctx)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	return writeIndented(app, subs)
}

// CheckReport summarizes a registry and ledger consistency check.
type CheckReport struct {
	Registry    string   `json:"registry"`
	Version     string   `json:"version"`
	Members     int      `json:"members"`
	Blocks      int      `json:"blocks"`
	Incomplete  int      `json:"incomplete"`
	Duplicates  []string `json:"duplicates,omitempty"`
	Submissions int      `json:"submissions"`
	// Dangling lists connections that name no member, as "from -> to".
	Dangling []string `json:"dangling,omitempty"`
}

// Check decodes both documents, writes a CheckReport, and fails when the
// registry has duplicate ids or either document cannot be read.
func Check(ctx context.Context, opts ...Option) error {
	app, c, err := openQuiet(opts)
	if err != nil {
		return err
	}
	defer c.close()

	rep, version, err := c.registry.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("registry %s: %w", c.registryPath, err)
	}
	subs, err := c.queue.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger %s: %w", c.ledgerPath, err)
	}

	out := CheckReport{
		Registry:    c.registryPath,
		Version:     version,
		Members:     len(rep.Members),
		Blocks:      rep.Blocks,
		Incomplete:  rep.Incomplete,
		Duplicates:  rep.Duplicates,
		Submissions: len(subs),
	}
	ids := make(map[string]struct{}, len(rep.Members))
	for _, m := range rep.Members {
		ids[m.ID] = struct{}{}
	}
	for _, m := range rep.Members {
		for _, to := range m.Connections {
			if _, ok := ids[to]; !ok {
				out.Dangling = append(out.Dangling, m.ID+" -> "+to)
			}
		}
	}
	if err := writeIndented(app, out); err != nil {
		return err
	}
	if len(rep.Duplicates) > 0 {
		return fmt.Errorf("registry has duplicate ids: %s", strings.Join(rep.Duplicates, ", "))
	}
	return nil
}

// openQuiet opens the stores for a one-shot command without creating any
// document and without an index.
func openQuiet(opts []Option) (*application, *components, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, nil, err
	}
	cfg := *app.config
	cfg.Index.Path = ""
	cfg.Photos.Path = ""
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	c, err := open(&cfg, logger, false)
	if err != nil {
		return nil, nil, err
	}
	return app, c, nil
}

func writeIndented(app *application, v any) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
