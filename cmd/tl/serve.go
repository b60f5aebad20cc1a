package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/dashboard"
	"github.com/tasklattice/tasklattice/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Serve every operation as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout.

Logs go to stderr (or log.file) so stdout carries only protocol frames.
With --dashboard the event dashboard runs in the same process and sees
every change made through the tools.

Example client configuration:
  {"command": "tl", "args": ["serve", "--db", "/path/to/tasks.db"]}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if withDash, _ := cmd.Flags().GetBool("dashboard"); withDash {
			port, _ := cmd.Flags().GetInt("port")
			if !cmd.Flags().Changed("port") {
				port = application.Config.Dashboard.Port
			}
			srv, err := startDashboard(port)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Stop() }()
		}

		return mcp.New(application, Version).Serve(ctx, os.Stdin, os.Stdout)
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the WebSocket event dashboard",
	Long: `Start an HTTP server with a live event feed.

Endpoints:
  /ws          WebSocket feed of task_update, list_update, event and stats messages
  /health      liveness and client count
  /api/stats   task counts by status and event counters
  /metrics     Prometheus metrics

Events are seen only for changes made in this process. Combine with
'tl serve --dashboard' to watch MCP activity, or with
'tl dashboard --watch-templates' to watch template imports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = application.Config.Dashboard.Port
		}

		srv, err := startDashboard(port)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if watch, _ := cmd.Flags().GetBool("watch-templates"); watch {
			go func() {
				if err := watchTemplates(ctx, application.Config.Templates.Dir); err != nil {
					application.Log.WithError(err).Error("template watcher stopped")
				}
			}()
		}

		fmt.Printf("Dashboard server started on http://%s\n", srv.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", srv.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")
		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		return srv.Stop()
	},
}

func startDashboard(port int) (*dashboard.Server, error) {
	srv := dashboard.NewServer(&dashboard.Config{
		Port:   port,
		Logger: application.Log,
		Stats:  application.Search,
	})
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dashboard: %w", err)
	}
	application.Observe(dashboard.NewHandler(srv))
	return srv, nil
}

func init() {
	serveCmd.Flags().Bool("dashboard", false, "also run the event dashboard")
	serveCmd.Flags().IntP("port", "p", 8080, "dashboard port (default dashboard.port)")
	dashboardCmd.Flags().IntP("port", "p", 8080, "port to listen on (default dashboard.port)")
	dashboardCmd.Flags().Bool("watch-templates", false, "import template files written to templates.dir")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
}
