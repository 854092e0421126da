package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/flowkeeper/ingest"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	var stdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools",
		Long: `Serve the JSON API and the MCP tools over streamable HTTP, or the MCP
tools alone over stdin/stdout with --stdio.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				srv := mcp.NewServer(&mcp.Implementation{Name: "flowkeeper", Version: version}, nil)
				svc.RegisterMCP(srv)

				if stdio {
					opts.logger.Info("mcp: serving on stdio")
					return srv.Run(cmd.Context(), &mcp.StdioTransport{})
				}
				if listen == "" {
					listen = svc.Config().HTTP.Listen
				}
				return serveHTTP(cmd.Context(), opts, listen, svc.Handler(srv))
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, :8090)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	return cmd
}

func serveHTTP(ctx context.Context, opts *rootOptions, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		opts.logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	opts.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
