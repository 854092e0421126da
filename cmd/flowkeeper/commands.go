package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/flowkeeper/ingest"
)

// flowFlags are the provenance flags shared by the flow commands.
type flowFlags struct {
	Name      string
	User      string
	JiraID    string
	Project   string
	Notes     string
	Sensitive []string
}

func (f *flowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Name, "name", "", "flow name (default: from the flow file, else a random id)")
	cmd.Flags().StringVar(&f.User, "user", "", "recording user")
	cmd.Flags().StringVar(&f.JiraID, "jira", "", "related Jira issue key")
	cmd.Flags().StringVar(&f.Project, "project", "", "project key")
	cmd.Flags().StringVar(&f.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringSliceVar(&f.Sensitive, "sensitive", nil, "extra sensitive selector keywords")
}

func (f *flowFlags) request(name string) ingest.FlowRequest {
	if f.Name != "" {
		name = f.Name
	}
	return ingest.FlowRequest{
		FlowName:        name,
		User:            f.User,
		JiraID:          f.JiraID,
		Project:         f.Project,
		Notes:           f.Notes,
		CustomSensitive: f.Sensitive,
	}
}

func newRecordCommand(opts *rootOptions) *cobra.Command {
	var ff flowFlags
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record a browser session and ingest it as a flow",
		Long: `Open <url> in Chrome and capture clicks, inputs and navigations until
Ctrl-C (or --duration), then sanitize and store the recorded flow.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				recCtx := cmd.Context()
				if duration > 0 {
					var cancel context.CancelFunc
					recCtx, cancel = context.WithTimeout(recCtx, duration)
					defer cancel()
				}
				events, err := svc.Record(recCtx, args[0])
				if err != nil && len(events) == 0 {
					return err
				}
				if err != nil {
					opts.logger.Warn("record: session ended with error", "error", err)
				}

				// The recording context is done by now; store under a fresh one.
				ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), time.Minute)
				defer cancel()
				req := ff.request("")
				req.Events = events
				req.Source = ingest.SourceRecorder
				out, err := svc.IngestFlow(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop recording after this long (default: until interrupted)")
	return cmd
}

func newIngestCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest flows, documents, web pages, Jira issues or UI-crawl logs",
	}
	cmd.AddCommand(
		newIngestFlowCommand(opts),
		newIngestPlaywrightCommand(opts),
		newIngestDocsCommand(opts),
		newIngestWebCommand(opts),
		newIngestJiraCommand(opts),
		newIngestCrawlCommand(opts),
	)
	return cmd
}

func newIngestFlowCommand(opts *rootOptions) *cobra.Command {
	var ff flowFlags
	var sourceType string
	cmd := &cobra.Command{
		Use:   "flow <events.json|->",
		Short: "Ingest recorded events or a persisted flow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			events, name, err := ingest.DecodeEvents(data)
			if err != nil {
				return err
			}
			return opts.withService(func(svc *ingest.Service) error {
				req := ff.request(name)
				req.Events = events
				req.SourceType = sourceType
				out, err := svc.IngestFlow(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&sourceType, "source-type", "", "source type (default workflow_recorder)")
	return cmd
}

func newIngestPlaywrightCommand(opts *rootOptions) *cobra.Command {
	var ff flowFlags
	cmd := &cobra.Command{
		Use:   "playwright <test.ts|->",
		Short: "Ingest a Playwright TypeScript test as a UI flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return opts.withService(func(svc *ingest.Service) error {
				out, err := svc.IngestPlaywright(cmd.Context(), ingest.PlaywrightRequest{
					Code:     string(code),
					FlowName: ff.Name,
					User:     ff.User,
					JiraID:   ff.JiraID,
					Project:  ff.Project,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newIngestDocsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "docs <file|dir>",
		Short: "Extract, chunk and ingest documents (txt, md, html, pdf, docx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				rep, err := svc.IngestDocuments(cmd.Context(), args[0])
				return report(cmd, rep, err)
			})
		},
	}
}

func newIngestWebCommand(opts *rootOptions) *cobra.Command {
	var req ingest.WebRequest
	cmd := &cobra.Command{
		Use:   "web <url>",
		Short: "Crawl a site on its host and ingest its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			return opts.withService(func(svc *ingest.Service) error {
				rep, err := svc.IngestWebSite(cmd.Context(), req)
				return report(cmd, rep, err)
			})
		},
	}
	cmd.Flags().IntVar(&req.Depth, "depth", 1, "link hops to follow")
	cmd.Flags().IntVar(&req.MaxPages, "max-pages", 0, "page limit (default from config, 50)")
	return cmd
}

func newIngestJiraCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jira <jql>",
		Short: "Ingest the Jira issues matching a JQL query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				rep, err := svc.IngestJira(cmd.Context(), args[0])
				return report(cmd, rep, err)
			})
		},
	}
}

func newIngestCrawlCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <ui-crawl.json>",
		Short: "Ingest the steps of a UI-crawl log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				rep, err := svc.IngestUICrawl(cmd.Context(), args[0])
				return report(cmd, rep, err)
			})
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				docs, err := svc.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, docs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max documents (0: all)")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "delete [<store-id>]",
		Short: "Delete a document, or every document of a source type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (source != "") {
				return fmt.Errorf("give either a store id or --source")
			}
			return opts.withService(func(svc *ingest.Service) error {
				if source != "" {
					n, err := svc.DeleteBySource(cmd.Context(), source)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]int{"deleted": n})
				}
				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"deleted": 1})
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "delete every document of this source type")
	return cmd
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				hits, err := svc.Search(cmd.Context(), args[0], topK)
				if err != nil {
					return err
				}
				return printJSON(cmd, hits)
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 5, "max results")
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(func(svc *ingest.Service) error {
				st, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}
}

// report prints a batch report, including a partial one next to an error.
func report(cmd *cobra.Command, rep ingest.BatchReport, err error) error {
	if perr := printJSON(cmd, rep); perr != nil && err == nil {
		err = perr
	}
	return err
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
