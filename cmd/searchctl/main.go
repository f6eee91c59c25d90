// Command searchctl administers a remote search-and-indexing server over
// its management API. Every remote call rides the client's resilience
// layer: per-endpoint circuit breakers, classified retries, and automatic
// session recovery.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/jonwraymond/searchctl/client"
	"github.com/jonwraymond/searchctl/observe"
	"github.com/jonwraymond/searchctl/resilience"
	"github.com/jonwraymond/searchctl/secret"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "searchctl: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the connection flags shared by every subcommand.
// Credential values accept secretref: references and ${VAR} expansion.
type globalOptions struct {
	url       string
	token     string
	username  string
	password  string
	timeout   time.Duration
	retries   int
	logLevel  string
	telemetry string
}

func (o *globalOptions) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.url, "url", envOr("SEARCHCTL_URL", "https://localhost:8089"), "management API base URL")
	flags.StringVar(&o.token, "token", envOr("SEARCHCTL_TOKEN", ""), "static API token (mutually exclusive with --username)")
	flags.StringVar(&o.username, "username", envOr("SEARCHCTL_USERNAME", ""), "session login username")
	flags.StringVar(&o.password, "password", envOr("SEARCHCTL_PASSWORD", ""), "session login password; accepts secretref: values")
	flags.DurationVar(&o.timeout, "timeout", 30*time.Second, "per-request timeout")
	flags.IntVar(&o.retries, "retries", 3, "retry budget per operation")
	flags.StringVar(&o.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	flags.StringVar(&o.telemetry, "telemetry", "none", "telemetry exporter: none|stdout|otlp|prometheus")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// command is one subcommand: flag registration and an action run against a
// connected client.
type command struct {
	name    string
	summary string
	flags   func(*pflag.FlagSet)
	run     func(ctx context.Context, app *app, args []string) error
}

// app bundles the connected client with the telemetry plumbing the
// subcommands share.
type app struct {
	client     *client.Client
	middleware *observe.Middleware
}

func run(args []string) error {
	commands := []*command{
		cmdServerInfo(),
		cmdOverview(),
		cmdSearch(),
		cmdJobs(),
		cmdCancel(),
		cmdIndexes(),
		cmdLicense(),
		cmdSend(),
		cmdBreaker(),
	}

	if len(args) == 0 || isHelpFlag(args[0]) {
		printUsage(os.Stderr, commands)
		if len(args) == 0 {
			return errors.New("subcommand required")
		}
		return nil
	}

	name := args[0]
	var cmd *command
	for _, c := range commands {
		if c.name == name {
			cmd = c
			break
		}
	}
	if cmd == nil {
		printUsage(os.Stderr, commands)
		return fmt.Errorf("unknown command %q", name)
	}

	opts := &globalOptions{}
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	opts.register(flags)
	if cmd.flags != nil {
		cmd.flags(flags)
	}
	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "searchctl",
		Tracing:     observe.TracingConfig{Enabled: opts.telemetry != "none", Exporter: opts.telemetry, SamplePct: 1.0},
		Metrics:     observe.MetricsConfig{Enabled: opts.telemetry != "none", Exporter: opts.telemetry},
		Logging:     observe.LoggingConfig{Enabled: true, Level: opts.logLevel},
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	middleware, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return err
	}

	c, err := connect(ctx, opts, obs)
	if err != nil {
		return err
	}

	return cmd.run(ctx, &app{client: c, middleware: middleware}, flags.Args())
}

// connect resolves credentials and builds the client.
func connect(ctx context.Context, opts *globalOptions, obs observe.Observer) (*client.Client, error) {
	resolver := secret.DefaultResolver()

	auth, err := buildAuth(ctx, resolver, opts)
	if err != nil {
		return nil, err
	}

	return client.New(client.Config{
		BaseURL:        opts.url,
		Auth:           auth,
		RequestTimeout: opts.timeout,
		MaxRetries:     opts.retries,
		Logger:         obs.Logger(),
		Meter:          obs.Meter(),
	})
}

func buildAuth(ctx context.Context, resolver *secret.Resolver, opts *globalOptions) (client.AuthStrategy, error) {
	if opts.token != "" && opts.username != "" {
		return nil, errors.New("--token and --username are mutually exclusive")
	}

	if opts.token != "" {
		token, err := resolver.ResolveValue(ctx, opts.token)
		if err != nil {
			return nil, fmt.Errorf("resolving token: %w", err)
		}
		return client.TokenAuth{Token: token}, nil
	}

	if opts.username != "" {
		password, err := resolver.ResolveValue(ctx, opts.password)
		if err != nil {
			return nil, fmt.Errorf("resolving password: %w", err)
		}
		if password == "" {
			return nil, errors.New("--password is required with --username")
		}
		return client.SessionAuth{Username: opts.username, Password: password}, nil
	}

	return nil, errors.New("authentication required: set --token or --username/--password")
}

// instrument wraps one logical operation with the observability middleware.
func (a *app) instrument(ctx context.Context, endpoint, operation string, fn func(context.Context) error) error {
	return a.middleware.Wrap(observe.CallMeta{Endpoint: endpoint, Operation: operation}, fn)(ctx)
}

func cmdServerInfo() *command {
	return &command{
		name:    "server-info",
		summary: "Show the server's identity, version, and roles",
		run: func(ctx context.Context, app *app, args []string) error {
			var info *client.ServerInfo
			err := app.instrument(ctx, client.EndpointServerInfo, "server-info", func(ctx context.Context) error {
				var err error
				info, err = app.client.ServerInfo(ctx)
				return err
			})
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintf(tw, "Name\t%s\n", info.ServerName)
			fmt.Fprintf(tw, "Version\t%s\n", info.Version)
			fmt.Fprintf(tw, "Build\t%s\n", info.Build)
			fmt.Fprintf(tw, "License\t%s\n", info.LicenseState)
			fmt.Fprintf(tw, "Roles\t%s\n", strings.Join(info.Roles, ", "))
			return tw.Flush()
		},
	}
}

func cmdOverview() *command {
	var resources []string
	var concurrency int
	var fetchTimeout time.Duration

	return &command{
		name:    "overview",
		summary: "Fetch a dashboard summary of every resource type",
		flags: func(flags *pflag.FlagSet) {
			flags.StringSliceVar(&resources, "resources", client.DefaultResources(), "resource types to fetch")
			flags.IntVar(&concurrency, "concurrency", 5, "maximum in-flight fetches")
			flags.DurationVar(&fetchTimeout, "fetch-timeout", 30*time.Second, "per-resource fetch timeout")
		},
		run: func(ctx context.Context, app *app, args []string) error {
			summaries, err := app.client.FetchAll(ctx, resources, client.AggregateConfig{
				MaxConcurrency: concurrency,
				FetchTimeout:   fetchTimeout,
			})
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintf(tw, "RESOURCE\tSTATUS\tCOUNT\tDETAIL\n")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Resource, s.Status, s.Count, s.Detail)
			}
			return tw.Flush()
		},
	}
}

func cmdSearch() *command {
	var earliest, latest string
	var maxCount int
	var interval, maxWait time.Duration

	return &command{
		name:    "search",
		summary: "Run a search job and wait for it to complete",
		flags: func(flags *pflag.FlagSet) {
			flags.StringVar(&earliest, "earliest", "", "search window start (e.g. -1h)")
			flags.StringVar(&latest, "latest", "", "search window end")
			flags.IntVar(&maxCount, "max-count", 0, "result cap, 0 for server default")
			flags.DurationVar(&interval, "interval", 2*time.Second, "status poll interval")
			flags.DurationVar(&maxWait, "max-wait", 10*time.Minute, "overall wait budget")
		},
		run: func(ctx context.Context, app *app, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: searchctl search <query>")
			}

			jobID, err := app.client.CreateSearchJob(ctx, args[0], client.SearchJobOptions{
				EarliestTime: earliest,
				LatestTime:   latest,
				MaxCount:     maxCount,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "job %s created\n", jobID)

			status, err := app.client.WaitForCompletion(ctx, jobID, client.PollConfig{
				Interval: interval,
				MaxWait:  maxWait,
				OnProgress: func(progress float64) error {
					fmt.Fprintf(os.Stderr, "\rprogress %3.0f%%", progress*100)
					return nil
				},
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintf(tw, "Job\t%s\n", status.JobID)
			fmt.Fprintf(tw, "State\t%s\n", status.State)
			fmt.Fprintf(tw, "Scanned\t%d\n", status.ScanCount)
			fmt.Fprintf(tw, "Events\t%d\n", status.EventCount)
			fmt.Fprintf(tw, "Results\t%d\n", status.ResultCount)
			return tw.Flush()
		},
	}
}

func cmdJobs() *command {
	return &command{
		name:    "jobs",
		summary: "List search jobs",
		run: func(ctx context.Context, app *app, args []string) error {
			var jobs []client.JobStatus
			err := app.instrument(ctx, client.EndpointSearchJobs, "jobs", func(ctx context.Context) error {
				var err error
				jobs, err = app.client.ListJobs(ctx)
				return err
			})
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintf(tw, "JOB\tSTATE\tPROGRESS\tRESULTS\n")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%3.0f%%\t%d\n", j.JobID, j.State, j.Progress*100, j.ResultCount)
			}
			return tw.Flush()
		},
	}
}

func cmdCancel() *command {
	return &command{
		name:    "cancel",
		summary: "Cancel a running search job",
		run: func(ctx context.Context, app *app, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: searchctl cancel <job-id>")
			}
			if err := app.client.CancelJob(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s cancelled\n", args[0])
			return nil
		},
	}
}

func cmdIndexes() *command {
	return &command{
		name:    "indexes",
		summary: "List indexes with size and event counts",
		run: func(ctx context.Context, app *app, args []string) error {
			var indexes []client.IndexInfo
			err := app.instrument(ctx, client.EndpointIndexes, "indexes", func(ctx context.Context) error {
				var err error
				indexes, err = app.client.Indexes(ctx)
				return err
			})
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintf(tw, "NAME\tEVENTS\tSIZE\tMAX SIZE\n")
			for _, idx := range indexes {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", idx.Name, idx.EventCount, formatBytes(idx.CurrentSize), formatBytes(idx.MaxSize))
			}
			return tw.Flush()
		},
	}
}

func cmdLicense() *command {
	return &command{
		name:    "license",
		summary: "Show license quota and consumption",
		run: func(ctx context.Context, app *app, args []string) error {
			var usage *client.LicenseUsage
			err := app.instrument(ctx, client.EndpointLicense, "license", func(ctx context.Context) error {
				var err error
				usage, err = app.client.LicenseUsage(ctx)
				return err
			})
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintf(tw, "POOL\tUSED\tQUOTA\n")
			fmt.Fprintf(tw, "(total)\t%s\t%s\n", formatBytes(usage.UsedBytes), formatBytes(usage.QuotaBytes))
			for _, pool := range usage.Pools {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", pool.Name, formatBytes(pool.UsedBytes), formatBytes(pool.QuotaBytes))
			}
			return tw.Flush()
		},
	}
}

func cmdSend() *command {
	var index, source, sourceType, host string

	return &command{
		name:    "send",
		summary: "Ingest events from stdin, one per line",
		flags: func(flags *pflag.FlagSet) {
			flags.StringVar(&index, "index", "", "destination index")
			flags.StringVar(&source, "source", "searchctl", "event source")
			flags.StringVar(&sourceType, "sourcetype", "", "event sourcetype")
			flags.StringVar(&host, "host", "", "event host field")
		},
		run: func(ctx context.Context, app *app, args []string) error {
			var events []client.Event
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				events = append(events, client.Event{
					Time:       time.Now(),
					Host:       host,
					Source:     source,
					SourceType: sourceType,
					Index:      index,
					Data:       line,
				})
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			if len(events) == 0 {
				return errors.New("no events on stdin")
			}

			err := app.instrument(ctx, client.EndpointIngest, "send", func(ctx context.Context) error {
				return app.client.SendEvents(ctx, events)
			})
			if err != nil {
				return err
			}
			fmt.Printf("sent %d events\n", len(events))
			return nil
		},
	}
}

func cmdBreaker() *command {
	var reset string
	var resetAll bool

	return &command{
		name:    "breaker",
		summary: "Show or reset per-endpoint circuit breakers",
		flags: func(flags *pflag.FlagSet) {
			flags.StringVar(&reset, "reset", "", "force one endpoint's circuit closed")
			flags.BoolVar(&resetAll, "reset-all", false, "force every circuit closed")
		},
		run: func(ctx context.Context, app *app, args []string) error {
			switch {
			case resetAll:
				app.client.ResetBreakers()
				fmt.Println("all circuits reset")
				return nil
			case reset != "":
				app.client.ResetBreaker(reset)
				fmt.Printf("circuit %s reset\n", reset)
				return nil
			}

			metrics := app.client.BreakerMetrics()
			if len(metrics) == 0 {
				fmt.Println("no circuits recorded yet")
				return nil
			}

			tw := newTable()
			fmt.Fprintf(tw, "ENDPOINT\tSTATE\tRECENT FAILURES\tOPENED\n")
			for _, m := range metrics {
				opened := "-"
				if m.State != resilience.StateClosed && !m.OpenedAt.IsZero() {
					opened = m.OpenedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Endpoint, m.State, m.RecentFailures, opened)
			}
			return tw.Flush()
		},
	}
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
}

// formatBytes renders a byte count in the largest sensible binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

func printUsage(w *os.File, commands []*command) {
	fmt.Fprintf(w, "searchctl administers a remote search-and-indexing server.\n\n")
	fmt.Fprintf(w, "Usage:\n  searchctl <command> [flags]\n\nCommands:\n")
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nRun 'searchctl <command> --help' for command flags.\n")
}
