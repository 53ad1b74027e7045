package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AIDiscovery/internal/collect"
	"github.com/TobiSchelling/AIDiscovery/internal/config"
	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/llm"
	"github.com/TobiSchelling/AIDiscovery/internal/notify"
	"github.com/TobiSchelling/AIDiscovery/internal/pipeline"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
	"github.com/TobiSchelling/AIDiscovery/internal/report"
	"github.com/TobiSchelling/AIDiscovery/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aidiscovery",
	Short:   "Discover AI sources worth following",
	Long:    "AIDiscovery reads the blogs and accounts you trust, tracks the sources they cite, and recommends the ones that keep coming up.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(recommendationsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(interestsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("aidiscovery", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/aidiscovery/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to list the blogs and accounts you trust, and your interests.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Sources:")
		fmt.Printf("  Primary: %d\n", stats.PrimarySources)
		fmt.Printf("  Tracked: %d\n", stats.DiscoveredSources)
		fmt.Printf("  Citations: %d\n", stats.Citations)
		fmt.Println("\nRecommendations:")
		fmt.Printf("  Sources recommended: %d\n", stats.Recommended)
		fmt.Printf("  History entries: %d\n", stats.Recommendations)
		fmt.Println("\nInterests:")
		fmt.Printf("  Configured: %d\n", len(cfg.Interests))
		fmt.Printf("  Stored: %d (%d active)\n", stats.TotalInterests, stats.ActiveInterests)
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)

		last, err := db.GetLastRun()
		if err != nil {
			return err
		}
		if last != nil {
			fmt.Printf("  Last: %s (%d checked, %d failed, %d candidates, %d new, %d recommended)\n",
				database.FormatDisplay(&last.FinishedAt), last.SourcesChecked, last.FetchFailures,
				last.Candidates, last.NewSources, last.Recommended)
		}
		return nil
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one discovery pass: fetch -> merge -> recommend -> report",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if dryRun {
			pipe := pipeline.New(pipeline.Deps{Config: cfg, DB: db})
			result, err := pipe.DryRun(ctx)
			if err != nil {
				return err
			}
			printSteps(result)
			printRecommendations(result.Recommendations)
			return nil
		}

		deps, err := buildDeps(ctx, db)
		if err != nil {
			return err
		}
		pipe := pipeline.New(deps)
		if err := pipe.RegisterPrimarySources(); err != nil {
			return err
		}

		result, err := pipe.Run(ctx)
		if result != nil {
			printSteps(result)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("\nInterrupted. Work committed so far is kept.")
			}
			return err
		}

		if len(result.Usage.Calls) > 0 {
			fmt.Println()
			fmt.Println(result.Usage.Summary())
		}
		fmt.Println("\nPass complete! Run 'aidiscovery serve' to browse tracked sources.")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without fetching or writing")
}

// buildDeps wires the collaborators named in the config. Missing capabilities
// surface here as configuration errors, before anything is fetched.
func buildDeps(ctx context.Context, db *database.DB) (pipeline.Deps, error) {
	fetcher, err := collect.NewFetchers(cfg)
	if err != nil {
		return pipeline.Deps{}, err
	}

	var notifiers notify.Multi
	if cfg.Notifications.OutputFile != "" {
		file, err := notify.NewFileNotifier(cfg.Notifications.Format, cfg.OutputPath(cfg.Notifications.OutputFile))
		if err != nil {
			return pipeline.Deps{}, err
		}
		notifiers = append(notifiers, file)
	}
	if cfg.Notifications.Console {
		notifiers = append(notifiers, &notify.ConsoleNotifier{})
	}

	var reporter *report.Writer
	if cfg.Report.Enabled {
		provider, err := llm.CreateProvider(ctx, cfg.Summarization)
		if err != nil {
			return pipeline.Deps{}, err
		}
		log.Printf("Using %s for the discovery report", provider.Name())
		reporter = report.NewWriter(provider, cfg.Summarization.MaxTokens)
	}

	return pipeline.Deps{
		Config:   cfg,
		DB:       db,
		Fetcher:  fetcher,
		Notifier: notifiers,
		Reporter: reporter,
	}, nil
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Summary != "" {
			fmt.Printf("  %s\n", step.Summary)
		}
		if step.Err != nil {
			color.New(color.FgRed).Printf("  Error: %v\n", step.Err)
		}
	}
}

func printRecommendations(recs []recommend.Recommendation) {
	if len(recs) == 0 {
		return
	}
	fmt.Println("\nCurrently eligible:")
	for i, rec := range recs {
		fmt.Printf("  %d. %s (%s)\n", i+1, rec.Source.Name, rec.Source.Kind)
		fmt.Printf("     %s\n", rec.Reason)
	}
}

// --- sources command ---

var sourcesAll bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List tracked sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sources, err := db.GetAllDiscovered()
		if err != nil {
			return err
		}

		engine := newEngine()
		shown := 0
		for _, src := range sources {
			ok, reason := engine.Decide(src)
			if !sourcesAll && !ok && !src.RecommendationSent {
				continue
			}
			shown++
			marker := " "
			switch {
			case src.RecommendationSent:
				marker = "*"
			case ok:
				marker = "+"
			}
			fmt.Printf("  [%d] %s %s (%s, relevance %.2f, %d citations)\n",
				src.ID, marker, src.Name, src.Kind, src.RelevanceScore, src.CitationCount)
			if verbose {
				fmt.Printf("        %s\n", reason)
			}
		}

		if shown == 0 {
			fmt.Println("No sources to show. Use --all to include sources below the thresholds.")
			return nil
		}
		fmt.Println("\n  * recommended   + eligible")
		return nil
	},
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a tracked or primary source with its citations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		found, err := db.LookupByName(args[0], database.TableDiscovered)
		if err != nil {
			return err
		}
		if src, ok := found.(*database.DiscoveredSource); ok && src != nil {
			return showDiscovered(db, src)
		}

		found, err = db.LookupByName(args[0], database.TablePrimary)
		if err != nil {
			return err
		}
		if src, ok := found.(*database.PrimarySource); ok && src != nil {
			fmt.Printf("%s (primary, %s)\n", src.Name, src.Kind)
			if src.URL != nil {
				fmt.Printf("  URL: %s\n", *src.URL)
			}
			if src.Handle != nil {
				fmt.Printf("  Handle: @%s\n", *src.Handle)
			}
			fmt.Printf("  Last checked: %s\n", orNever(src.LastChecked))
			return nil
		}
		return fmt.Errorf("source %q not found", args[0])
	},
}

func showDiscovered(db *database.DB, src *database.DiscoveredSource) error {
	fmt.Printf("%s (%s)\n", src.Name, src.Kind)
	fmt.Printf("  Relevance: %.2f\n", src.RelevanceScore)
	fmt.Printf("  Citations: %d\n", src.CitationCount)
	fmt.Printf("  Last active: %s\n", orNever(src.LastActive))

	_, reason := newEngine().Decide(*src)
	if src.RecommendationSent {
		fmt.Printf("  Recommended: %s\n", orNever(src.RecommendationSentAt))
	} else {
		fmt.Printf("  Decision: %s\n", reason)
	}

	citations, err := db.GetCitations(src.ID)
	if err != nil {
		return err
	}
	if len(citations) > 0 {
		fmt.Println("\nCited by:")
		for _, c := range citations {
			fmt.Printf("  %s  %s\n", database.FormatDisplay(c.Date), c.PrimaryName)
			if c.Text != nil && verbose {
				fmt.Printf("      %s\n", *c.Text)
			}
		}
	}
	return nil
}

func init() {
	sourcesCmd.Flags().BoolVarP(&sourcesAll, "all", "a", false, "Include sources below the thresholds")
	sourcesCmd.AddCommand(sourcesShowCmd)
}

// --- recommendations command ---

var recommendationsLimit int

var recommendationsCmd = &cobra.Command{
	Use:   "recommendations",
	Short: "Show recommendation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		recs, err := db.GetRecommendations(recommendationsLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("Nothing recommended yet. Run: aidiscovery run")
			return nil
		}

		for _, r := range recs {
			fmt.Printf("  %s  %s (%.2f)\n", database.FormatDisplay(r.Date), r.SourceName, r.RelevanceScore)
			if r.Reasoning != nil {
				fmt.Printf("        %s\n", *r.Reasoning)
			}
		}
		return nil
	},
}

func init() {
	recommendationsCmd.Flags().IntVarP(&recommendationsLimit, "limit", "n", 20, "Maximum entries to show (0 for all)")
}

// --- report command ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the latest discovery report",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := db.GetLatestReport()
		if err != nil {
			return err
		}
		if rep == nil {
			fmt.Println("No report yet. Set report.enabled in the config and run: aidiscovery run")
			return nil
		}
		fmt.Print(rep.BodyMarkdown)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, newEngine(), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- interests command ---

var interestsCmd = &cobra.Command{
	Use:   "interests",
	Short: "Manage stored interest terms",
}

var interestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured and stored interests",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.GetAllInterests()
		if err != nil {
			return err
		}

		fmt.Println("From config:")
		for _, term := range cfg.Interests {
			fmt.Printf("  %s\n", term)
		}

		if len(items) == 0 {
			fmt.Println("\nNo stored interests. Add one with: aidiscovery interests add")
			return nil
		}

		fmt.Println("\nStored:")
		for _, i := range items {
			icon := " "
			if i.IsActive {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s\n", i.ID, icon, i.Term)
		}
		return nil
	},
}

var interestsAddCmd = &cobra.Command{
	Use:   "add [term]",
	Short: "Add an interest term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertInterest(args[0])
		if err != nil {
			return err
		}
		if id == 0 {
			fmt.Printf("Interest already exists: %s\n", args[0])
			return nil
		}
		fmt.Printf("Added interest [%d]: %s\n", id, args[0])
		return nil
	},
}

var interestsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove an interest term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		interest, err := lookupInterest(db, args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteInterest(interest.ID); err != nil {
			return err
		}
		fmt.Printf("Removed interest [%d]: %s\n", interest.ID, interest.Term)
		return nil
	},
}

var interestsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle an interest's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		interest, err := lookupInterest(db, args[0])
		if err != nil {
			return err
		}
		if err := db.ToggleInterest(interest.ID); err != nil {
			return err
		}
		newState := "disabled"
		if !interest.IsActive {
			newState = "enabled"
		}
		fmt.Printf("Interest [%d] %s: %s\n", interest.ID, interest.Term, newState)
		return nil
	},
}

func init() {
	interestsCmd.AddCommand(interestsListCmd)
	interestsCmd.AddCommand(interestsAddCmd)
	interestsCmd.AddCommand(interestsRemoveCmd)
	interestsCmd.AddCommand(interestsToggleCmd)
}

func lookupInterest(db *database.DB, arg string) (*database.Interest, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid interest ID: %s", arg)
	}
	interest, err := db.GetInterest(id)
	if err != nil {
		return nil, err
	}
	if interest == nil {
		return nil, fmt.Errorf("interest %d not found", id)
	}
	return interest, nil
}

func newEngine() *recommend.Engine {
	t := cfg.Thresholds
	return recommend.New(recommend.Thresholds{
		MinRelevance: t.MinRelevanceScore,
		MinCitations: t.MinCitationCount,
		MaxAgeDays:   t.MaxSourceAgeDays,
	})
}

func orNever(s *string) string {
	if s == nil {
		return "never"
	}
	return database.FormatDisplay(s)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "aidiscovery.db")
	return database.Open(dbPath)
}
