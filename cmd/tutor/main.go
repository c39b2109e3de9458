package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/tutor/internal/bank"
	"github.com/pavelanni/tutor/internal/engine"
	"github.com/pavelanni/tutor/internal/handler"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/store"
	"github.com/pavelanni/tutor/internal/store/postgres"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Adaptive learning scheduler with spaced repetition",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), recommendCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db", "tutor.db", "SQLite database path (question bank, and snapshots with --store sqlite)")
	f.String("store", "sqlite", "Snapshot store (sqlite, postgres, memory)")
	f.String("postgres-dsn", "", "PostgreSQL connection string for --store postgres")
	f.Duration("store-timeout", 5*time.Second, "Timeout for each snapshot load or save")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP tutoring API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Questions JSON files to import before serving (repeatable)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for free-text grading (empty disables grading)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Default language for recommendation text (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.StringP("difficulty", "d", "", "Serve only questions of this difficulty (easy, medium, hard)")
	f.StringP("topic", "t", "", "Serve only questions of this topic")
	f.Duration("autosave", time.Minute, "Interval between saves of changed learners (0 disables)")
	f.Duration("idle-timeout", 30*time.Minute, "Drop saved learners from memory after this long without requests (0 keeps them)")
	f.Float64("answers-per-second", 2, "Per-learner answer rate limit (0 disables)")
	f.Int("answer-burst", 5, "Per-learner answer burst")
	addStoreFlags(f)
	addLogFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import questions from JSON files into the question bank",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "tutor.db", "SQLite database path")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every learner's progress as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStoreFlags(f)
	addLogFlags(f)
	return cmd
}

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print study recommendations for a learner",
		RunE:  runRecommend,
	}
	f := cmd.Flags()
	f.String("learner", "", "Learner id (required)")
	f.StringP("lang", "l", "en", "Language for recommendation text (en, ru)")
	addStoreFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("learner")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}

	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutor")
	v.AddConfigPath("/etc/tutor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openBank loads the question bank from the database into memory.
// Empty filters select every question.
func openBank(db *store.Store, difficulty, topic string) (*bank.Catalog, error) {
	if difficulty != "" && !model.Difficulty(difficulty).Valid() {
		return nil, fmt.Errorf("invalid difficulty %q", difficulty)
	}
	qs, err := db.ListQuestionsFiltered(difficulty, topic)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return bank.New(qs)
}

// openSnapshots returns the snapshot store selected by --store and a
// function releasing its resources.
func openSnapshots(ctx context.Context, v *viper.Viper, db *store.Store) (engine.SnapshotStore, func(), error) {
	switch kind := strings.ToLower(v.GetString("store")); kind {
	case "", "sqlite":
		return db, func() {}, nil
	case "memory":
		slog.Warn("using in-memory snapshot store, progress is lost on exit")
		return engine.NewMemoryStore(), func() {}, nil
	case "postgres":
		dsn := v.GetString("postgres-dsn")
		if dsn == "" {
			return nil, nil, errors.New("--postgres-dsn (or TUTOR_POSTGRES_DSN) is required for --store postgres")
		}
		pool, err := postgres.NewPool(ctx, dsn, postgres.PoolConfig{})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		ps := postgres.NewSnapshotStore(pool)
		if err := ps.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return ps, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want sqlite, postgres or memory)", kind)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if err := logBankSummary(db); err != nil {
		return err
	}
	b, err := openBank(db, strings.ToLower(v.GetString("difficulty")), v.GetString("topic"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	if b.Len() == 0 {
		slog.Warn("question bank is empty, import questions with `tutor import`")
	}

	snapshots, closeSnapshots, err := openSnapshots(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var grader handler.Grader
	if url := v.GetString("llm-url"); url != "" {
		llmClient := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"),
			strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))))
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		grader = llmClient
	} else {
		slog.Info("no LLM configured, free-text answers are disabled")
	}

	cfg := model.ServeConfig{
		Addr:             v.GetString("addr"),
		BasePath:         v.GetString("base-path"),
		Lang:             lang,
		AutosaveInterval: v.GetDuration("autosave"),
		StoreTimeout:     v.GetDuration("store-timeout"),
		IdleTimeout:      v.GetDuration("idle-timeout"),
		AnswersPerSecond: v.GetFloat64("answers-per-second"),
		AnswerBurst:      v.GetInt("answer-burst"),
	}

	reg := engine.NewRegistry(b, snapshots, cfg.StoreTimeout)
	h := handler.New(b, reg, grader, cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(h, cfg.BasePath, cfg.Lang),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", cfg.Addr,
		"questions", b.Len(),
		"store", v.GetString("store"),
		"lang", cfg.Lang,
		"base_path", cfg.BasePath,
		"autosave", cfg.AutosaveInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.AutosaveInterval > 0 {
		g.Go(func() error {
			autosave(gctx, reg, h, cfg.AutosaveInterval, cfg.IdleTimeout)
			return nil
		})
	}

	err = g.Wait()
	slog.Info("shutting down, saving learners")
	saved, saveErr := reg.SaveAll(context.Background())
	if saveErr != nil {
		slog.Error("final save failed", "saved", saved, "error", saveErr)
	} else {
		slog.Info("final save complete", "saved", saved)
	}
	return errors.Join(err, saveErr)
}

// autosave periodically persists learners with unsaved changes until ctx
// ends. When idle is positive, saved learners and rate limits unused for
// that long are then dropped from memory.
func autosave(ctx context.Context, reg *engine.Registry, h *handler.Handler, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := reg.SaveAll(ctx)
			if err != nil {
				slog.Error("autosave failed", "saved", saved, "error", err)
			} else if saved > 0 {
				slog.Debug("autosave", "saved", saved)
			}
			if idle > 0 {
				evicted := reg.Evict(idle)
				pruned := h.PruneLimiters(idle)
				if evicted > 0 || pruned > 0 {
					slog.Debug("dropped idle learners", "sessions", evicted, "limiters", pruned)
				}
			}
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(db, args); err != nil {
		return err
	}
	return logBankSummary(db)
}

// logBankSummary reports the size and topics of the question bank.
func logBankSummary(db *store.Store) error {
	count, err := db.QuestionCount()
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	topics, err := db.ListDistinctTopics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	slog.Info("question bank", "questions", count, "topics", strings.Join(topics, ", "))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	b, err := openBank(db, "", "")
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	snapshots, closeSnapshots, err := openSnapshots(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	export, err := engine.Export(ctx, b, snapshots, time.Now())
	if err != nil {
		return fmt.Errorf("export learners: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	b, err := openBank(db, "", "")
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	snapshots, closeSnapshots, err := openSnapshots(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))

	learner := v.GetString("learner")
	e := engine.New(b, snapshots, learner)
	if err := e.LoadState(ctx); err != nil {
		if !errors.Is(err, model.ErrCorruptSnapshot) {
			return err
		}
		slog.Warn("discarding corrupt snapshot", "learner", learner, "error", err)
	}

	recs := e.Recommendations(ctx, time.Now())
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(ctx, "NoRecommendations"))
		return nil
	}
	for i, r := range recs {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. [%s] %s (%d min)\n   %s\n   %s\n",
			i+1, r.Priority, r.Title, r.EstimatedMinutes, r.Description, r.Action)
	}
	return nil
}

func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to keep item ids stable",
				"path", path)
			continue
		}

		var questions []model.QuestionImport
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for i, qi := range questions {
			_, err := db.InsertQuestion(model.Question{
				Topic:         qi.Topic,
				Difficulty:    qi.Difficulty,
				Text:          qi.Text,
				Options:       qi.Options,
				CorrectOption: qi.CorrectOption,
				Rubric:        qi.Rubric,
				ModelAnswer:   qi.ModelAnswer,
			})
			if err != nil {
				return fmt.Errorf("insert question %d from %s: %w", i+1, path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
