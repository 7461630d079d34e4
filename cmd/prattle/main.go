package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prattlebot/prattle/pkg/chain"
	"github.com/prattlebot/prattle/pkg/fetch"
	"github.com/prattlebot/prattle/pkg/ingest"
	"github.com/prattlebot/prattle/pkg/tokenize"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the config file")
	doIngest := flag.Bool("ingest", false, "pull the configured sources into the store before generating")
	generate := flag.Int("generate", 0, "generate this many tokens and exit instead of running the interactive loop")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger.Info("prattle starting", "version", Version, "backend", config.Backend, "order", config.Order)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(config, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if *doIngest {
		if err = runIngest(ctx, store, config, logger); err != nil {
			logger.Error("ingestion aborted", "error", err)
		}
	}

	if *generate > 0 {
		tokens, err := chain.Generate(ctx, store, chain.WithMaxTokens(*generate))
		if err != nil {
			logger.Error("generation failed", "error", err)
			return
		}
		fmt.Println(tokenize.Join(tokens))
		return
	}

	interact(ctx, store, config, logger)
	logger.Info("prattle has shut down")
}

// openStore builds the configured Store backend. The returned cleanup
// function flushes and releases whatever the backend holds.
func openStore(config *Config, logger *slog.Logger) (chain.Store, func(), error) {
	switch config.Backend {
	case "memory":
		store := chain.NewMemoryStore(config.Order)
		if _, err := os.Stat(config.SnapshotPath); err == nil {
			loaded, err := chain.LoadFile(config.SnapshotPath)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
			}
			if loaded.Order() != config.Order {
				return nil, nil, fmt.Errorf("snapshot order %d does not match configured order %d", loaded.Order(), config.Order)
			}
			store = loaded
			logger.Info("snapshot loaded", "path", config.SnapshotPath, "contexts", store.Len())
		}
		cleanup := func() {
			if err := store.SaveFile(config.SnapshotPath); err != nil {
				logger.Error("failed to save snapshot", "path", config.SnapshotPath, "error", err)
			}
		}
		return store, cleanup, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		store := chain.NewRedisStore(client, config.Order, chain.WithNamespace(config.RedisNamespace))
		store.SetLogger(logger)
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}
		return store, cleanup, nil

	case "sqlite":
		db, err := initDB(config.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err = chain.SetupSQLSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to set up schema: %w", err)
		}
		store, err := chain.NewSQLStore(db, config.Order)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store.SetLogger(logger)
		cleanup := func() {
			store.Close()
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}
		return store, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want memory, redis or sqlite)", config.Backend)
	}
}

// runIngest pulls every configured source URL through the rate-limited
// fetcher and the pipeline into the store.
func runIngest(ctx context.Context, store chain.Store, config *Config, logger *slog.Logger) error {
	if len(config.SourceURLs) == 0 {
		return errors.New("no source_urls configured")
	}

	fetcher := fetch.NewFetcher(&fetch.HTTPSource{}, time.Duration(config.FetchIntervalMs)*time.Millisecond, fetch.WithLogger(logger))
	defer fetcher.Close()

	sources := make([]ingest.DocumentSource, 0, len(config.SourceURLs))
	for _, sourceURL := range config.SourceURLs {
		sources = append(sources, ingest.SourceFunc(func(ctx context.Context) iter.Seq[string] {
			return fetcher.Documents(ctx, sourceURL)
		}))
	}

	pipeline := ingest.New(store, ingest.WithBuffer(config.ChannelBuffer), ingest.WithLogger(logger))
	_, err := pipeline.Run(ctx, sources...)
	return err
}

// interact reads seed text from stdin and prints generated sequences until
// EOF or cancellation.
func interact(ctx context.Context, store chain.Store, config *Config, logger *slog.Logger) {
	fmt.Println("Enter seed text (blank line for a random seed, Ctrl-D to exit).")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		var opts []chain.GenerateOption
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			tokens := tokenize.Normalize(line)
			if len(tokens) < store.Order() {
				fmt.Printf("need at least %d tokens of seed text\n", store.Order())
				continue
			}
			seed := chain.NewContext(tokens[len(tokens)-store.Order():]...)
			opts = append(opts, chain.WithSeed(seed))
		}
		opts = append(opts, chain.WithMaxTokens(config.MaxTokens))

		tokens, err := chain.Generate(ctx, store, opts...)
		if err != nil {
			if errors.Is(err, chain.ErrEmptyStore) {
				fmt.Println("the store is empty; run with -ingest first")
				continue
			}
			logger.Error("generation failed", "error", err)
			continue
		}
		fmt.Println(tokenize.Join(tokens))
	}
}
