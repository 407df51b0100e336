package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mikey/llm-reply-drafter/internal/adapters/store"
	"github.com/mikey/llm-reply-drafter/internal/clustering"
	"github.com/mikey/llm-reply-drafter/internal/di"
	"github.com/mikey/llm-reply-drafter/internal/embedding"
	"github.com/mikey/llm-reply-drafter/internal/patterns"
	"github.com/mikey/llm-reply-drafter/internal/ports"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()
	if flags.AccountID == "" {
		fmt.Println("Missing -account")
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
	db *store.PostgresStore,
	indexer *embedding.Indexer,
	profiler *clustering.Profiler,
	analyzer *patterns.Analyzer,
) error {
	defer logger.Sync()
	defer db.Close()

	ctx := context.Background()

	account, err := db.GetAccount(ctx, flags.AccountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", flags.AccountID, err)
	}

	if flags.Index {
		n, err := indexer.IndexPending(ctx, account.UserID, flags.IndexSize)
		if err != nil {
			return fmt.Errorf("index pending emails: %w", err)
		}
		fmt.Printf("Indexed %d emails\n", n)
	}

	if flags.Recluster != "" {
		clusters, err := profiler.Recluster(ctx, account.UserID, flags.Recluster)
		if err != nil {
			return fmt.Errorf("recluster %s: %w", flags.Recluster, err)
		}
		if err := analyzer.Clear(ctx, account.UserID, flags.Recluster); err != nil {
			return fmt.Errorf("clear patterns of %s: %w", flags.Recluster, err)
		}
		fmt.Printf("Rebuilt %d style clusters for %s\n", len(clusters), flags.Recluster)
	}

	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("open input file: %w", err)
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	raw, err := io.ReadAll(emailReader)
	if err != nil {
		return fmt.Errorf("read email: %w", err)
	}

	res := emailFilter.ProcessEmail(ctx, flags.AccountID, raw)
	if !res.Success {
		return fmt.Errorf("%s: %s", res.ErrorCode, res.Error)
	}
	return nil
}
