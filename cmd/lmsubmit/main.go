// Command lmsubmit submits local files to a course assignment through the
// background upload pipeline and waits for the backend to confirm the
// submission, polling the local store for progress the same way a host UI
// would.
//
// Usage:
//
//	lmsubmit [-a api] [-t token] [-m comment] <courseID> <assignmentID> <file>...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndrozd/lmsubmit/internal/api"
	"github.com/ndrozd/lmsubmit/internal/assembly"
	"github.com/ndrozd/lmsubmit/internal/composer"
	"github.com/ndrozd/lmsubmit/internal/config"
	"github.com/ndrozd/lmsubmit/internal/flagx"
	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/models"
	"github.com/ndrozd/lmsubmit/internal/store"
	"github.com/ndrozd/lmsubmit/internal/tracing"

	_ "modernc.org/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lmsubmit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {

	cfg := config.LoadConfig()

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	comment, positional := ownArgs()
	if len(positional) < 2 {
		return errors.New("usage: lmsubmit [flags] <courseID> <assignmentID> <file>...")
	}
	courseID, assignmentID, files := positional[0], positional[1], positional[2:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEndpoint != "" {
		shutdown, err := tracing.InitTracer("lmsubmit", cfg.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	comp := composer.New(st, cfg.StagingDir, log)
	client := api.NewClient(cfg.APIEndpoint, cfg.AccessToken, log)

	asm := assembly.New(assembly.Options{
		SessionID:         cfg.SessionID,
		SharedContainerID: cfg.SharedContainerID,
	}, st, comp, client, client, log)

	asm.SetupShareUIDismissBlock(func() {
		log.Info(ctx, "upload continues in background, safe to dismiss")
	})

	submissionID, err := comp.MakeNewSubmission(ctx, courseID, assignmentID, comment, files)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}

	if err := asm.Start(ctx, submissionID); err != nil {
		return fmt.Errorf("start upload: %w", err)
	}

	return waitForCompletion(ctx, st, asm, submissionID, cfg.PollInterval, log)
}

// waitForCompletion polls the store until the submission record disappears
// (success), turns terminally failed, or the user interrupts. On interrupt
// the submission is cancelled destructively.
func waitForCompletion(ctx context.Context, st *store.Store, asm *assembly.Assembly,
	submissionID string, interval time.Duration, log logging.Logger) error {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := asm.Cancel(cancelCtx, submissionID); err != nil {
				log.Error(cancelCtx, "failed to cancel submission", "error", err)
			}
			return errors.New("interrupted, submission cancelled")

		case <-ticker.C:
			sub, err := st.Submissions.GetByID(ctx, submissionID)
			if errors.Is(err, models.ErrNotFound) {
				fmt.Println("submitted")
				return nil
			}
			if err != nil {
				return fmt.Errorf("poll submission: %w", err)
			}
			if sub.SubmitError != "" {
				return fmt.Errorf("submission failed: %s", sub.SubmitError)
			}

			items, err := st.FileItems.GetBySubmissionID(ctx, submissionID)
			if err != nil {
				return fmt.Errorf("poll file items: %w", err)
			}

			for _, item := range items {
				if item.UploadError != "" {
					return fmt.Errorf("upload of %s failed: %s", item.Name, item.UploadError)
				}
				fmt.Printf("%s: %d/%d bytes\n", item.Name, item.BytesUploaded, item.BytesToUpload)
			}
		}
	}
}

// ownArgs parses the flags main owns (-m) and returns the comment plus the
// positional arguments left over once every known flag is stripped.
func ownArgs() (string, []string) {

	var comment string
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.StringVar(&comment, "m", "", "submission comment")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-m"}))

	flagsWithValue := map[string]struct{}{
		"-a": {}, "-t": {}, "-d": {}, "-s": {}, "-i": {}, "-o": {}, "-m": {}, "-c": {}, "-config": {},
	}

	var positional []string
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		if _, ok := flagsWithValue[args[i]]; ok {
			i++ // skip the flag's value
			continue
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			continue
		}
		positional = append(positional, args[i])
	}

	return comment, positional
}
