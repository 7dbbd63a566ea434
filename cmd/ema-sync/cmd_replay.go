package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	engine "github.com/koscakluka/ema-sync/core"
	"github.com/koscakluka/ema-sync/core/events"
	"github.com/koscakluka/ema-sync/core/timeline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

const maxReplayLine = 4 << 20

var replayWindow int

var replayCmd = &cobra.Command{
	Use:   "replay <file.jsonl>",
	Short: "Feed recorded envelopes through the engine and print the timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		logger, closeLog, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		engineConfig, err := cfg.engineConfig()
		if err != nil {
			return err
		}
		if replayWindow > 0 {
			engineConfig.WindowSize = replayWindow
		}

		f, err := os.Open(args[0])
		if err != nil {
			return goerr.Wrap(err, "failed to open recording", goerr.V("path", args[0]))
		}
		defer f.Close()

		e := engine.NewEngine(engine.WithConfig(engineConfig), engine.WithLogger(logger))
		return replay(cmd.Context(), e, f, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayWindow, "window", 0, "number of messages to print (overrides config)")
	rootCmd.AddCommand(replayCmd)
}

// replay delivers every envelope in r, one per line, and prints the
// resulting timeline to w. Lines that are not envelopes are skipped.
func replay(ctx context.Context, e *engine.Engine, r io.Reader, w io.Writer) error {
	var errs []error
	runDone := make(chan error, 1)
	go func() {
		runDone <- e.Run(ctx, engine.WithErrorCallback(func(err error) { errs = append(errs, err) }))
	}()
	defer func() {
		e.Close()
		<-runDone
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxReplayLine)

	delivered, skipped := 0, 0
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		envelope, err := events.ParseEnvelope(scanner.Bytes())
		if err != nil {
			skipped++
			continue
		}
		e.Deliver(envelope.Event, envelope.Data)
		delivered++
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read recording")
	}

	flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := e.Flush(flushCtx); err != nil {
		return goerr.Wrap(err, "failed to process recording")
	}

	for _, message := range e.Messages() {
		fmt.Fprintln(w, formatMessage(message))
	}
	fmt.Fprintf(w, "-- %d delivered, %d skipped, %d errors\n", delivered, skipped, len(errs))
	return nil
}

func formatMessage(message timeline.Message) string {
	speaker := "agent"
	if message.Role == timeline.RoleUser {
		speaker = "user"
	}
	return fmt.Sprintf("[%s] %s: %s", message.Time().UTC().Format(time.RFC3339), speaker, message.Text)
}
