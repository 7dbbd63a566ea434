package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	engine "github.com/koscakluka/ema-sync/core"
	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/presence"
	"github.com/koscakluka/ema-sync/core/timeline"
	"github.com/koscakluka/ema-sync/core/transport/soul"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	chatURL  string
	chatSink string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a session in an interactive terminal view",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "", "websocket URL of the session (overrides config)")
	chatCmd.Flags().StringVar(&chatSink, "sink", "", "audio sink: none, malgo or portaudio (overrides config)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if chatURL != "" {
		cfg.Session.URL = chatURL
	}
	if chatSink != "" {
		cfg.Audio.Sink = chatSink
	}
	if cfg.Session.URL == "" {
		return goerr.New("no session URL configured")
	}
	if cfg.LogFile == "" && logFile == "" {
		// the terminal belongs to the TUI
		cfg.LogFile = "ema-sync.log"
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

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var dialOpts []soul.DialOption
	dialOpts = append(dialOpts, soul.WithLogger(logger))
	if cfg.Session.Token != "" {
		dialOpts = append(dialOpts, soul.WithHeader(http.Header{"Authorization": {"Bearer " + cfg.Session.Token}}))
	}
	client, err := soul.Dial(ctx, cfg.Session.URL, dialOpts...)
	if err != nil {
		return goerr.Wrap(err, "failed to join session", goerr.V("url", cfg.Session.URL))
	}

	sink, err := openSink(cfg.Audio, logger)
	if err != nil {
		_ = client.Close()
		return err
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("failed to close audio sink", "error", err)
			}
		}()
	}

	var counter presence.Counter = presence.Static(1)
	var poller *presence.HTTPPoller
	if cfg.Presence.URL != "" {
		poller = presence.NewHTTPPoller(cfg.Presence.URL,
			presence.WithInterval(cfg.Presence.Interval), presence.WithLogger(logger))
		counter = poller
	}

	engineOpts := []engine.EngineOption{
		engine.WithConfig(engineConfig),
		engine.WithTransport(client),
		engine.WithPresence(counter),
		engine.WithLogger(logger),
		engine.WithSessionID(cfg.Session.ID),
	}
	if sink != nil {
		engineOpts = append(engineOpts, engine.WithAudioOutput(sink))
	}
	e := engine.NewEngine(engineOpts...)
	defer e.Close()

	g, ctx := errgroup.WithContext(ctx)
	program := tea.NewProgram(newChatModel(ctx, e),
		tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	g.Go(func() error {
		err := client.Listen(ctx, e.Deliver)
		program.Send(disconnectedMsg{})
		return err
	})
	g.Go(func() error {
		return e.Run(ctx,
			engine.WithMessagesCallback(func(messages []timeline.Message) { program.Send(messagesMsg(messages)) }),
			engine.WithBubblesCallback(func(visible []bubbles.Bubble) { program.Send(bubblesMsg(visible)) }),
			engine.WithSpeakingCallback(func(isSpeaking bool) { program.Send(speakingMsg(isSpeaking)) }),
			engine.WithLevelCallback(func(level float64) { program.Send(levelMsg(level)) }),
			engine.WithPendingCallback(func(isPending bool) { program.Send(pendingMsg(isPending)) }),
			engine.WithErrorCallback(func(err error) {
				logger.Warn("session error", "error", err)
				program.Send(errorMsg{err: err})
			}),
		)
	})
	if poller != nil {
		g.Go(func() error { return poller.Run(ctx) })
	}
	g.Go(func() error {
		defer cancel()
		defer e.Close()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return goerr.Wrap(err, "terminal view failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
