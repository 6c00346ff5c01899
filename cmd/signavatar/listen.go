package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/signavatar/internal/bus"
	"github.com/normanking/signavatar/internal/config"
	"github.com/normanking/signavatar/internal/lexicon"
	"github.com/normanking/signavatar/internal/metrics"
	"github.com/normanking/signavatar/internal/playback"
	"github.com/normanking/signavatar/internal/render"
	"github.com/normanking/signavatar/internal/session"
	"github.com/normanking/signavatar/internal/sign"
	"github.com/normanking/signavatar/internal/stt"
)

func listenCmd() *cobra.Command {
	var (
		sourceKind string
		url        string
		lang       string
		addr       string
		noTerminal bool
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Translate a live transcript stream",
		Long: `Reads transcripts and drives the avatar until the source ends.

With --source stdin each line is a final transcript; lines starting with "~"
are interim. With --source websocket the recognizer pushes JSON messages
{"text": "...", "isFinal": true}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceKind != "" {
				cfg.Source.Kind = sourceKind
			}
			if url != "" {
				cfg.Source.URL = url
			}
			if lang != "" {
				cfg.Settings.SignLang = sign.Language(lang)
			}
			if addr != "" {
				cfg.Render.ListenAddr = addr
			}
			if noTerminal {
				cfg.Render.Terminal = false
			}
			return runListen(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&sourceKind, "source", "", "transcript source: stdin or websocket")
	cmd.Flags().StringVar(&url, "url", "", "recognizer WebSocket URL")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "sign language (ASL, BSL, ISL)")
	cmd.Flags().StringVar(&addr, "addr", "", "serve avatar WebSocket and /metrics on this address")
	cmd.Flags().BoolVar(&noTerminal, "no-terminal", false, "do not draw frames in the terminal")
	return cmd
}

func runListen(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Component("listen")

	lexicons, err := lexicon.Load(cfg.Lexicon.Dir)
	if err != nil {
		return err
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	eventBus := bus.NewEventBus()
	defer eventBus.Clear()
	eventBus.SubscribeMultiple([]bus.EventType{bus.EventTypeSafetyWarn, bus.EventTypeSafetyBlock}, printSafetyEvent)

	var renderers render.Multi
	if cfg.Render.Terminal {
		renderers = append(renderers, render.NewTerminal(os.Stdout))
	}
	if cfg.Render.ListenAddr != "" {
		hub := render.NewHub(log.Component("hub"))
		srv := render.NewServer(hub, log.Component("server"), map[string]http.Handler{
			"/metrics": m.Handler(),
		})
		if err := srv.Start(cfg.Render.ListenAddr); err != nil {
			return err
		}
		defer srv.Stop()
		renderers = append(renderers, hub)
		fmt.Fprintf(os.Stderr, "Avatar stream on ws://%s%s\n", srv.Addr(), render.AvatarEndpoint)
	}

	sess := session.New(session.Config{
		Settings:        cfg.Settings,
		Policy:          policy(),
		Lexicons:        lexicons,
		Filter:          cfg.Source.Filter(),
		Renderer:        renderers,
		PlaybackOptions: []playback.Option{playback.WithTickInterval(cfg.Playback.TickInterval)},
		EventBus:        eventBus,
		Metrics:         m,
		Logger:          log.Zerolog(),
	})

	store.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("Config reload failed")
			return
		}
		sess.UpdateSettings(next.Settings)
	})

	if err := sess.Run(ctx, src); err != nil {
		return err
	}
	waitForPlayback(ctx, sess.Player())
	return nil
}

func newSource(cfg *config.Config) (stt.Source, error) {
	switch cfg.Source.Kind {
	case "", "stdin":
		return stt.NewLineSource(os.Stdin, cfg.Source.Interim), nil
	case "websocket":
		return stt.NewWebSocketSource(log.Component("stt"), stt.WebSocketConfig{
			URL:     cfg.Source.URL,
			Interim: cfg.Source.Interim,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want stdin or websocket)", cfg.Source.Kind)
	}
}

// waitForPlayback lets the last sequence finish before exiting.
func waitForPlayback(ctx context.Context, player playback.Handle) {
	sched, ok := player.(*playback.Scheduler)
	if !ok {
		return
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for sched.Status() == playback.StatusPlaying {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printSafetyEvent(e bus.Event) {
	msg, _ := e.Data["message"].(string)
	if e.Type == bus.EventTypeSafetyBlock {
		fmt.Fprintln(os.Stderr, blockStyle.Render(msg))
		return
	}
	fmt.Fprintln(os.Stderr, warnStyle.Render(msg))
}
