// Package main is the entry point for the signavatar CLI. It turns a stream
// of recognized speech into sign-language avatar cues.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/signavatar/internal/config"
	"github.com/normanking/signavatar/internal/lexicon"
	"github.com/normanking/signavatar/internal/logging"
	"github.com/normanking/signavatar/internal/pipeline"
	"github.com/normanking/signavatar/internal/render"
	"github.com/normanking/signavatar/internal/safety"
	"github.com/normanking/signavatar/internal/sign"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool

	store *config.Store
	cfg   *config.Config
	log   *logging.Logger
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	warnStyle   = lipgloss.NewStyle().Foreground(render.ColorUncertain)
	blockStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "signavatar",
		Short: "signavatar - speech to sign-language avatar",
		Long: `signavatar converts recognized speech into timed sign-language cues
for an avatar, masking and gating unsafe text before translation.

Listen on stdin:        signavatar listen
Translate one phrase:   signavatar translate "how are you?"
Configuration:          signavatar config show`,
		PersistentPreRunE:  initApp,
		PersistentPostRunE: closeApp,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.signavatar/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "signavatar v%s\n", version)
		},
	})
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(translateCmd())
	rootCmd.AddCommand(maskCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

func initApp(cmd *cobra.Command, args []string) error {
	var err error
	store, err = config.NewStore(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err = store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Dir = cfg.Log.Dir
	logCfg.Level = cfg.Log.Level
	if verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Console = false
	}
	log, err = logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	zl := log.Zerolog()
	zl.Debug().Str("config", store.Path()).Str("log", log.Path()).Msg("signavatar started")
	return nil
}

func closeApp(cmd *cobra.Command, args []string) error {
	if log != nil {
		return log.Close()
	}
	return nil
}

func policy() *safety.Policy {
	return safety.NewPolicy(cfg.Safety.PolicyConfig())
}

// translateCmd runs text through masking and the pipeline and prints the frames.
func translateCmd() *cobra.Command {
	var (
		lang   string
		asJSON bool
		noMask bool
		cards  bool
	)
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate text into sign frames",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := cfg.Settings
			if lang != "" {
				settings.SignLang = sign.Language(lang)
			}
			settings, _ = settings.Normalize()

			lexicons, err := lexicon.Load(cfg.Lexicon.Dir)
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if settings.SafetyMode && !noMask {
				text = policy().Mask(text)
			}
			res := pipeline.ProcessUtteranceStream(text, pipeline.Options{
				SignLang: settings.SignLang,
				Latency:  settings.Latency,
				Lexicon:  lexicons.For(settings.SignLang),
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s  %s", settings.SignLang, strings.Join(res.Glosses(), " "))))
			if res.Uncertain {
				fmt.Fprintln(out, warnStyle.Render("uncertain translation"))
			}
			if !cards {
				for _, f := range res.Frames {
					fmt.Fprintf(out, "%5d-%-5d %-14s [%s] brows=%s head=%s\n", f.StartMs, f.EndMs, f.Gloss, f.Semantic, f.NMM.Brows, f.NMM.Head)
				}
				return nil
			}
			term := render.NewTerminal(out)
			for i := range res.Frames {
				fmt.Fprintln(out, term.View(&res.Frames[i], res.Uncertain))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "sign language (ASL, BSL, ISL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print frames as JSON")
	cmd.Flags().BoolVar(&noMask, "no-mask", false, "skip masking even in safety mode")
	cmd.Flags().BoolVar(&cards, "cards", false, "draw each frame as a card")
	return cmd
}

func maskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask <text>",
		Short: "Mask disallowed content in text",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), policy().Mask(strings.Join(args, " ")))
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("signavatar configuration"))
			fmt.Fprintln(out, "─────────────────────────")
			fmt.Fprintf(out, "Sign Language:   %s\n", cfg.Settings.SignLang)
			fmt.Fprintf(out, "Avatar Style:    %s\n", cfg.Settings.AvatarStyle)
			fmt.Fprintf(out, "Safety Mode:     %t\n", cfg.Settings.SafetyMode)
			fmt.Fprintf(out, "Latency:         %s\n", cfg.Settings.Latency)
			fmt.Fprintf(out, "Block Threshold: %d\n", cfg.Safety.BlockThreshold)
			fmt.Fprintf(out, "Tick Interval:   %s\n", cfg.Playback.TickInterval)
			fmt.Fprintf(out, "Lexicon Dir:     %s\n", orNone(cfg.Lexicon.Dir))
			fmt.Fprintf(out, "Source:          %s %s\n", cfg.Source.Kind, cfg.Source.URL)
			fmt.Fprintf(out, "Render Address:  %s\n", orNone(cfg.Render.ListenAddr))
			fmt.Fprintf(out, "Log Level:       %s\n", cfg.Log.Level)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), store.Path())
		},
	})

	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
