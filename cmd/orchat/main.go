package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"orchat/internal/api"
	"orchat/internal/appinfo"
	"orchat/internal/applog"
	"orchat/internal/config"
	"orchat/internal/tui"
	"orchat/internal/turn"
)

var (
	flagConfig  string
	flagBaseURL string
	flagThread  string
	flagLogFile string
)

var rootCmd = &cobra.Command{
	Use:     "orchat",
	Short:   "Chat with the multi-agent orchestrator",
	Long:    "orchat streams turns from the orchestrator backend, shows per-agent activity live, and pauses for review when the assistant needs approval.",
	Version: appinfo.Display(),
	RunE:    runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: $ORCHAT_CONFIG, ./orchat.yaml, ~/.config/orchat/orchat.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "backend address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagThread, "thread", "", "conversation thread id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "debug log file (overrides config)")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newTranscribeCmd())
	rootCmd.AddCommand(newSpeakCmd())
	rootCmd.AddCommand(newHealthCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "orchat: %v\n", err)
		os.Exit(1)
	}
}

// loadSetup resolves config, flags, and shared collaborators for a command.
func loadSetup() (config.Config, *api.Client, *applog.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if strings.TrimSpace(flagBaseURL) != "" {
		cfg.BaseURL = flagBaseURL
	}
	if strings.TrimSpace(flagThread) != "" {
		cfg.ThreadID = flagThread
	}
	if strings.TrimSpace(flagLogFile) != "" {
		cfg.LogFile = flagLogFile
	}

	client := api.NewClient(cfg.BaseURL, cfg.RequestTimeout)
	log := applog.OpenFile(cfg.LogFile)
	return cfg, client, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newChatCmd() *cobra.Command {
	var ui string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatMode(ui)
		},
	}
	cmd.Flags().StringVar(&ui, "ui", "", "force the interface: tui or plain")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatMode("")
}

func runChatMode(ui string) error {
	cfg, client, log, err := loadSetup()
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := signalContext()
	defer cancel()

	threadID := strings.TrimSpace(cfg.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	controller := turn.NewController(client, turn.Options{
		ThreadID: threadID,
		Limits: turn.Limits{
			BufferCap:       cfg.BufferCap,
			PreviewCap:      cfg.PreviewCap,
			PreviewInterval: cfg.PreviewInterval,
		},
		Logger: log,
	})

	opts := tui.Options{
		Client:     client,
		Controller: controller,
		Logger:     log,
		SpeakTo:    cfg.SpeakTo,
	}

	switch strings.ToLower(strings.TrimSpace(ui)) {
	case "plain":
		return tui.RunPlain(ctx, os.Stdin, os.Stdout, opts)
	case "tui":
		return tui.Run(ctx, os.Stdin, os.Stdout, opts)
	case "":
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return tui.Run(ctx, os.Stdin, os.Stdout, opts)
		}
		return tui.RunPlain(ctx, os.Stdin, os.Stdout, opts)
	default:
		return fmt.Errorf("unknown --ui value %q (want tui or plain)", ui)
	}
}

func newHistoryCmd() *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the persisted conversation for a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, log, err := loadSetup()
			if err != nil {
				return err
			}
			defer log.Close()
			if strings.TrimSpace(cfg.ThreadID) == "" {
				return errors.New("history needs a thread id (--thread or config)")
			}

			ctx, cancel := signalContext()
			defer cancel()
			msgs, err := client.History(ctx, cfg.ThreadID)
			if err != nil {
				return err
			}
			replayed := turn.ReplayHistory(msgs)

			switch strings.ToLower(formatFlag) {
			case "", "table":
				writeHistoryTable(cmd, replayed)
				return nil
			case "plain":
				for _, rm := range replayed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rm.Role, strings.ReplaceAll(rm.Content, "\n", "\\n"))
				}
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(replayed)
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}
	cmd.Flags().StringVar(&formatFlag, "format", "", "output format: table, plain, or json")
	return cmd
}

func writeHistoryTable(cmd *cobra.Command, msgs []turn.ReplayedMessage) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 100},
	})
	tw.AppendHeader(table.Row{"Role", "Content"})
	for _, rm := range msgs {
		tw.AppendRow(table.Row{rm.Role, rm.Content})
	}
	if len(msgs) == 0 {
		tw.AppendRow(table.Row{"-", "(no messages)"})
	}
	_ = tw.Render()
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Wipe the server-side history for a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, log, err := loadSetup()
			if err != nil {
				return err
			}
			defer log.Close()
			if strings.TrimSpace(cfg.ThreadID) == "" {
				return errors.New("clear needs a thread id (--thread or config)")
			}

			ctx, cancel := signalContext()
			defer cancel()
			if err := client.ClearHistory(ctx, cfg.ThreadID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared thread %s\n", cfg.ThreadID)
			return nil
		},
	}
}

func newTranscribeCmd() *cobra.Command {
	var (
		language string
		send     bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file via the voice service",
		Long:  "Transcribe an audio file. With --send, the transcribed text is submitted as a turn exactly as if it had been typed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, log, err := loadSetup()
			if err != nil {
				return err
			}
			defer log.Close()
			if strings.TrimSpace(language) == "" {
				language = cfg.Language
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, cancel := signalContext()
			defer cancel()
			out, err := client.Transcribe(ctx, filepath.Base(args[0]), f, language)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			if !send {
				return nil
			}

			threadID := strings.TrimSpace(cfg.ThreadID)
			if threadID == "" {
				threadID = uuid.NewString()
			}
			controller := turn.NewController(client, turn.Options{ThreadID: threadID, Logger: log})
			return tui.RunOnce(ctx, os.Stdin, cmd.OutOrStdout(), tui.Options{
				Client:     client,
				Controller: controller,
				Logger:     log,
			}, out.Text)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "force the transcription language (e.g. en)")
	cmd.Flags().BoolVar(&send, "send", false, "submit the transcription as a chat turn")
	return cmd
}

func newSpeakCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize text to an audio file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, log, err := loadSetup()
			if err != nil {
				return err
			}
			defer log.Close()
			if strings.TrimSpace(outPath) == "" {
				return errors.New("--out is required")
			}

			ctx, cancel := signalContext()
			defer cancel()
			audio, err := client.Speak(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, audio, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(audio), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output audio file")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, log, err := loadSetup()
			if err != nil {
				return err
			}
			defer log.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("backend %s: %w", cfg.BaseURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s is healthy\n", cfg.BaseURL)
			return nil
		},
	}
}
