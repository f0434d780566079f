package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/archive"
	"github.com/EgorLis/voicebot/internal/bot"
	"github.com/EgorLis/voicebot/internal/config"
	"github.com/EgorLis/voicebot/internal/gemini"
	"github.com/EgorLis/voicebot/internal/logging"
	"github.com/EgorLis/voicebot/internal/metrics"
	"github.com/EgorLis/voicebot/internal/transcode"
	"github.com/EgorLis/voicebot/internal/tts"
	"github.com/EgorLis/voicebot/internal/voice"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath string
		envPath string
		debug   bool
	)
	runE := func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context(), cfgPath, envPath, debug)
	}
	root := &cobra.Command{
		Use:          "voicebot",
		Short:        "Голосовой собеседник для Discord на Gemini Live",
		SilenceUsage: true,
		// без подкоманды — то же, что run
		RunE: runE,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "conf/voicebot.json", "путь к JSON-конфигу")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "файл с переменными окружения")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "подробные логи")

	run := &cobra.Command{
		Use:   "run",
		Short: "Запустить бота",
		RunE:  runE,
	}

	root.AddCommand(run, archiveCmd())
	return root
}

func newApp(settings *config.Settings) *fx.App {
	return fx.New(
		fx.Supply(settings),
		fx.WithLogger(logging.FxLogger),
		logging.Module,
		config.Module,
		metrics.Module,
		transcode.Module,
		tts.Module,
		gemini.Module,
		bot.Module,
		fx.StopTimeout(settings.Lifecycle.ShutdownTimeout.Duration),
	)
}

func runBot(ctx context.Context, cfgPath, envPath string, debug bool) error {
	settings, err := config.Load(cfgPath, envPath)
	if err != nil {
		return err
	}
	if debug {
		settings.Log.Debug = true
	}

	app := newApp(settings)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "running… press Ctrl+C to stop")
	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("exit code %d", sig.ExitCode)
	}
	return nil
}

// ========================= archive =========================

func archiveCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Работа с сохранёнными репликами (/save)",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "audio", "каталог архива")

	ls := &cobra.Command{
		Use:   "ls",
		Short: "Список файлов архива",
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := archive.List(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				recs, err := archive.Read(f)
				if err != nil {
					fmt.Fprintf(out, "%s\terr: %v\n", filepath.Base(f), err)
					continue
				}
				fmt.Fprintf(out, "%s\t%d records\n", filepath.Base(f), len(recs))
			}
			return nil
		},
	}

	var (
		outDir string
		ffmpeg string
	)
	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Выгрузить реплики в WAV и ответы в TXT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(false)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return exportArchive(cmd.Context(), args[0], outDir, transcode.New(ffmpeg), log)
		},
	}
	export.Flags().StringVar(&outDir, "out", ".", "куда писать файлы")
	export.Flags().StringVar(&ffmpeg, "ffmpeg", "ffmpeg", "путь к ffmpeg")

	cmd.AddCommand(ls, export)
	return cmd
}

func exportArchive(ctx context.Context, path, outDir string, tc *transcode.FFmpeg, log *zap.Logger) error {
	recs, err := archive.Read(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(path), archive.Ext)
	for i, r := range recs {
		name := filepath.Join(outDir, fmt.Sprintf("%s_%02d_%s", base, i+1, r.UserID))
		rate, ch := r.SampleRate, r.Channels
		if rate == 0 || ch == 0 {
			rate, ch = voice.ModelSampleRate, voice.ModelChannels
		}
		if len(r.PCM) > 0 {
			wav, err := tc.ToWAV(ctx, r.PCM, rate, ch)
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			if err := os.WriteFile(name+".wav", wav, 0o644); err != nil {
				return err
			}
		}
		if err := os.WriteFile(name+".txt", []byte(r.Reply+"\n"), 0o644); err != nil {
			return err
		}
		log.Info("exported", zap.String("file", name), zap.Duration("length", r.Duration()))
	}
	return nil
}
