// Command voxlate runs a real-time speech-to-speech translation
// pipeline: streaming recognition, incremental machine translation, and
// synthesized playback.
//
// Usage:
//
//	voxlate run --source zh --target en --input speech.pcm
//	voxlate download --source zh --target en
//	voxlate models
//	voxlate languages
//	voxlate clear-cache
//
// With no --input, run reads s16le PCM from stdin; the channel count
// comes from the audio configuration and is downmixed to mono.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/auralang/voxlate/audiocapture"
	"github.com/auralang/voxlate/cache"
	"github.com/auralang/voxlate/config"
	"github.com/auralang/voxlate/internal/types"
	"github.com/auralang/voxlate/langdetect"
	"github.com/auralang/voxlate/modelcache"
	"github.com/auralang/voxlate/pipeline"
	"github.com/auralang/voxlate/tts"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "voxlate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch args[0] {
	case "run":
		return cmdRun(cfg, args[1:])
	case "download":
		return cmdDownload(cfg, args[1:])
	case "models":
		return cmdModels(cfg)
	case "clear-cache":
		return cmdClearCache(cfg)
	case "languages":
		return cmdLanguages(cfg)
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: voxlate <command> [flags]

commands:
  run          start a translation session
  download     fetch the models for a language pair
  models       show cached model state
  languages    list supported languages
  clear-cache  delete all cached models`)
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func cmdRun(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	source := fs.String("source", cfg.Translation.SourceLanguage, "source language code")
	target := fs.String("target", cfg.Translation.TargetLanguage, "target language code")
	input := fs.String("input", "", "s16le PCM file to translate (default: stdin)")
	player := fs.String("player", "", "audio player command (default: ffplay)")
	transcriptOut := fs.String("transcript", "", "write the session transcript to this JSON file")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	setupLogging(*verbose)

	if err := cfg.UpdateLanguagePair(*source, *target); err != nil {
		return err
	}

	models, err := modelcache.New(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("open model cache: %w", err)
	}
	models.SetProgress(printProgress)

	results, err := cache.New(translationCacheDir())
	if err != nil {
		slog.Warn("translation cache unavailable, continuing without", "error", err)
		results = nil
	} else {
		defer results.Close()
	}

	var in io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	// VAD reacts per chunk, so it gets finer-grained delivery.
	chunkMS := cfg.Audio.ChunkDurationMS
	if cfg.Audio.UseVAD {
		chunkMS = cfg.Audio.VADChunkDurationMS
	}
	src := audiocapture.NewReaderSource(in, chunkMS, cfg.Audio.Channels)

	play, err := tts.NewCmdPlayer(*player)
	if err != nil {
		return err
	}

	coord := pipeline.New(pipeline.BuildConfig(cfg, models, results, src, play))
	coord.AddTextCallback(func(text string, isFinal bool) {
		if !isFinal {
			fmt.Printf("\r… %s", text)
			return
		}
		fmt.Printf("\r» %s\n", text)
		if detected, ok := langdetect.Detect(text); ok && detected != *source {
			slog.Warn("recognized text does not look like the source language",
				"detected", detected, "configured", *source)
		}
	})
	coord.AddTranslationCallback(func(text string, isFinal bool) {
		if isFinal {
			fmt.Printf("  → %s\n", text)
		}
	})
	coord.AddErrorCallback(func(err error) {
		slog.Error("pipeline error", "error", err)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("initializing pipeline", "source", *source, "target", *target)
	if err := coord.Initialize(ctx, *source, *target); err != nil {
		return err
	}
	if err := coord.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	fmt.Println()
	if err := coord.Stop(); err != nil {
		slog.Warn("stop", "error", err)
	}

	stats := coord.Status().Session
	fmt.Printf("session %s: %d segments, %d translated, %d spoken, %d skipped in %s\n",
		stats.SessionID, stats.SegmentCount, stats.TranslationCount,
		stats.SynthesisCount, stats.SkippedSegments, stats.Runtime.Round(100*time.Millisecond))

	if *transcriptOut != "" {
		if err := writeTranscript(*transcriptOut, coord.Transcript()); err != nil {
			slog.Error("write transcript", "path", *transcriptOut, "error", err)
		} else {
			fmt.Printf("transcript written to %s\n", *transcriptOut)
		}
	}
	return coord.Close()
}

func cmdDownload(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	source := fs.String("source", cfg.Translation.SourceLanguage, "source language code")
	target := fs.String("target", cfg.Translation.TargetLanguage, "target language code")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	setupLogging(*verbose)

	models, err := modelcache.New(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("open model cache: %w", err)
	}
	models.SetProgress(printProgress)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pair := types.LanguagePair{Source: *source, Target: *target}
	specs, err := modelcache.RequiredModels(pair, cfg.Audio.UseVAD, cfg.Audio.UsePunctuation)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := models.EnsureSpec(ctx, spec); err != nil {
			return fmt.Errorf("ensure %s: %w", spec.ID, err)
		}
	}
	fmt.Printf("models for %s ready\n", pair)
	return nil
}

func cmdModels(cfg *config.Config) error {
	setupLogging(false)
	models, err := modelcache.New(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("open model cache: %w", err)
	}

	info := models.ModelInfo()
	if len(info) == 0 {
		fmt.Println("no models cached")
		return nil
	}

	ids := make([]string, 0, len(info))
	for id := range info {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := info[id]
		fmt.Printf("%-28s %-12s %10s  %s\n",
			id, rec.State, humanSize(rec.SizeBytes), rec.LocalPath)
	}
	return nil
}

func cmdClearCache(cfg *config.Config) error {
	setupLogging(false)
	models, err := modelcache.New(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("open model cache: %w", err)
	}
	if err := models.ClearCache(); err != nil {
		return err
	}
	fmt.Println("model cache cleared")
	return nil
}

func cmdLanguages(cfg *config.Config) error {
	setupLogging(false)
	for _, lang := range cfg.SupportedLanguages() {
		fmt.Printf("%s (voice %s)\n", lang, config.VoiceForLanguage(lang))
	}
	return nil
}

func printProgress(modelID string, fraction float64) {
	fmt.Fprintf(os.Stderr, "\r%s: %3.0f%%", modelID, fraction*100)
	if fraction >= 1 {
		fmt.Fprintln(os.Stderr)
	}
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func writeTranscript(path string, entries []pipeline.TranscriptEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func translationCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "translations")
	}
	return filepath.Join(dir, "voxlate", "translations")
}
