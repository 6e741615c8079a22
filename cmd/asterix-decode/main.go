// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// asterix-decode decodes ASTERIX recordings against a directory of
// framing, data block and category definitions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/MultiTechSystems/asterix-payload-schema/config"
	"github.com/MultiTechSystems/asterix-payload-schema/emit"
	"github.com/MultiTechSystems/asterix-payload-schema/pipeline"
	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/schema/load"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	definitions string
	framing     string
	configPath  string
	workers     int
	chunkFrames int
	mode        string
	format      string
	output      string
	digest      bool
	stopOnError bool
	debug       bool
	logJSON     bool
}

func run(args []string) error {
	var f flags
	flagSet := pflag.NewFlagSet("asterix-decode", pflag.ContinueOnError)
	flagSet.StringVarP(&f.definitions, "definitions", "d", "", "definitions directory (framings/, categories/, data_block)")
	flagSet.StringVarP(&f.framing, "framing", "f", "", "framing name under <definitions>/framings")
	flagSet.StringVarP(&f.configPath, "config", "c", "", "YAML file with decode options")
	flagSet.IntVarP(&f.workers, "workers", "w", 0, "frames decoded in parallel (0: one per CPU)")
	flagSet.IntVar(&f.chunkFrames, "chunk-frames", 0, "frames scanned per chunk")
	flagSet.StringVar(&f.mode, "mode", "", "decode mode: strict or fast")
	flagSet.StringVar(&f.format, "format", "none", "output format: none, json or cbor")
	flagSet.StringVarP(&f.output, "output", "o", "-", "output file ('-' for stdout)")
	flagSet.BoolVar(&f.digest, "digest", false, "print the BLAKE3 digest of the decoded output")
	flagSet.BoolVar(&f.stopOnError, "stop-on-error", false, "abort on the first frame that fails to decode")
	flagSet.BoolVar(&f.debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&f.logJSON, "log-json", false, "log JSON records instead of console text")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	recordings := flagSet.Args()
	switch {
	case f.definitions == "":
		return errors.New("--definitions is required")
	case f.framing == "":
		return errors.New("--framing is required")
	case len(recordings) == 0:
		return errors.New("no recording given")
	}

	log := newLogger(os.Stderr, f.debug, f.logJSON)

	opts := config.Default()
	if f.configPath != "" {
		var err error
		if opts, err = config.Load(f.configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("workers") {
		opts.Workers = f.workers
	}
	if flagSet.Changed("chunk-frames") {
		opts.ChunkFrames = f.chunkFrames
	}
	if flagSet.Changed("mode") {
		opts.Mode = f.mode
	}
	if flagSet.Changed("stop-on-error") {
		opts.StopOnError = f.stopOnError
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	set, err := load.Dir(f.definitions, f.framing)
	if err != nil {
		return err
	}
	reg, err := schema.NewRegistry(set)
	if err != nil {
		return err
	}
	log.Info().
		Str("framing", set.Framing.Name).
		Int("categories", set.Categories.Len()).
		Str("mode", opts.Mode).
		Int("workers", opts.Workers).
		Msg("definitions loaded")

	out, closeOut, err := openOutput(f.output)
	if err != nil {
		return err
	}
	defer closeOut()

	sinks, flush, err := newSinks(out, f.format)
	if err != nil {
		return err
	}
	var digest *emit.Digest
	if f.digest {
		digest = emit.NewDigest()
		sinks = append(sinks, digest)
	}
	var sink pipeline.Sink
	if len(sinks) > 0 {
		sink = emit.Multi(sinks...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dec := pipeline.New(reg, opts, log)
	go reloadOnHangup(ctx, dec, f.definitions, f.framing, log)

	var total pipeline.Stats
	start := time.Now()
	for _, path := range recordings {
		stats, err := dec.DecodeFile(ctx, path, sink)
		accumulate(&total, stats)
		if err != nil {
			if ferr := flush(); ferr != nil {
				log.Error().Err(ferr).Msg("flushing output")
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Info().
			Str("path", path).
			Int("frames", stats.Frames).
			Int("records", stats.Records).
			Int("unknown_category", stats.UnknownCategory).
			Int("failed", stats.FramesFailed).
			Dur("elapsed", stats.Elapsed).
			Msg("recording decoded")
	}
	total.Elapsed = time.Since(start)
	if err := flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}

	printStats(os.Stderr, total)
	if digest != nil {
		fmt.Fprintf(os.Stderr, "digest: %s\n", digest.Hex())
	}
	return nil
}

func newLogger(w io.Writer, debug, asJSON bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output: %w", err)
	}
	return file, func() { file.Close() }, nil
}

// newSinks returns the sink for format and a function flushing it.
func newSinks(w io.Writer, format string) ([]pipeline.Sink, func() error, error) {
	switch format {
	case "", "none":
		return nil, func() error { return nil }, nil
	case "json":
		lines := emit.NewJSONLines(w)
		return []pipeline.Sink{lines}, lines.Flush, nil
	case "cbor":
		enc, err := emit.NewCBOR(w)
		if err != nil {
			return nil, nil, err
		}
		return []pipeline.Sink{enc}, enc.Flush, nil
	default:
		return nil, nil, fmt.Errorf("unknown output format %q (want none, json or cbor)", format)
	}
}

// reloadOnHangup reloads the definitions on SIGHUP. Recordings already
// being decoded finish with the set they started with.
func reloadOnHangup(ctx context.Context, dec *pipeline.Decoder, root, framing string, log zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			set, err := load.Dir(root, framing)
			if err != nil {
				log.Error().Err(err).Msg("reloading definitions")
				continue
			}
			if _, err := dec.Swap(set); err != nil {
				log.Error().Err(err).Msg("swapping definitions")
			}
		}
	}
}

func accumulate(total *pipeline.Stats, s pipeline.Stats) {
	total.Frames += s.Frames
	total.DataBlocks += s.DataBlocks
	total.Records += s.Records
	total.UnknownCategory += s.UnknownCategory
	total.FramesFailed += s.FramesFailed
	total.Chunks += s.Chunks
	total.Bytes += s.Bytes
}

func printStats(w io.Writer, s pipeline.Stats) {
	rate := 0.0
	if secs := s.Elapsed.Seconds(); secs > 0 {
		rate = float64(s.Bytes) / secs / (1 << 20)
	}
	fmt.Fprintf(w, "frames:           %d\n", s.Frames)
	fmt.Fprintf(w, "data blocks:      %d\n", s.DataBlocks)
	fmt.Fprintf(w, "records:          %d\n", s.Records)
	fmt.Fprintf(w, "unknown category: %d\n", s.UnknownCategory)
	fmt.Fprintf(w, "failed frames:    %d\n", s.FramesFailed)
	fmt.Fprintf(w, "elapsed:          %s (%.1f MiB/s)\n", s.Elapsed.Round(time.Millisecond), rate)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `asterix-decode decodes ASTERIX recordings using item definitions.

The definitions directory holds framings/<name>.{yaml,json}, a
data_block definition and one file per category under categories/.
Plain recordings are memory-mapped; .zst and .lz4 files are
decompressed first. Send SIGHUP to reload the definitions between
recordings.

Usage:
  asterix-decode --definitions DIR --framing NAME [flags] RECORDING...

Examples:
  # Count frames and records
  asterix-decode -d specs -f ioss capture.ff

  # Write JSON lines with 8 workers
  asterix-decode -d specs -f ioss -w 8 --format json -o out.jsonl capture.ff.zst

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
