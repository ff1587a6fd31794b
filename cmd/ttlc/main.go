// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// ttlc compiles a Turtle/OWL/SHACL document into a binary execution plan.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ttlplan/ttlc"
	"github.com/ttlplan/ttlc/internal/config"
	"github.com/ttlplan/ttlc/internal/dbg"
	"github.com/ttlplan/ttlc/internal/flag2"
	"github.com/ttlplan/ttlc/internal/telemetry"
	"github.com/ttlplan/ttlc/internal/ttl"
	"github.com/ttlplan/ttlc/internal/xsync"
)

const version = "0.1.0"

var (
	strict     = flag.Bool("strict", false, "abort the pipeline at the first parse or validation error")
	noValidate = flag.Bool("no-validate", false, "skip SHACL validation, even if the document declares shapes")
	verbose    = flag.Bool("verbose", false, "log each input file as it starts compiling")
	stats      = flag.Bool("stats", false, "print a per-phase timing report after compiling")
	debugFlag  = flag.Bool("debug", false, "enable debug-level logging")
	showVer    = flag.Bool("version", false, "print the version and exit")
	configPath = flag.String("config", "", "path to a YAML config file (see internal/config)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] input.ttl [output.plan.bin]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "with more than one input, each is compiled to its own default output path\n")
	fmt.Fprintf(os.Stderr, "concurrently and no explicit output path may be given.\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVer {
		fmt.Println("ttlc", version)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync() //nolint:errcheck

	rec := telemetry.NewRecorder()

	var inputs, outputs []string
	switch {
	case len(args) == 1:
		inputs = args
		outputs = []string{defaultOutputPath(args[0])}
	case len(args) == 2 && !looksLikeInput(args[1]):
		inputs = args[:1]
		outputs = args[1:]
	default:
		inputs = args
		outputs = make([]string, len(args))
		for i, in := range args {
			outputs[i] = defaultOutputPath(in)
		}
	}

	if len(inputs) == 1 {
		if err := compileFile(inputs[0], outputs[0], cfg, rec, logger); err != nil {
			return err
		}
	} else {
		var claimed xsync.Map[string, struct{}]
		g, ctx := errgroup.WithContext(context.Background())
		for i := range inputs {
			i := i
			g.Go(func() error {
				if _, loaded := claimed.LoadOrStore(outputs[i], func() struct{} { return struct{}{} }); loaded {
					return fmt.Errorf("%s: output path %s is already claimed by another input", inputs[i], outputs[i])
				}

				workerRec := telemetry.NewRecorder()
				if err := compileFile(inputs[i], outputs[i], cfg, workerRec, logger); err != nil {
					return err
				}
				rec.Merge(workerRec)
				return ctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	// Read back through internal/flag2's typed lookup rather than closing
	// over *stats directly, so the merged worker-pool recorder above and
	// the flag value are resolved the same way a longer-lived driver that
	// doesn't hold onto its own *bool would have to.
	if flag2.Lookup[bool]("stats") {
		rec.Report(logger, 0)
	}

	return nil
}

func compileFile(inPath, outPath string, cfg *config.Config, rec *telemetry.Recorder, logger *zap.Logger) error {
	if *verbose {
		logger.Info("compiling", zap.String("input", inPath), zap.String("output", outPath))
	}

	src, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("%s: %v", inPath, err)
	}

	opts := []ttlc.CompileOption{
		ttlc.WithArenaSize(cfg.ArenaSize),
		ttlc.WithTelemetry(rec),
	}
	if *strict {
		opts = append(opts, ttlc.WithStrict())
	}
	if *noValidate {
		opts = append(opts, ttlc.WithoutValidation())
	}

	result, err := ttlc.Compile(src, opts...)
	if err != nil {
		return formatError(inPath, err)
	}

	// dbg.Dict's formatting is deferred until zap actually encodes the
	// field, so building it costs nothing unless -debug is set.
	logger.Debug("compiled", zap.String("input", inPath), zap.Stringer("result", dbg.Dict(nil,
		"triples", result.Graph.Len(),
		"conforms", result.Report == nil || result.Report.Conforms(),
	)))

	for _, ce := range result.ConsistencyErrors {
		fmt.Fprintf(os.Stderr, "%s: %s\n", inPath, ce)
	}
	if result.Report != nil && !result.Report.Conforms() {
		for _, r := range result.Report.Records {
			fmt.Fprintf(os.Stderr, "%s: %s: focus=%d shape=%d: %s\n",
				inPath, r.Severity, r.Focus, r.ShapeIRI, r.Message)
		}
	}
	if result.Plan == nil {
		// Compile returns a non-nil error whenever it leaves Plan nil, and
		// that case is handled above; this only keeps a nil Plan from
		// being written.
		return nil
	}

	return writeAtomic(outPath, result.Plan)
}

// formatError renders err as the driver's `path:line:col: KIND: message`
// line when err carries a source position (currently only parser errors
// do), falling back to `path: message` for errors from components that
// report a kind but no position (OWL consistency, SHACL compilation,
// materialization).
func formatError(path string, err error) error {
	if te, ok := err.(*ttl.Error); ok {
		return fmt.Errorf("%s:%s: %s: %s", path, te.Pos, te.Kind, te.Msg)
	}
	return fmt.Errorf("%s: %s", path, err)
}

// writeAtomic writes data to a sibling temp file suffixed with a random
// uuid and renames it into place, so a reader never observes a partially
// written output file.
func writeAtomic(outPath string, data []byte) error {
	dir := filepath.Dir(outPath)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(outPath), uuid.NewString()))

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}

// defaultOutputPath replaces in's extension with .plan.bin.
func defaultOutputPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + ".plan.bin"
}

// looksLikeInput reports whether path plausibly names another TTL input
// rather than an explicit output path, used to disambiguate the two-arg
// case (`ttlc a.ttl b.ttl` vs `ttlc a.ttl out.plan.bin`).
func looksLikeInput(path string) bool {
	switch filepath.Ext(path) {
	case ".ttl", ".turtle", ".n3":
		return true
	default:
		return false
	}
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if *debugFlag {
		cfg.Level.SetLevel(zap.DebugLevel)
	} else {
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
