// Package cli is the rcrosshair command line front end: flag parsing, the
// clear subcommand, logging setup and the mapping from error classes to
// exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/rcrosshair/rcrosshair/internal/config"
	"github.com/rcrosshair/rcrosshair/internal/errmsg"
	"github.com/rcrosshair/rcrosshair/internal/imgsource"
	"github.com/rcrosshair/rcrosshair/internal/overlay"
	"github.com/rcrosshair/rcrosshair/internal/params"
	"github.com/rcrosshair/rcrosshair/internal/wlclient"
)

// Exit codes, one per error class, so callers can tell failures apart.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitDecode        = 3
	ExitProtocol      = 4
	ExitRuntime       = 5
	ExitCache         = 6
)

// fatalError pairs an error with its user-facing operation and exit code.
type fatalError struct {
	code    int
	op      errmsg.Op
	context string
	err     error
}

func (e *fatalError) Error() string { return errmsg.FormatWith(e.op, e.context, e.err) }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(code int, op errmsg.Op, context string, err error) error {
	return &fatalError{code: code, op: op, context: context, err: err}
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var fe *fatalError
		if errors.As(err, &fe) {
			return fe.code
		}
		return ExitFailure
	}
	return ExitOK
}

func newRootCommand() *cobra.Command {
	var (
		targetX int
		targetY int
		opacity float64
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "rcrosshair [flags] <image> [clear]",
		Short: "Show an image as a fixed click-through overlay on a Wayland compositor",
		Long: `rcrosshair renders a still image or animated GIF as a click-through
layer-shell overlay, placing a chosen pixel of the image (the target point)
at the center of the screen. The target point and opacity are remembered
per image, so later runs need no flags.

Append "clear" after the image path to forget its cached parameters.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := params.Explicit{}
			if cmd.Flags().Changed("target-x") {
				explicit.TargetX = &targetX
			}
			if cmd.Flags().Changed("target-y") {
				explicit.TargetY = &targetY
			}
			if cmd.Flags().Changed("opacity") {
				explicit.Opacity = &opacity
			}

			if len(args) == 2 {
				if args[1] != "clear" {
					return fmt.Errorf("unknown command %q, expected \"clear\"", args[1])
				}
				return runClear(cmd.OutOrStdout(), args[0])
			}
			return run(cmd.Context(), args[0], explicit, verbose)
		},
	}

	cmd.Flags().IntVarP(&targetX, "target-x", "x", 0, "image pixel to center horizontally")
	cmd.Flags().IntVarP(&targetY, "target-y", "y", 0, "image pixel to center vertically")
	cmd.Flags().Float64VarP(&opacity, "opacity", "o", 1.0, "overlay opacity, 0.0 to 1.0")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

// runClear drops the cached parameters for one image. Unlike a normal run,
// a cache failure here is the operation itself failing.
func runClear(out io.Writer, path string) error {
	// Nothing is decoded here; a bad path is a bad argument.
	key, err := params.Canonicalize(path)
	if err != nil {
		return fatal(ExitConfiguration, errmsg.OpCacheClear, path, err)
	}

	store, err := params.Open()
	if err != nil {
		return fatal(ExitCache, errmsg.OpCacheOpen, "", err)
	}
	defer store.Close()

	removed, err := store.Clear(key)
	if err != nil {
		return fatal(ExitCache, errmsg.OpCacheClear, path, err)
	}
	if removed {
		fmt.Fprintf(out, "Cleared cached parameters for %s\n", path)
	} else {
		fmt.Fprintf(out, "No cached parameters for %s\n", path)
	}
	return nil
}

func run(ctx context.Context, path string, explicit params.Explicit, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fatal(ExitConfiguration, errmsg.OpConfigLoad, "", err)
	}

	logger := newLogger(cfg.LogLevel, verbose)

	key, err := params.Canonicalize(path)
	if err != nil {
		return fatal(ExitDecode, errmsg.OpImageDecode, path, err)
	}

	src, err := imgsource.Open(key)
	if err != nil {
		return fatal(ExitDecode, errmsg.OpImageDecode, path, err)
	}
	width, height := src.Dimensions()

	// The cache is an optimization: failure to open or read it degrades to
	// a cache miss, never blocks rendering.
	var cached *params.Entry
	store, err := params.Open()
	if err != nil {
		logger.Warn("parameter cache unavailable, using defaults", "err", err)
		store = nil
	} else {
		defer store.Close()
		cached, err = store.Lookup(key)
		if err != nil {
			logger.Warn("parameter cache read failed, using defaults", "err", err)
			cached = nil
		}
	}

	// A config-file opacity sits between the cache and the built-in 1.0:
	// it only applies when neither a flag nor a cached value supplies one.
	if explicit.Opacity == nil && cfg.Opacity != nil && (cached == nil || cached.Opacity == nil) {
		explicit.Opacity = cfg.Opacity
	}

	resolved, err := params.Resolve(width, height, explicit, cached)
	if err != nil {
		return fatal(ExitConfiguration, errmsg.OpResolve, path, err)
	}
	logger.Debug("resolved placement",
		"x", resolved.TargetX, "y", resolved.TargetY, "opacity", resolved.Opacity)

	if store != nil {
		if err := store.Save(key, resolved.Entry()); err != nil {
			logger.Warn("parameter cache write failed", "err", err)
		}
	}

	layer, err := overlay.ParseLayer(cfg.Layer)
	if err != nil {
		return fatal(ExitConfiguration, errmsg.OpConfigLoad, "", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := overlay.Options{Layer: layer, Output: cfg.Output}
	if err := overlay.Run(runCtx, src, resolved, opts, logger); err != nil {
		return classifyOverlayError(err)
	}
	return nil
}

// classifyOverlayError maps overlay failures onto exit codes: shared-memory
// allocation is a runtime error, everything else that reaches here is the
// compositor conversation going wrong.
func classifyOverlayError(err error) error {
	var allocErr *overlay.AllocError
	if errors.As(err, &allocErr) {
		return fatal(ExitRuntime, errmsg.OpAllocBuffer, "", err)
	}
	if errors.Is(err, overlay.ErrLayerShellUnsupported) {
		return fatal(ExitProtocol, errmsg.OpCreateSurface, "", err)
	}
	var protoErr *wlclient.ProtocolError
	if errors.As(err, &protoErr) {
		return fatal(ExitProtocol, errmsg.OpCreateSurface, "", err)
	}
	return fatal(ExitProtocol, errmsg.OpConnect, "", err)
}

func newLogger(level string, verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
		Prefix:          "rcrosshair",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
		return logger
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}
