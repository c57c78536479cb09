package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/klauspost/cpuid/v2"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/remarkable-mods/rm-xochitl-kbdpatch/internal/kbdpatch"
)

// defaultConcurrency sizes candidate decoding off the actual core count
// rather than assuming GOMAXPROCS reflects the hardware, matching how
// logical-core-aware sizing is done elsewhere in the ecosystem.
func defaultConcurrency() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return 1
}

func buildLogger(verbose bool, runID string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("run_id", runID)), nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	runID := uuid.NewString()
	logger, err := buildLogger(cmd.Bool("verbose"), runID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize logger: %v", err), 1)
	}
	defer func() { _ = logger.Sync() }()

	locale := cmd.String("locale")
	if _, ok := kbdpatch.Signature(locale); !ok {
		return cli.Exit(fmt.Sprintf("unsupported locale %q (supported: %v)", locale, kbdpatch.SupportedLocales()), 1)
	}

	overridePath := cmd.String("json")
	overrideBytes, err := os.ReadFile(overridePath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading override JSON %q: %v", overridePath, err), 1)
	}

	target := cmd.String("target")
	if cmd.Bool("verbose") {
		if kind, err := filetype.Match(overrideBytes); err == nil && kind != filetype.Unknown {
			logger.Debug("override file sniffed as a known binary kind; expected JSON text",
				zap.String("kind", kind.Extension))
		}
	}

	backupPath := cmd.String("backup")
	if backupPath == "" {
		backupPath = target + ".orig"
	}

	opts := kbdpatch.NewOptions(
		kbdpatch.WithLogger(logger),
		kbdpatch.WithSafetyCap(int(cmd.Int("safety-cap"))),
		kbdpatch.WithConcurrency(int(cmd.Int("concurrency"))),
		kbdpatch.WithBackupPath(backupPath),
	)

	if cmd.Bool("check") {
		status, err := kbdpatch.CheckPatch(ctx, target, overrideBytes, locale, opts)
		if err != nil {
			return exitForError(err)
		}
		switch status {
		case kbdpatch.StatusAlreadyPatched:
			logger.Info("already patched", zap.String("target", target))
			return nil
		case kbdpatch.StatusNeedsPatch:
			logger.Info("patch needed", zap.String("target", target))
			return cli.Exit("", 2)
		}
		return nil
	}

	result, err := kbdpatch.ApplyPatch(ctx, target, overrideBytes, locale, opts)
	if err != nil {
		return exitForError(err)
	}
	logger.Info("patch applied",
		zap.String("target", target),
		zap.Int64("offset", result.Offset),
		zap.Int64("capacity", result.CompressedLen),
		zap.Int("level", result.Level),
		zap.Uint64("xxh64", result.Hash.XXH64),
		zap.String("sha512_256", result.Hash.SHA512256),
	)
	return nil
}

// exitForError maps a taxonomy error onto the CLI's exit-code contract:
// everything is 1 except the distinguished check-mode signals, which never
// reach here as errors in the first place.
func exitForError(err error) error {
	return cli.Exit(err.Error(), 1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "rm-xochitl-kbdpatch",
		Usage: "patch the on-screen-keyboard layout embedded in a tablet UI binary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "locale", Required: true, Usage: "target locale tag, e.g. de_DE"},
			&cli.StringFlag{Name: "json", Required: true, Usage: "path to the override layout JSON"},
			&cli.StringFlag{Name: "target", Value: "/usr/bin/xochitl", Usage: "path to the binary to patch"},
			&cli.BoolFlag{Name: "check", Usage: "report whether the target already matches the desired state"},
			&cli.BoolFlag{Name: "verbose", Usage: "emit diagnostic log lines"},
			&cli.IntFlag{Name: "safety-cap", Value: kbdpatch.DefaultSafetyCap, Usage: "maximum decompressed candidate size, in bytes"},
			&cli.IntFlag{Name: "concurrency", Value: int64(defaultConcurrency()), Usage: "number of candidate frames to decode concurrently"},
			&cli.StringFlag{Name: "backup", Usage: "path to copy the target to before the first successful patch"},
		},
		Action: run,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			if msg := ec.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
