package commands

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruaican/Quick-Folder-Deleter/internal/database"
	"github.com/maruaican/Quick-Folder-Deleter/internal/deletion"
	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
	"github.com/maruaican/Quick-Folder-Deleter/internal/exitcodes"
	"github.com/maruaican/Quick-Folder-Deleter/internal/limiter"
	"github.com/maruaican/Quick-Folder-Deleter/internal/safety"
)

var (
	errIncomplete = errors.New("target still exists after deletion")
	errScanFailed = errors.New("target could not be scanned")
)

type deleteOptions struct {
	pause     time.Duration
	noHistory bool
	verbose   bool
}

func (c *CLI) newDeleteCmd() *cobra.Command {
	opts := deleteOptions{}
	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete one directory tree and print its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDelete(cmd, args[0], opts)
		},
	}
	cmd.Flags().DurationVar(&opts.pause, "pause", -1, "Pause after each item (default from config)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record the operation in the history database")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Also print engine diagnostics to stderr")
	return cmd
}

func (c *CLI) runDelete(cmd *cobra.Command, raw string, opts deleteOptions) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	printer := log.New(c.out, "", log.LstdFlags|log.Lmicroseconds)

	target, err := safety.FromConfig(cfg).ValidateTarget(raw)
	if err != nil {
		printer.Printf("[ERROR] %v", err)
		if safety.IsValidationError(err) {
			return withCode(exitcodes.SafetyViolation, err)
		}
		return withCode(exitcodes.RuntimeError, err)
	}

	pause := cfg.Pause()
	if opts.pause >= 0 {
		pause = opts.pause
	}

	engineLog := log.New(io.Discard, "", 0)
	if opts.verbose {
		engineLog = log.New(c.errOut, "", log.LstdFlags|log.Lmicroseconds)
	}

	var (
		observers []events.Observer
		recorder  *database.Recorder
	)
	if !opts.noHistory {
		db, err := database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(c.errOut, "[WARN] history disabled: %v\n", err)
		} else {
			defer db.Close()
			recorder = database.NewRecorder(db, engineLog)
			observers = append(observers, recorder)
		}
	}

	var res deletion.Result
	op := deletion.New(target, deletion.Options{
		Pacer:     limiter.NewPacer(pause),
		Logger:    engineLog,
		Observers: observers,
		OnFinish: func(r deletion.Result) {
			res = r
			if recorder != nil {
				recorder.Finish(r)
			}
		},
	})

	for e := range op.Start(cmd.Context()) {
		printer.Printf("%3d%% %s", e.Progress, e.Message)
	}

	switch res.Outcome {
	case deletion.OutcomeSuccess:
		return nil
	case deletion.OutcomeIncomplete:
		return withCode(exitcodes.Incomplete, fmt.Errorf("%w: %s", errIncomplete, target))
	case deletion.OutcomeScanFailed:
		return withCode(exitcodes.RuntimeError, fmt.Errorf("%w: %s", errScanFailed, target))
	default:
		return withCode(exitcodes.RuntimeError, fmt.Errorf("operation %s ended without a result", op.ID()))
	}
}
