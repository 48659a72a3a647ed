package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/export"
	"github.com/fdg312/informes-hub/internal/intake"
	"github.com/fdg312/informes-hub/internal/render"
	"github.com/fdg312/informes-hub/internal/reportapi"
	"github.com/fdg312/informes-hub/internal/submission"
)

// app wires one view's worth of components, the same set a dashboard
// session owns.
type app struct {
	client  *reportapi.Client
	monitor *connectivity.Monitor
	intake  *intake.Intake
	slot    *intake.Slot
	ctrl    *submission.Controller
}

func newApp(opts options, logger *zap.Logger) *app {
	client := reportapi.New(opts.APIBaseURL,
		reportapi.WithTimeout(opts.Timeout),
		reportapi.WithHealthPath(opts.HealthPath),
		reportapi.WithLogger(logger),
	)
	monitor := connectivity.New(client, connectivity.WithLogger(logger))
	slot := &intake.Slot{}
	return &app{
		client:  client,
		monitor: monitor,
		intake:  intake.New(intake.DefaultMaxBytes),
		slot:    slot,
		ctrl:    submission.New(client, monitor, slot, submission.WithLogger(logger)),
	}
}

func (a *app) close() {
	a.ctrl.Close()
	a.monitor.Stop()
}

// submitFunc starts one submission on the controller.
type submitFunc func(ctx context.Context) error

func runGenerate(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	a := newApp(opts, logger)
	defer a.close()

	f, err := intake.FromPath(args[0])
	if err != nil {
		return err
	}
	cand := a.intake.Accept(f)
	if !cand.Valid() {
		return rejectionError(cand)
	}
	staged, err := a.intake.Stage(cand)
	if err != nil {
		if !staged.Valid() {
			return rejectionError(staged)
		}
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	a.slot.Put(staged)

	meta := submission.Metadata{Supervisor: opts.Supervisor, Project: opts.Project}
	return execute(cmd, a, opts, func(ctx context.Context) error {
		return a.ctrl.SubmitFile(ctx, meta)
	})
}

func runDemo(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	a := newApp(opts, logger)
	defer a.close()

	return execute(cmd, a, opts, a.ctrl.SubmitDemo)
}

func runFromURL(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	a := newApp(opts, logger)
	defer a.close()

	excelURL := args[0]
	return execute(cmd, a, opts, func(ctx context.Context) error {
		return a.ctrl.SubmitURL(ctx, excelURL)
	})
}

func rejectionError(c intake.Candidate) error {
	if c.Err != nil && c.Err.Hint != "" {
		return fmt.Errorf("%s: %s. %s", c.Name, c.Err.Message, c.Err.Hint)
	}
	return fmt.Errorf("%s: %s", c.Name, c.Reason())
}

// execute runs submit in the interactive view or in plain mode, then
// writes the export when one was asked for.
func execute(cmd *cobra.Command, a *app, opts options, submit submitFunc) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		snap submission.Snapshot
		err  error
	)
	if plain {
		snap, err = runPlain(ctx, a, submit, cmd.OutOrStdout(), cmd.ErrOrStderr())
	} else {
		snap, err = runTUI(ctx, a, submit)
	}
	if err != nil {
		return err
	}
	switch snap.Phase {
	case submission.PhaseSucceeded:
	case submission.PhaseFailed:
		return errors.New(snap.ErrorMessage())
	default:
		return errors.New("cancelado antes de recibir el informe")
	}

	if exportPath == "" {
		return nil
	}
	written, err := writeExport(exportPath, opts.Title, snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Informe guardado en %s\n", written)
	return nil
}

// runPlain prints state changes as lines and the report as markdown.
func runPlain(ctx context.Context, a *app, submit submitFunc, out, errOut io.Writer) (submission.Snapshot, error) {
	st := a.monitor.CheckNow(ctx)
	fmt.Fprintln(errOut, st.Label())

	done := make(chan submission.Snapshot, 1)
	unsubscribe := a.ctrl.Subscribe(func(s submission.Snapshot) {
		if s.Phase.Terminal() {
			select {
			case done <- s:
			default:
			}
			return
		}
		if s.Phase == submission.PhaseSubmitting {
			fmt.Fprintf(errOut, "progreso estimado: %d%%\n", s.Progress)
		}
	})
	defer unsubscribe()

	if err := submit(ctx); err != nil {
		return submission.Snapshot{}, err
	}

	select {
	case snap := <-done:
		if snap.Phase == submission.PhaseSucceeded {
			fmt.Fprint(out, render.Markdown(render.Present(snap.Report)))
		} else {
			fmt.Fprintln(errOut, snap.ErrorMessage())
		}
		return snap, nil
	case <-ctx.Done():
		return submission.Snapshot{}, ctx.Err()
	}
}

// writeExport writes the successful report to path. The format follows
// the extension; a directory gets the title-derived JSON file name.
func writeExport(path, title string, snap submission.Snapshot) (string, error) {
	format := export.FormatJSON
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, export.FileName(title, format))
	} else {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			format = export.FormatPDF
		case ".csv":
			format = export.FormatCSV
		}
	}

	if title == "" {
		title = export.DefaultTitle
	}
	data, err := export.Generate(snap.Report, title, format)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
