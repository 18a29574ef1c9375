// Package probe checks whether an image has any partial transparency.
//
// A probe runs inside a page context: it fetches the image through the page,
// decodes it, draws it 1:1 onto a fresh RGBA surface, scans the alpha bytes
// and reports the outcome with a single alert. Fetch and decode failures go
// to the page console and produce no alert unless ReportErrors is set.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/alphaprobe/host"
)

// Alert messages.
const (
	MsgTransparent = "This is a true PNG with a transparent background."
	MsgOpaque      = "This PNG does not have a transparent background."
	MsgFailed      = "Could not check image transparency: "

	consoleMsg = "Error checking image transparency:"
)

// Stage is the probe step that failed.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageDecode Stage = "decode"
)

// Error is a fetch or decode failure.
type Error struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe: %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome labels a finished probe for metrics.
type Outcome string

const (
	OutcomeTransparent  Outcome = "transparent"
	OutcomeOpaque       Outcome = "opaque"
	OutcomeFetchFailed  Outcome = "fetch_failed"
	OutcomeDecodeFailed Outcome = "decode_failed"
	OutcomeAlertFailed  Outcome = "alert_failed"
)

// OutcomeOf classifies a probe result.
func OutcomeOf(rep *Report, err error) Outcome {
	if err == nil && rep != nil {
		if rep.Transparent {
			return OutcomeTransparent
		}
		return OutcomeOpaque
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Stage == StageFetch {
			return OutcomeFetchFailed
		}
		return OutcomeDecodeFailed
	}
	return OutcomeAlertFailed
}

// Options tunes a probe.
type Options struct {
	// MaxPixels rejects rasters larger than this before a full decode.
	// Zero disables the check.
	MaxPixels int64
	// ReportErrors shows an alert on fetch/decode failure instead of
	// staying silent.
	ReportErrors bool
	// Observe, when set, is called once per run with the outcome and the
	// time from start to alert.
	Observe func(outcome Outcome, elapsed time.Duration)
	Logger  *slog.Logger
}

// Report is what a probe observed. Only Transparent reaches the user.
type Report struct {
	URL         string
	Format      string
	Width       int
	Height      int
	Transparent bool
	Elapsed     time.Duration
}

// Check fetches imageURL through page and reports whether it has any pixel
// with alpha below 255.
func Check(ctx context.Context, page host.Page, imageURL string, opts Options) (*Report, error) {
	start := time.Now()

	data, err := page.Fetch(ctx, imageURL)
	if err != nil {
		return nil, &Error{Stage: StageFetch, URL: imageURL, Err: err}
	}

	img, format, err := Decode(data, opts.MaxPixels)
	if err != nil {
		return nil, &Error{Stage: StageDecode, URL: imageURL, Err: err}
	}

	buf := Rasterize(img)
	return &Report{
		URL:         imageURL,
		Format:      format,
		Width:       buf.Width,
		Height:      buf.Height,
		Transparent: HasTransparency(buf),
		Elapsed:     time.Since(start),
	}, nil
}

// Message returns the alert text for a result.
func Message(transparent bool) string {
	if transparent {
		return MsgTransparent
	}
	return MsgOpaque
}

// Script returns the Func injected into a page. Its sole argument is the
// image URL. The returned error carries the failure for the caller's
// bookkeeping; the page has already been told through its console.
func Script(opts Options) host.Func {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, page host.Page, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("probe: want 1 argument, got %d", len(args))
		}
		imageURL := args[0]
		log := logger.With("page", page.URL(), "image", imageURL)
		start := time.Now()

		rep, err := Check(ctx, page, imageURL, opts)
		if err != nil {
			observe(opts, OutcomeOf(nil, err), start)
			log.Debug("probe: failed", "error", err)
			page.ConsoleError(ctx, consoleMsg, err)
			if opts.ReportErrors {
				if aerr := page.Alert(ctx, MsgFailed+err.Error()); aerr != nil {
					log.Warn("probe: error alert failed", "error", aerr)
				}
			}
			return err
		}

		log.Debug("probe: checked",
			"format", rep.Format,
			"width", rep.Width, "height", rep.Height,
			"transparent", rep.Transparent, "elapsed", rep.Elapsed)

		if err := page.Alert(ctx, Message(rep.Transparent)); err != nil {
			observe(opts, OutcomeAlertFailed, start)
			return fmt.Errorf("probe: alert: %w", err)
		}
		observe(opts, OutcomeOf(rep, nil), start)
		return nil
	}
}

func observe(opts Options, o Outcome, start time.Time) {
	if opts.Observe != nil {
		opts.Observe(o, time.Since(start))
	}
}
