package upload

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/zombor/ledger-sense/internal/imaging"
	"github.com/zombor/ledger-sense/internal/ocr"
)

// Uploader sends one image to the OCR service
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, data []byte, progress ocr.ProgressFunc) (*ocr.Columns, error)
}

// ResultFunc receives each successful OCR response
type ResultFunc func(f *File, cols *ocr.Columns)

// NormalizeFunc prepares file bytes for upload
type NormalizeFunc func(filename string, data []byte, mimeType string) (imaging.Result, error)

// Dispatcher uploads every idle file in a queue concurrently
type Dispatcher struct {
	queue     *Queue
	uploader  Uploader
	onResult  ResultFunc
	normalize NormalizeFunc
}

// NewDispatcher creates a Dispatcher for queue. onResult runs while the
// queue is locked, together with marking the file successful; it must not
// call back into the queue.
func NewDispatcher(queue *Queue, uploader Uploader, onResult ResultFunc) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		uploader:  uploader,
		onResult:  onResult,
		normalize: imaging.Normalize,
	}
}

// WithNormalizer replaces the image normalization step; nil disables it
func (d *Dispatcher) WithNormalizer(fn NormalizeFunc) *Dispatcher {
	d.normalize = fn
	return d
}

// DispatchAll uploads every idle file and returns once each of them has
// reached success or error. A failure never stops sibling uploads; terminal
// errors are recorded on the queue entries rather than returned.
func (d *Dispatcher) DispatchAll(ctx context.Context) {
	claimed := d.queue.claimIdle()
	if len(claimed) == 0 {
		return
	}

	slog.Info("Dispatching uploads", "count", len(claimed))

	var wg sync.WaitGroup
	for _, tf := range claimed {
		wg.Add(1)
		go func(f *File) {
			defer wg.Done()
			d.dispatch(ctx, f)
		}(tf.File)
	}
	wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, f *File) {
	name, mimeType, data := f.Name, f.MIMEType, f.Data
	if d.normalize != nil {
		res, err := d.normalize(name, data, mimeType)
		if err != nil {
			slog.Error("Failed to prepare image", "filename", f.Name, "error", err)
			d.queue.Update(f, errorPatch(err.Error()))
			return
		}
		name, mimeType, data = res.Filename, res.MIMEType, res.Data
	}

	cols, err := d.uploader.Upload(ctx, name, mimeType, data, func(sent, total int64) {
		d.queue.Update(f, progressPatch(percent(sent, total)))
	})
	if err != nil {
		msg := ocr.Message(err)
		slog.Error("Upload failed", "filename", f.Name, "error", err, "message", msg)
		d.queue.Update(f, errorPatch(msg))
		return
	}

	var apply func()
	if d.onResult != nil {
		apply = func() { d.onResult(f, cols) }
	}
	if !d.queue.UpdateThen(f, successPatch(), apply) {
		// dismissed while in flight
		slog.Info("Dropping OCR result for dismissed file", "filename", f.Name)
		return
	}
	slog.Info("Upload complete", "filename", f.Name, "columns", len(cols.Order), "rows", cols.RowCount())
}

func percent(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(sent) * 100 / float64(total)))
}
