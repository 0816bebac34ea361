package export

import (
	"context"
	"os"
	"path/filepath"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/timer"
)

// BaseName is the file name, without extension, of every export.
const BaseName = "history"

// Exporter writes history snapshots into Dir and shares them through Sink.
type Exporter struct {
	Dir    string
	Format Format
	Sink   Sink
}

// Result describes a written export.
type Result struct {
	Path   string
	Shared bool
}

// Export renders entries, writes them atomically and shares the file.
//
// An empty log writes nothing and returns NOTHING_TO_EXPORT. When the sink is
// unavailable the file is still written and SHARING_UNAVAILABLE is returned
// together with the Result.
func (e *Exporter) Export(ctx context.Context, entries []timer.HistoryEntry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, tberrors.NewNothingToExport()
	}
	r := RendererFor(e.Format)
	data, err := r.Render(entries)
	if err != nil {
		return Result{}, tberrors.NewExport("render history", err)
	}

	path := filepath.Join(e.Dir, BaseName+r.Ext())
	if err := writeAtomic(path, data); err != nil {
		return Result{}, tberrors.NewExport("write "+path, err)
	}
	res := Result{Path: path}

	sink := e.Sink
	if sink == nil || !sink.Available() {
		return res, tberrors.NewSharingUnavailable(path)
	}
	if err := sink.Share(ctx, path); err != nil {
		return res, tberrors.NewExport("share "+path, err)
	}
	res.Shared = true
	return res, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
