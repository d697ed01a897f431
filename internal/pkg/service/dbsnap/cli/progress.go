package cli

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
)

const progressThrottle = 100 * time.Millisecond

// progressBar renders progress events of an export or import.
// The bar is hidden, if the writer is not a terminal.
type progressBar struct {
	bar   *progressbar.ProgressBar
	total int64
}

func newProgressBar(w io.Writer, description string) *progressBar {
	return &progressBar{
		bar: progressbar.NewOptions64(
			-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetVisibility(isTerminal(w)),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(progressThrottle),
			progressbar.OptionClearOnFinish(),
		),
		total: -1,
	}
}

func (p *progressBar) OnProgress(event model.ProgressEvent) {
	if event.Progress.Total != p.total {
		p.total = event.Progress.Total
		p.bar.ChangeMax64(p.total)
	}
	_ = p.bar.Set64(event.Progress.Current)
}

func (p *progressBar) Finish() {
	_ = p.bar.Finish()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
