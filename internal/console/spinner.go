package console

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

const spinInterval = 100 * time.Millisecond

// spin shows an indeterminate indicator on out until the returned func is
// called.
func spin(out io.Writer, description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(spinInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}
