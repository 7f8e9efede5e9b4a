// Package progress provides progress indicators for long-running operations.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	gosync "sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/sync"
	"github.com/klauern/hubsync/internal/ui"
)

// Unknown is used as Max when the number of steps is not known up front;
// the bar then renders as a spinner.
const Unknown = -1

// Bar wraps progressbar functionality with integration to hubsync's UI and logging.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the maximum value for the progress bar (total steps). Unknown for a spinner.
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// Force shows the bar even when Writer is not a terminal.
	Force bool
}

// New creates a new progress bar with the given options.
// The bar is only shown if:
//   - Colors are enabled (respects NO_COLOR and --no-color)
//   - Output is a terminal
//   - Not in debug mode (to avoid interfering with logs)
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	b := &Bar{
		enabled: opts.Force || shouldShowProgress(opts.Writer),
		desc:    opts.Description,
	}

	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description), logging.Count(int(opts.Max)))
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)

	return b
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Add increments the progress bar by n steps.
func (b *Bar) Add(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Add(n)
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the progress bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

// Tracker advances a Bar for every item an engine operation settles.
type Tracker struct {
	bar *Bar

	mu       gosync.Mutex
	done     int
	failures int
}

var _ sync.Observer = (*Tracker)(nil)

// NewTracker creates a tracker over a new bar.
func NewTracker(opts Options) *Tracker {
	return &Tracker{bar: New(opts)}
}

// Bar returns the underlying bar.
func (t *Tracker) Bar() *Bar {
	return t.bar
}

// Done returns the number of settled items.
func (t *Tracker) Done() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Failures returns the number of failed items.
func (t *Tracker) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

// Finish completes the bar.
func (t *Tracker) Finish() error {
	return t.bar.Finish()
}

func (t *Tracker) step(failed bool) {
	t.mu.Lock()
	t.done++
	if failed {
		t.failures++
	}
	t.mu.Unlock()
	_ = t.bar.Add(1)
}

func (t *Tracker) Pushed(model.Kind, string, model.Artifact) { t.step(false) }
func (t *Tracker) PushError(model.Kind, string, error) { t.step(true) }
func (t *Tracker) Pulled(model.Kind, model.Artifact, string) { t.step(false) }
func (t *Tracker) PullError(model.Kind, string, error) { t.step(true) }
func (t *Tracker) PostProcess(model.Kind, model.Artifact, string) {}
func (t *Tracker) LocalOnly(model.Kind, string) {}
func (t *Tracker) Added(model.Kind, string) { t.step(false) }
func (t *Tracker) Removed(model.Kind, string) { t.step(false) }
func (t *Tracker) Diff(model.Kind, string, diff.Result) { t.step(false) }
func (t *Tracker) Deleted(model.Kind, string) { t.step(false) }

// shouldShowProgress determines if progress bars should be displayed.
// Progress is disabled if:
//   - Not outputting to a terminal
//   - Colors are disabled (NO_COLOR, --no-color)
//   - Logger is at debug level (to avoid interfering with debug output)
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}

	if logging.Default().Enabled(context.Background(), logging.LevelDebug) {
		return false
	}

	return true
}
