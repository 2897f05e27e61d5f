package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

type Bar struct {
	*progressbar.ProgressBar
	description string
	failed      atomic.Int64
}

func NewBar(max int64, description string) *Bar {
	return NewBarTo(os.Stdout, max, description)
}

// NewBarTo renders the bar on w instead of stdout.
func NewBarTo(w io.Writer, max int64, description string) *Bar {
	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)

	return &Bar{ProgressBar: bar, description: description}
}

func (b *Bar) Increment() {
	b.Add(1)
}

func (b *Bar) IncrementBy(amount int64) {
	b.Add64(amount)
}

// Planned resets the bar's total once the number of work items is known.
func (b *Bar) Planned(total int) {
	b.ChangeMax(total)
}

// ItemStarted shows the collection currently being processed.
func (b *Bar) ItemStarted(name string) {
	b.Describe(fmt.Sprintf("%s: %s", b.description, name))
}

// ItemFinished advances the bar by one work item.
func (b *Bar) ItemFinished(name string, err error) {
	if err != nil {
		b.failed.Add(1)
	}
	b.Increment()
}

// Failed returns how many finished items reported an error.
func (b *Bar) Failed() int64 {
	return b.failed.Load()
}

func (b *Bar) Finish() {
	if b.ProgressBar == nil {
		return
	}
	b.ProgressBar.Finish()
}
