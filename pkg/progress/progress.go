// Package progress renders terminal progress bars for long checks. The
// writer travels on the context: a CLI entry point calls Open, and code
// deep in the checker calls Count without knowing whether anyone is
// watching. A context without a writer yields a no-op bar.
package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	pb "github.com/schollz/progressbar/v3"
)

type pbKey struct{}

type pbVal struct {
	w io.Writer
}

// Open hangs a progress writer on the context. A nil writer leaves the
// context untouched.
func Open(ctx context.Context, w io.Writer) context.Context {
	if w == nil {
		return ctx
	}

	return context.WithValue(ctx, pbKey{}, pbVal{w})
}

// Progress is one bar. The zero value is a no-op, which is what Count
// returns when the context carries no writer.
type Progress struct {
	bar    *pb.ProgressBar
	prefix string
}

// Count starts a bar over a known number of steps.
func Count(ctx context.Context, total int64, desc string) *Progress {
	h := ctx.Value(pbKey{})
	if h == nil {
		return &Progress{}
	}

	val := h.(pbVal)

	bar := pb.NewOptions64(
		total,
		pb.OptionSetDescription(desc),
		pb.OptionSetWriter(val.w),
		pb.OptionSetWidth(20),
		pb.OptionThrottle(65*time.Millisecond),
		pb.OptionShowCount(),
		pb.OptionSetTheme(
			pb.Theme{Saucer: "=", SaucerPadding: " ", BarStart: "[", BarEnd: "]"},
		),
		pb.OptionOnCompletion(func() {
			fmt.Fprint(val.w, "\n")
		}),
		pb.OptionSpinnerType(14),
		pb.OptionFullWidth(),
	)
	bar.RenderBlank()

	return &Progress{prefix: desc, bar: bar}
}

// On labels the in-flight step, e.g. the config file being solved.
func (t *Progress) On(step string) {
	if t.bar == nil {
		return
	}

	t.bar.Describe(t.prefix + ": " + step)
}

// Add advances the bar.
func (t *Progress) Add(cnt int64) {
	if t.bar == nil {
		return
	}

	t.bar.Add64(cnt)
}

// Tick advances by one step.
func (t *Progress) Tick() {
	t.Add(1)
}

// Close finishes the bar's line.
func (t *Progress) Close() {
	if t.bar == nil {
		return
	}

	t.bar.Close()
}
