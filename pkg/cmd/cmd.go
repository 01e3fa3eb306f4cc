// Package cmd adapts option-struct handlers to the cli command
// interface: arguments parse into the struct via go-flags tags, then
// the handler runs under a signal-cancelled context with progress
// reporting wired to stderr.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sys/unix"

	"lab47.dev/solvent/pkg/progress"
)

type Cmd[O any] struct {
	syn, name string
	f         func(ctx context.Context, opts O) error

	opts   *O
	parser *flags.Parser
}

// New builds a subcommand from a handler taking an options struct
// annotated with go-flags tags.
func New[O any](name, syn string, f func(ctx context.Context, opts O) error) *Cmd[O] {
	opts := new(O)

	parser := flags.NewNamedParser(name, flags.Default)
	parser.ShortDescription = syn
	parser.LongDescription = syn

	_, err := parser.AddGroup("Application Options", "", opts)
	if err != nil {
		panic(err)
	}

	return &Cmd[O]{
		syn:    syn,
		name:   name,
		f:      f,
		opts:   opts,
		parser: parser,
	}
}

func (w *Cmd[O]) Help() string {
	var buf bytes.Buffer
	w.parser.WriteHelp(&buf)

	return buf.String()
}

func (w *Cmd[O]) Synopsis() string {
	return w.syn
}

func (w *Cmd[O]) Run(args []string) int {
	_, err := w.parser.ParseArgs(args)
	if err != nil {
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelOnSignal(cancel, os.Interrupt, unix.SIGQUIT, unix.SIGTERM)

	ctx = progress.Open(ctx, os.Stderr)

	if err := w.f(ctx, *w.opts); err != nil {
		fmt.Printf("! Error: %+v\n", err)
		return 1
	}

	return 0
}

func cancelOnSignal(cancel func(), signals ...os.Signal) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, signals...)

	go func() {
		for range c {
			cancel()
		}
	}()
}
