// Package lockfile implements a coarse cross-process mutex over an
// exclusively created file. Writers of shared cache directories take
// the lock; readers of finished artifacts do not need it.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Take acquires the lock file, polling once a second until creation
// succeeds or the context ends. waiting, when non-nil, runs before
// each retry. The returned release func removes the lock.
func Take(ctx context.Context, path string, waiting func()) (func(), error) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()

			return func() { os.Remove(path) }, nil
		}

		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "creating lock file %s", path)
		}

		if waiting != nil {
			waiting()
		}

		select {
		case <-tk.C:
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}
}
