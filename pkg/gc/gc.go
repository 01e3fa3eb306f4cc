// Package gc prunes the solvent data directory. Channel snapshots are
// immutable once complete, so any generation other than the current
// one, and any build that never finished, can be removed.
package gc

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/lockfile"
	"lab47.dev/solvent/pkg/progress"
	"lab47.dev/solvent/pkg/virtual"
)

type Collector struct {
	dataDir string
}

func NewCollector(dataDir string) (*Collector, error) {
	if dataDir == "" {
		return nil, errors.New("no data directory configured")
	}

	return &Collector{dataDir: filepath.Clean(dataDir)}, nil
}

func (c *Collector) snapshotsDir() string {
	return filepath.Dir(virtual.Dir(c.dataDir))
}

// Mark returns the snapshot names still in use: the current channel
// generation, provided its build finished.
func (c *Collector) Mark() ([]string, error) {
	dir := virtual.Dir(c.dataDir)

	if !virtual.Ready(dir) {
		return nil, nil
	}

	return []string{filepath.Base(dir)}, nil
}

// SweepUnmarked lists the snapshot directories not named in marked.
func (c *Collector) SweepUnmarked(marked []string) ([]string, error) {
	inUse := map[string]struct{}{}

	for _, m := range marked {
		inUse[m] = struct{}{}
	}

	f, err := os.Open(c.snapshotsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.WithStack(err)
	}

	defer f.Close()

	var notInUse []string

	for {
		names, err := f.Readdirnames(100)
		if err != nil {
			if err == io.EOF {
				break
			}

			return nil, errors.WithStack(err)
		}

		for _, name := range names {
			fi, err := os.Stat(filepath.Join(c.snapshotsDir(), name))
			if err != nil {
				return nil, errors.WithStack(err)
			}

			if !fi.IsDir() {
				continue
			}

			if _, ok := inUse[name]; !ok {
				notInUse = append(notInUse, name)
			}
		}
	}

	sort.Strings(notInUse)

	return notInUse, nil
}

// DiskUsage sums the sizes of the named snapshot directories.
func (c *Collector) DiskUsage(dirs []string) (int64, error) {
	var total int64

	for _, d := range dirs {
		err := filepath.WalkDir(filepath.Join(c.snapshotsDir(), d),
			func(path string, de fs.DirEntry, err error) error {
				if err != nil {
					return err
				}

				fi, err := de.Info()
				if err == nil {
					total += fi.Size()
				}

				return nil
			})
		if err != nil {
			return total, errors.WithStack(err)
		}
	}

	return total, nil
}

type SweepResult struct {
	Removed        []string
	BytesRecovered int64
	EntriesRemoved int64
}

// SweepAndRemove deletes every snapshot not named in marked, behind
// the same lock the channel builder takes so a build in flight is
// never pulled out from under another process.
func (c *Collector) SweepAndRemove(ctx context.Context, marked []string) (*SweepResult, error) {
	root := c.snapshotsDir()

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return &SweepResult{}, nil
	}

	release, err := lockfile.Take(ctx, filepath.Join(root, ".lock"), nil)
	if err != nil {
		return nil, err
	}
	defer release()

	notInUse, err := c.SweepUnmarked(marked)
	if err != nil {
		return nil, err
	}

	var sr SweepResult
	sr.Removed = notInUse

	pb := progress.Count(ctx, int64(len(notInUse)), "removing snapshots")
	defer pb.Close()

	for _, name := range notInUse {
		err = c.removeEntry(name, &sr)
		if err != nil {
			return nil, err
		}

		pb.Tick()
	}

	return &sr, nil
}

func (c *Collector) removeEntry(name string, sr *SweepResult) error {
	root := filepath.Join(c.snapshotsDir(), name)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.Mode().Perm()&0200 == 0 {
			err = os.Chmod(path, info.Mode().Perm()|0200)
			if err != nil {
				return err
			}
		}

		sr.EntriesRemoved++
		sr.BytesRecovered += info.Size()

		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.RemoveAll(root))
}
