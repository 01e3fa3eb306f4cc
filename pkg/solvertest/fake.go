// Package solvertest provides the shared fakes the checker's tests
// build on: disk-backed fake channels and an in-process solver that
// resolves against them without shelling out to a helper.
package solvertest

import (
	"fmt"
	"time"

	"lab47.dev/solvent/pkg/repodata"
)

// DefaultSubdirs are the platform subdirs a fake channel carries when
// a package does not name its own.
var DefaultSubdirs = []string{
	"linux-64",
	"linux-aarch64",
	"osx-64",
	"osx-arm64",
	"win-64",
}

// FakePackage describes one package to place in a fake channel.
// Zero-value fields get plausible defaults when written.
type FakePackage struct {
	Name        string
	Version     string
	Build       string
	BuildNumber int
	Noarch      string
	Depends     []string
	Constrains  []string
	RunExports  *repodata.RunExports
}

func (p FakePackage) record(subdir string) repodata.Record {
	rec := repodata.Record{
		Name:        p.Name,
		Version:     p.Version,
		Build:       p.Build,
		BuildNumber: p.BuildNumber,
		Subdir:      subdir,
		Noarch:      p.Noarch,
		Depends:     p.Depends,
		Constrains:  p.Constrains,
		RunExports:  p.RunExports,
		Timestamp:   time.Now().UnixMilli(),
	}

	if rec.Version == "" {
		rec.Version = "1.0"
	}

	if rec.Build == "" {
		rec.Build = fmt.Sprintf("h%d", p.BuildNumber)
	}

	return rec
}

// FakeRepoData accumulates packages and writes them out as a channel
// directory tree that Fetch and the solver helpers can read.
type FakeRepoData struct {
	Dir string

	indexes map[string]*repodata.Repodata
}

func NewFakeRepoData(dir string) *FakeRepoData {
	return &FakeRepoData{
		Dir:     dir,
		indexes: map[string]*repodata.Repodata{},
	}
}

// Add places the package in the named subdirs. Without explicit
// subdirs a noarch package lands in noarch and everything else in
// every platform subdir.
func (f *FakeRepoData) Add(pkg FakePackage, subdirs ...string) {
	if len(subdirs) == 0 {
		if pkg.Noarch != "" {
			subdirs = []string{"noarch"}
		} else {
			subdirs = DefaultSubdirs
		}
	}

	for _, sub := range subdirs {
		idx, ok := f.indexes[sub]
		if !ok {
			idx = repodata.New(sub)
			f.indexes[sub] = idx
		}

		idx.Add(pkg.record(sub))
	}
}

// ChannelURL is the channel address to hand to the checker.
func (f *FakeRepoData) ChannelURL() string {
	return "file://" + f.Dir
}

// Write persists every touched subdir plus a noarch index, which
// solvers expect a channel to carry even when empty.
func (f *FakeRepoData) Write() error {
	if _, ok := f.indexes["noarch"]; !ok {
		f.indexes["noarch"] = repodata.New("noarch")
	}

	for _, idx := range f.indexes {
		err := idx.Write(f.Dir)
		if err != nil {
			return err
		}
	}

	return nil
}
