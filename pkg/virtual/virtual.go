// Package virtual synthesizes the channel of virtual packages
// (__glibc, __cuda, __osx and friends) that real environments inject
// at install time. Solvers see no such packages in regular channels,
// so recipes constrained on them would read as unsolvable without it.
package virtual

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/lockfile"
	"lab47.dev/solvent/pkg/repodata"
)

// MaxGlibcMinor caps the advertised glibc series. The same ceiling is
// exported to the solver environment as CONDA_OVERRIDE_GLIBC so both
// paths agree on what the newest supported glibc is.
const MaxGlibcMinor = 50

const minGlibcMinor = 12

// generation names the channel layout. Bump it when the generated
// package set changes so stale caches are discarded.
const generation = "1"

var (
	linuxSubdirs = []string{"linux-64", "linux-32", "linux-aarch64", "linux-ppc64le", "linux-armv7l"}
	osxSubdirs   = []string{"osx-64", "osx-arm64"}
	winSubdirs   = []string{"win-64", "win-32"}
)

var cudaVersions = []string{
	"9.2",
	"10.0", "10.1", "10.2",
	"11.0", "11.1", "11.2", "11.3", "11.4", "11.5", "11.6", "11.7", "11.8",
	"12.0", "12.1", "12.2", "12.3", "12.4", "12.5", "12.6",
}

var osxVersions = []string{
	"10.9", "10.10", "10.11", "10.12", "10.13", "10.14", "10.15", "10.16",
	"11.0", "12.0", "13.0", "14.0", "15.0",
}

// Dir reports where Channel places the current generation under
// dataDir, whether or not it has been built yet.
func Dir(dataDir string) string {
	return filepath.Join(dataDir, "virtual-packages", "v"+generation)
}

// Ready reports whether dir holds a finished channel build.
func Ready(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".complete"))
	return err == nil
}

// Channel ensures the virtual-package channel exists under dataDir and
// returns its path, building it behind a lock when missing. Finished
// channels are immutable, so readers skip the lock entirely.
func Channel(ctx context.Context, dataDir string, log hclog.Logger) (string, error) {
	if log == nil {
		log = hclog.L()
	}

	dir := Dir(dataDir)
	root := filepath.Dir(dir)

	if Ready(dir) {
		return dir, nil
	}

	err := os.MkdirAll(root, 0755)
	if err != nil {
		return "", errors.WithStack(err)
	}

	release, err := lockfile.Take(ctx, filepath.Join(root, ".lock"), func() {
		log.Debug("waiting for virtual package channel lock", "path", root)
	})
	if err != nil {
		return "", err
	}
	defer release()

	// another process may have finished the build while we waited
	if Ready(dir) {
		return dir, nil
	}

	log.Debug("building virtual package channel", "path", dir)

	err = os.RemoveAll(dir)
	if err != nil {
		return "", errors.WithStack(err)
	}

	err = buildChannel(dir)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(filepath.Join(dir, ".complete"), []byte(generation+"\n"), 0644)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return dir, nil
}

func buildChannel(dir string) error {
	indexes := map[string]*repodata.Repodata{}

	add := func(subdirs []string, rec repodata.Record) {
		for _, sub := range subdirs {
			idx, ok := indexes[sub]
			if !ok {
				idx = repodata.New(sub)
				indexes[sub] = idx
			}

			idx.Add(rec)
		}
	}

	for minor := minGlibcMinor; minor <= MaxGlibcMinor; minor++ {
		add(linuxSubdirs, repodata.Record{
			Name:    "__glibc",
			Version: fmt.Sprintf("2.%d", minor),
			Build:   "0",
		})
	}

	for _, v := range cudaVersions {
		add(append(append([]string{}, linuxSubdirs...), winSubdirs...), repodata.Record{
			Name:    "__cuda",
			Version: v,
			Build:   "0",
		})
	}

	for _, v := range osxVersions {
		add(osxSubdirs, repodata.Record{Name: "__osx", Version: v, Build: "0"})
	}

	add(linuxSubdirs, repodata.Record{Name: "__linux", Version: "5.15.0", Build: "0"})
	add(winSubdirs, repodata.Record{Name: "__win", Version: "10", Build: "0"})

	unixSubdirs := append(append([]string{}, linuxSubdirs...), osxSubdirs...)
	add(unixSubdirs, repodata.Record{Name: "__unix", Version: "0", Build: "0"})

	allSubdirs := append(append([]string{}, unixSubdirs...), winSubdirs...)
	for _, sub := range allSubdirs {
		arch := sub[strings.Index(sub, "-")+1:]
		add([]string{sub}, repodata.Record{Name: "__archspec", Version: "1", Build: arch})
	}

	// channels carry a noarch index even when it is empty
	if _, ok := indexes["noarch"]; !ok {
		indexes["noarch"] = repodata.New("noarch")
	}

	for _, idx := range indexes {
		err := idx.Write(dir)
		if err != nil {
			return err
		}
	}

	return nil
}
