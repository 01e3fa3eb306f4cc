// Package feedstock models a conda-forge feedstock checkout: the
// recipe plus the .ci_support variant configs a rerender produced,
// with fetching for remote feedstocks.
package feedstock

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"lab47.dev/solvent/pkg/cleanhttp"
)

// Feedstock is an open feedstock directory.
type Feedstock struct {
	Dir  string
	Name string
}

// Open validates dir and derives the feedstock name from its base
// name, dropping the conventional -feedstock suffix.
func Open(dir string) (*Feedstock, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if !fi.IsDir() {
		return nil, errors.Errorf("not a directory: %s", dir)
	}

	name := strings.TrimSuffix(filepath.Base(dir), "-feedstock")

	return &Feedstock{Dir: dir, Name: name}, nil
}

// RecipeDir is where meta.yaml and any local conda_build_config.yaml
// live.
func (f *Feedstock) RecipeDir() string {
	return filepath.Join(f.Dir, "recipe")
}

// HasRecipe reports whether recipe/meta.yaml exists.
func (f *Feedstock) HasRecipe() bool {
	_, err := os.Stat(filepath.Join(f.RecipeDir(), "meta.yaml"))
	return err == nil
}

// ConfigPaths lists the .ci_support variant configs in sorted order.
// A missing directory is an empty listing, not an error.
func (f *Feedstock) ConfigPaths() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(f.Dir, ".ci_support", "*.yaml"))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Strings(paths)

	return paths, nil
}

// BuildPlatforms reads the build_platform map from conda-forge.yml.
// Both keys and values use the platform_arch form ("osx_arm64":
// "osx_64"). The file or section being absent is an empty map.
func (f *Feedstock) BuildPlatforms() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(f.Dir, "conda-forge.yml"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}

		return nil, errors.WithStack(err)
	}

	var cf struct {
		BuildPlatform map[string]string `yaml:"build_platform"`
	}

	err = yaml.Unmarshal(data, &cf)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing conda-forge.yml")
	}

	if cf.BuildPlatform == nil {
		cf.BuildPlatform = map[string]string{}
	}

	return cf.BuildPlatform, nil
}

// Fetch materializes a feedstock from src and opens it. Existing
// local directories open in place; git URLs clone shallowly into dst;
// anything else goes through go-getter.
func Fetch(ctx context.Context, src, dst string, log hclog.Logger) (*Feedstock, error) {
	if log == nil {
		log = hclog.L()
	}

	if fi, err := os.Stat(src); err == nil && fi.IsDir() {
		return Open(src)
	}

	log.Debug("fetching feedstock", "src", src, "dst", dst)

	if isGitURL(src) {
		_, err := git.PlainCloneContext(ctx, dst, false, &git.CloneOptions{
			URL:   src,
			Depth: 1,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "cloning %s", src)
		}

		return Open(dst)
	}

	httpGetter := &getter.HttpGetter{Client: cleanhttp.DefaultClient}

	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeDir,
		Getters: map[string]getter.Getter{
			"http":  httpGetter,
			"https": httpGetter,
			"file":  &getter.FileGetter{Copy: true},
		},
	}

	err := client.Get()
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", src)
	}

	return Open(dst)
}

func isGitURL(src string) bool {
	if strings.HasPrefix(src, "git@") || strings.HasPrefix(src, "git://") {
		return true
	}

	if strings.HasSuffix(strings.TrimSuffix(src, "/"), ".git") {
		return true
	}

	u, err := url.Parse(src)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host == "github.com" || u.Host == "gitlab.com"
}
