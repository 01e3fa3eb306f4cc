package repodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/cleanhttp"
	"lab47.dev/solvent/pkg/spec"
)

// RunExports is the set of constraints a package injects onto its
// consumers, bucketed the way conda records them.
type RunExports struct {
	Weak             []string `json:"weak,omitempty"`
	Strong           []string `json:"strong,omitempty"`
	Noarch           []string `json:"noarch,omitempty"`
	WeakConstrains   []string `json:"weak_constrains,omitempty"`
	StrongConstrains []string `json:"strong_constrains,omitempty"`
}

// Empty reports whether no bucket carries anything.
func (r *RunExports) Empty() bool {
	if r == nil {
		return true
	}

	return len(r.Weak) == 0 && len(r.Strong) == 0 && len(r.Noarch) == 0 &&
		len(r.WeakConstrains) == 0 && len(r.StrongConstrains) == 0
}

// Merge folds other's buckets into r, skipping entries already present.
func (r *RunExports) Merge(other *RunExports) {
	if other == nil {
		return
	}

	r.Weak = mergeUnique(r.Weak, other.Weak)
	r.Strong = mergeUnique(r.Strong, other.Strong)
	r.Noarch = mergeUnique(r.Noarch, other.Noarch)
	r.WeakConstrains = mergeUnique(r.WeakConstrains, other.WeakConstrains)
	r.StrongConstrains = mergeUnique(r.StrongConstrains, other.StrongConstrains)
}

func mergeUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}

	for _, v := range src {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		dst = append(dst, v)
	}

	return dst
}

// Record is one package entry in a channel index. run_exports is not
// part of upstream repodata proper; locally generated channels (fakes,
// the virtual-package channel) carry it inline so a solve can report
// exports without fetching artifacts.
type Record struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Build       string      `json:"build"`
	BuildNumber int         `json:"build_number"`
	Subdir      string      `json:"subdir,omitempty"`
	Noarch      string      `json:"noarch,omitempty"`
	Depends     []string    `json:"depends"`
	Constrains  []string    `json:"constrains,omitempty"`
	RunExports  *RunExports `json:"run_exports,omitempty"`
	Timestamp   int64       `json:"timestamp,omitempty"`
}

// Filename is the archive name the record is indexed under.
func (r Record) Filename() string {
	if r.Build == "" {
		return fmt.Sprintf("%s-%s.tar.bz2", r.Name, r.Version)
	}

	return fmt.Sprintf("%s-%s-%s.tar.bz2", r.Name, r.Version, r.Build)
}

// Info identifies the subdir an index file describes.
type Info struct {
	Subdir string `json:"subdir"`
}

// Repodata is one repodata.json: the package index of a single
// channel subdir.
type Repodata struct {
	Info            Info              `json:"info"`
	Packages        map[string]Record `json:"packages"`
	PackagesConda   map[string]Record `json:"packages.conda,omitempty"`
	RepodataVersion int               `json:"repodata_version"`
}

// New returns an empty index for a subdir.
func New(subdir string) *Repodata {
	return &Repodata{
		Info:            Info{Subdir: subdir},
		Packages:        map[string]Record{},
		RepodataVersion: 1,
	}
}

// Add indexes a record under its archive filename.
func (rd *Repodata) Add(rec Record) {
	if rec.Subdir == "" {
		rec.Subdir = rd.Info.Subdir
	}

	if rec.Depends == nil {
		rec.Depends = []string{}
	}

	rd.Packages[rec.Filename()] = rec
}

// Records returns every package entry, tar.bz2 and conda alike.
func (rd *Repodata) Records() []Record {
	out := make([]Record, 0, len(rd.Packages)+len(rd.PackagesConda))

	for _, rec := range rd.Packages {
		out = append(out, rec)
	}
	for _, rec := range rd.PackagesConda {
		out = append(out, rec)
	}

	return out
}

// Find returns the records matching a requirement specifier.
func (rd *Repodata) Find(s spec.Spec) []Record {
	var out []Record

	for _, rec := range rd.Records() {
		if rec.Name != s.Name {
			continue
		}

		if s.Match(rec.Version, rec.Build) {
			out = append(out, rec)
		}
	}

	return out
}

// Write stores the index as <dir>/<subdir>/repodata.json, creating
// the subdir as needed.
func (rd *Repodata) Write(dir string) error {
	sub := filepath.Join(dir, rd.Info.Subdir)

	err := os.MkdirAll(sub, 0755)
	if err != nil {
		return errors.WithStack(err)
	}

	data, err := json.MarshalIndent(rd, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.WriteFile(filepath.Join(sub, "repodata.json"), data, 0644))
}

// Load parses a repodata.json file.
func Load(path string) (*Repodata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var rd Repodata

	err = json.Unmarshal(data, &rd)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	if rd.Packages == nil {
		rd.Packages = map[string]Record{}
	}

	return &rd, nil
}

// ChannelURL expands a bare channel name ("conda-forge") to its
// anaconda.org URL. Absolute paths and anything already carrying a
// scheme pass through.
func ChannelURL(channel string) string {
	if strings.Contains(channel, "://") || filepath.IsAbs(channel) {
		return channel
	}

	return "https://conda.anaconda.org/" + channel
}

// Fetch reads the index for one channel subdir. Channels may be local
// directories, file:// URLs, http(s) URLs, or bare channel names.
func Fetch(ctx context.Context, channel, subdir string) (*Repodata, error) {
	u := strings.TrimSuffix(ChannelURL(channel), "/")

	switch {
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return fetchHTTP(ctx, u+"/"+subdir+"/repodata.json")
	case strings.HasPrefix(u, "file://"):
		return Load(filepath.Join(strings.TrimPrefix(u, "file://"), subdir, "repodata.json"))
	default:
		return Load(filepath.Join(u, subdir, "repodata.json"))
	}
}

func fetchHTTP(ctx context.Context, url string) (*Repodata, error) {
	resp, err := cleanhttp.Get(ctx, url)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching %s: %s", url, resp.Status)
	}

	var rd Repodata

	err = json.NewDecoder(resp.Body).Decode(&rd)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", url)
	}

	if rd.Packages == nil {
		rd.Packages = map[string]Record{}
	}

	return &rd, nil
}
