// Package status renders check verdicts for terminals.
package status

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/morikuni/aec"
)

var (
	passTag = aec.GreenF.Apply("PASS")
	failTag = aec.RedF.Apply("FAIL")
)

// Report is one feedstock check, ready to print: a verdict per config,
// the collected errors, and the overall answer.
type Report struct {
	Solvable bool
	ByConfig map[string]bool
	Errors   []string
}

// Render writes the per-config table, the errors, and the overall
// verdict.
func (r *Report) Render(w io.Writer) error {
	names := make([]string, 0, len(r.ByConfig))
	for name := range r.ByConfig {
		names = append(names, name)
	}

	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)

	for _, name := range names {
		tag := passTag
		if !r.ByConfig[name] {
			tag = failTag
		}

		fmt.Fprintf(tw, "%s\t%s\n", name, tag)
	}

	err := tw.Flush()
	if err != nil {
		return err
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w)

		for _, e := range r.Errors {
			fmt.Fprintf(w, "! %s\n", e)
		}
	}

	verdict := aec.GreenF.Apply("solvable")
	if !r.Solvable {
		verdict = aec.RedF.Apply("not solvable")
	}

	_, err = fmt.Fprintf(w, "\n=> %s\n", verdict)

	return err
}
