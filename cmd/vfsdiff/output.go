package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mattn/go-colorable"

	"github.com/eldenglass/vfsdiff/compare"
	"github.com/eldenglass/vfsdiff/vfs"
)

// jsonMetadata is the "<size>/<modified_unix>/<is_dir>" shape from
// spec §6, or null when a side has no entry for the path.
type jsonMetadata struct {
	Size         int64  `json:"size"`
	ModifiedUnix *int64 `json:"modified_unix"`
	IsDir        bool   `json:"is_dir"`
}

type jsonEntry struct {
	Path   string        `json:"path"`
	Status string        `json:"status"`
	Left   *jsonMetadata `json:"left"`
	Right  *jsonMetadata `json:"right"`
}

type jsonSummary struct {
	Total       int `json:"total"`
	Same        int `json:"same"`
	Different   int `json:"different"`
	OrphanLeft  int `json:"orphan_left"`
	OrphanRight int `json:"orphan_right"`
	Unchecked   int `json:"unchecked"`
}

type jsonReport struct {
	Left    string      `json:"left"`
	Right   string      `json:"right"`
	Summary jsonSummary `json:"summary"`
	Entries []jsonEntry `json:"entries"`
}

func toJSONMetadata(e *vfs.Entry) *jsonMetadata {
	if e == nil {
		return nil
	}
	unix := e.ModTime.Unix()
	return &jsonMetadata{Size: e.Size, ModifiedUnix: &unix, IsDir: e.IsDir}
}

// buildReport assembles the stable JSON schema from a two-way diff.
// diffOnly drops Same nodes from entries; the summary always counts
// everything, per §6.
func buildReport(left, right string, nodes []compare.DiffNode, diffOnly bool) jsonReport {
	report := jsonReport{Left: left, Right: right}
	for _, n := range nodes {
		report.Summary.Total++
		switch n.Status {
		case vfs.Same:
			report.Summary.Same++
		case vfs.Different:
			report.Summary.Different++
		case vfs.OrphanLeft:
			report.Summary.OrphanLeft++
		case vfs.OrphanRight:
			report.Summary.OrphanRight++
		case vfs.Unchecked:
			report.Summary.Unchecked++
		}
		if diffOnly && n.Status == vfs.Same {
			continue
		}
		report.Entries = append(report.Entries, jsonEntry{
			Path:   string(n.Path),
			Status: n.Status.String(),
			Left:   toJSONMetadata(n.Left),
			Right:  toJSONMetadata(n.Right),
		})
	}
	return report
}

func writeJSON(w io.Writer, report jsonReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// statusColor maps a diff status to its ANSI color code.
func statusColor(status string) string {
	switch status {
	case "Same":
		return "\x1b[32m"
	case "Different":
		return "\x1b[31m"
	case "OrphanLeft", "OrphanRight":
		return "\x1b[33m"
	default:
		return "\x1b[0m"
	}
}

// writeTable prints a plain columnar listing to stdout, colorized
// unless noColor is set. go-colorable wraps stdout so the ANSI codes
// still render on a Windows console, the same way rclone colorizes
// its own terminal output.
func writeTable(report jsonReport, noColor bool) {
	var out io.Writer = colorable.NewColorableStdout()
	for _, e := range report.Entries {
		if noColor {
			fmt.Fprintf(out, "%-10s %s\n", e.Status, e.Path)
			continue
		}
		fmt.Fprintf(out, "%s%-10s\x1b[0m %s\n", statusColor(e.Status), e.Status, e.Path)
	}
	fmt.Fprintf(out, "\ntotal=%d same=%d different=%d orphan_left=%d orphan_right=%d unchecked=%d\n",
		report.Summary.Total, report.Summary.Same, report.Summary.Different,
		report.Summary.OrphanLeft, report.Summary.OrphanRight, report.Summary.Unchecked)
}
