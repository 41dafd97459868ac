package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lost-item-finder/internal/history"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var titleCase = cases.Title(language.English)

func parseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON, formatYAML:
		return f, nil
	default:
		return "", eris.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(out io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		table(out)
		return nil
	}
}

func formatDetections(out io.Writer, dets []finder.Detection) {
	if len(dets) == 0 {
		_, _ = fmt.Fprintln(out, "No target objects detected.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OBJECT\tCONFIDENCE\tLOCATION")
	_, _ = fmt.Fprintln(w, "------\t----------\t--------")
	for _, d := range dets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", titleCase.String(d.ClassName), percent(d.Confidence), d.FrameLocation)
	}
	_ = w.Flush()
}

func formatHistory(out io.Writer, records []finder.HistoryRecord) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No detection history.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTIMESTAMP\tOBJECT\tCONFIDENCE\tIMAGE")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t----------\t-----")
	for _, r := range records {
		img := "-"
		if r.HasImage() {
			img = r.ImageURL
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp, titleCase.String(r.ClassName), percent(r.Confidence), img)
	}
	_ = w.Flush()
}

func formatTrend(out io.Writer, points []history.ConfidencePoint) {
	if len(points) == 0 {
		_, _ = fmt.Fprintln(out, "No confidence trend.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tCONFIDENCE")
	_, _ = fmt.Fprintln(w, "----\t----------")
	for _, p := range points {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", p.Date, percent(p.Confidence))
	}
	_ = w.Flush()
}

func percent(c float64) string {
	return strconv.FormatFloat(c*100, 'f', 1, 64) + "%"
}
