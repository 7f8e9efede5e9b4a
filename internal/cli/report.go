package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/klauern/hubsync/internal/config"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/sync"
	"github.com/klauern/hubsync/internal/ui"
)

// report is the machine-readable outcome of one command.
type report struct {
	Operation string            `json:"operation" yaml:"operation"`
	Session   string            `json:"session" yaml:"session"`
	Items     []sync.ItemResult `json:"items" yaml:"items"`
	Totals    reportTotals      `json:"totals" yaml:"totals"`
}

type reportTotals struct {
	Processed int `json:"processed" yaml:"processed"`
	Changed   int `json:"changed" yaml:"changed"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
	Failed    int `json:"failed" yaml:"failed"`
}

func newReport(op, session string, res *sync.Result) report {
	items := res.Items
	if items == nil {
		items = []sync.ItemResult{}
	}
	return report{
		Operation: op,
		Session:   session,
		Items:     items,
		Totals: reportTotals{
			Processed: res.TotalProcessed(),
			Changed:   res.TotalChanged(),
			Conflicts: len(res.Conflicts()),
			Failed:    len(res.Failed()),
		},
	}
}

// writeStructured encodes v as JSON or YAML. It reports false for the table format.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case config.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case config.FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		_, err = w.Write(data)
		return true, err
	default:
		return false, nil
	}
}

// writeResult prints the outcome of a sync operation: a status line per item
// and a summary, or a structured report.
func (a *app) writeResult(op string, ws *workspace) error {
	res := ws.result()
	if ok, err := writeStructured(a.out, a.cfg.Output.Format, newReport(op, ws.session.ID, res)); ok {
		return err
	}

	for _, item := range res.Items {
		if item.Success() && !a.cfg.Output.Verbose && item.Action != sync.ActionLocalOnly {
			continue
		}
		fmt.Fprintln(a.out, ui.ActionStatus(item))
	}
	fmt.Fprintf(a.out, "\n%s\n%s", ui.Bold(ui.Title(op)+" summary:"), res.Summary())
	return nil
}

// itemRows projects artifacts for the list table.
func itemRows(items []model.Artifact) [][]string {
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{it.ID(), it.Name(), it.Path(), string(it.Status()), it.LastModified()}
	}
	return rows
}

var itemHeaders = []string{"id", "name", "path", "status", "last modified"}

// itemSummary is the structured form of a listed artifact.
type itemSummary struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Path         string `json:"path,omitempty" yaml:"path,omitempty"`
	Status       string `json:"status,omitempty" yaml:"status,omitempty"`
	LastModified string `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
}

func summarize(items []model.Artifact) []itemSummary {
	out := make([]itemSummary, len(items))
	for i, it := range items {
		out[i] = itemSummary{
			ID:           it.ID(),
			Name:         it.Name(),
			Path:         it.Path(),
			Status:       string(it.Status()),
			LastModified: it.LastModified(),
		}
	}
	return out
}
