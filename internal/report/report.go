// Package report renders conflicts and resolution plans as either a
// human-readable text layout or the canonical JSON document that
// downstream automation consumes.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/resolve"
)

// ConflictView is the JSON-serializable shape of one Conflict.
type ConflictView struct {
	Parent    string `json:"parent"`
	Dep       string `json:"dep"`
	Kind      string `json:"kind"`
	Installed string `json:"installed_version,omitempty"`
	Required  string `json:"required"`
}

// PlanItemView is the JSON-serializable shape of one resolved item.
type PlanItemView struct {
	Package string `json:"package"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// UnsolvableView is the JSON-serializable shape of one unsolvable
// bucket.
type UnsolvableView struct {
	Package string `json:"package"`
	Reason  string `json:"reason"`
}

// Summary rolls up the counts automation typically wants at a glance.
type Summary struct {
	ConflictCount   int `json:"conflict_count"`
	ResolvableCount int `json:"resolvable_count"`
}

// Document is the full report: the authoritative JSON shape, and the
// source for the text rendering.
type Document struct {
	Conflicts  []ConflictView   `json:"conflicts"`
	Plan       []PlanItemView   `json:"plan"`
	Unsolvable []UnsolvableView `json:"unsolvable"`
	Summary    Summary          `json:"summary"`
}

// Build assembles a Document from the conflict and plan phases. conflicts
// is expected to already be in the Detector's deterministic order;
// plan.Items is expected to already be topologically ordered.
func Build(conflicts []conflict.Conflict, plan resolve.Plan) Document {
	doc := Document{
		Conflicts:  make([]ConflictView, 0, len(conflicts)),
		Plan:       make([]PlanItemView, 0, len(plan.Items)),
		Unsolvable: make([]UnsolvableView, 0, len(plan.Unsolvable)),
	}

	for _, c := range conflicts {
		doc.Conflicts = append(doc.Conflicts, ConflictView{
			Parent:    c.ParentName,
			Dep:       c.DepName,
			Kind:      c.Kind.String(),
			Installed: c.InstalledVersion.String(),
			Required:  c.Required.String(),
		})
	}

	for _, item := range plan.Items {
		doc.Plan = append(doc.Plan, PlanItemView{
			Package: item.PackageName,
			From:    item.CurrentVersion.String(),
			To:      item.TargetVersion.String(),
		})
	}

	for _, u := range plan.Unsolvable {
		doc.Unsolvable = append(doc.Unsolvable, UnsolvableView{
			Package: u.PackageName,
			Reason:  u.Reason,
		})
	}

	sort.Slice(doc.Unsolvable, func(i, j int) bool { return doc.Unsolvable[i].Package < doc.Unsolvable[j].Package })

	doc.Summary = Summary{
		ConflictCount:   len(doc.Conflicts),
		ResolvableCount: len(doc.Plan),
	}

	return doc
}

// MarshalJSON renders doc as canonical JSON: fields in their fixed
// declaration order, UTF-8, two space indent, single trailing newline.
func MarshalJSON(doc Document) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	return buf.Bytes(), nil
}

// RenderText renders doc the way the CLI prints to a terminal:
// conflicts grouped by parent, then the plan, then unsolvable buckets.
func RenderText(doc Document) string {
	var b strings.Builder

	writeConflictSection(&b, doc.Conflicts)
	writePlanSection(&b, doc.Plan)
	writeUnsolvableSection(&b, doc.Unsolvable)

	fmt.Fprintf(&b, "\n%d conflict(s), %d resolvable\n", doc.Summary.ConflictCount, doc.Summary.ResolvableCount)

	return b.String()
}

func writeConflictSection(b *strings.Builder, conflicts []ConflictView) {
	if len(conflicts) == 0 {
		fmt.Fprintln(b, "No conflicts found.")

		return
	}

	fmt.Fprintln(b, "Conflicts:")

	byParent := make(map[string][]ConflictView)

	var parents []string

	for _, c := range conflicts {
		if _, seen := byParent[c.Parent]; !seen {
			parents = append(parents, c.Parent)
		}

		byParent[c.Parent] = append(byParent[c.Parent], c)
	}

	for _, parent := range parents {
		fmt.Fprintf(b, "  %s\n", parent)

		entries := byParent[parent]

		for i, c := range entries {
			connector := "├──"
			if i == len(entries)-1 {
				connector = "└──"
			}

			fmt.Fprintf(b, "    %s %s requires %s (installed: %s) [%s]\n",
				connector, c.Dep, c.Required, installedOrNone(c.Installed), c.Kind)
		}
	}
}

func installedOrNone(v string) string {
	if v == "" {
		return "none"
	}

	return v
}

func writePlanSection(b *strings.Builder, items []PlanItemView) {
	fmt.Fprintln(b, "\nPlan:")

	if len(items) == 0 {
		fmt.Fprintln(b, "  (empty)")

		return
	}

	for _, item := range items {
		fmt.Fprintf(b, "  %s: %s -> %s\n", item.Package, fromOrNew(item.From), item.To)
	}
}

func fromOrNew(v string) string {
	if v == "" {
		return "(new)"
	}

	return v
}

func writeUnsolvableSection(b *strings.Builder, unsolvable []UnsolvableView) {
	if len(unsolvable) == 0 {
		return
	}

	fmt.Fprintln(b, "\nUnsolvable:")

	for _, u := range unsolvable {
		fmt.Fprintf(b, "  %s: %s\n", u.Package, u.Reason)
	}
}
