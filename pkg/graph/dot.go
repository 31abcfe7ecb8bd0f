package graph

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures DOT generation.
type DOTOptions struct {
	// Detailed adds the primary identity and level to node labels.
	Detailed bool
}

// ToDOT converts an artifact to Graphviz DOT. Resources of one level share a
// rank, so the drawing reads bottom-up in execution order. Resources on a
// reported cycle are outlined in red.
func ToDOT(a *Artifact, opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph stackscan {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	onCycle := make(map[string]bool, len(a.Cycle))
	for _, name := range a.Cycle {
		onCycle[name] = true
	}

	for _, r := range a.Resources {
		attrs := []string{fmt.Sprintf("label=%q", label(r, opts.Detailed))}
		if onCycle[r.Name] {
			attrs = append(attrs, "color=red", "penwidth=2")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", r.Name, strings.Join(attrs, ", "))
	}

	for i, level := range a.Levels {
		quoted := make([]string, len(level))
		for j, name := range level {
			quoted[j] = strconv.Quote(name)
		}
		fmt.Fprintf(&buf, "  { rank=same; /* level %d */ %s; }\n", i, strings.Join(quoted, "; "))
	}

	buf.WriteString("\n")
	for _, e := range a.Edges {
		fmt.Fprintf(&buf, "  %q -> %q [tooltip=%q];\n", e.From, e.To, e.Via)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func label(r ArtifactResource, detailed bool) string {
	if !detailed {
		return r.Name
	}
	parts := []string{r.Name}
	if r.Identity != "" && r.Identity != r.Name {
		parts = append(parts, r.Identity)
	}
	if r.Level != nil {
		parts = append(parts, fmt.Sprintf("level %d", *r.Level))
	}
	return strings.Join(parts, "\n")
}

// RenderSVG renders DOT source to SVG using the embedded Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales with its
// container instead of using Graphviz's point-based width and height.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
