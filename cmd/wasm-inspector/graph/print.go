package graph

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jszwec/csvutil"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/wasm"
)

var (
	entryColor = color.New(color.FgGreen)
	deadColor  = color.New(color.FgRed)
)

func printText(w io.Writer, m *wasm.Module, g *callgraph.Graph) error {
	if m.Names.Module != "" {
		fmt.Fprintf(w, "module %s\n", m.Names.Module)
	}
	fmt.Fprintf(w, "functions: %d (%d imported), reachable: %d, unreachable: %d\n",
		m.FunctionCount(), m.ImportCount(wasm.ExternalFunction), g.ReachableCount(), len(g.Unreachable))

	entries := make(map[uint32]bool, len(g.EntryPoints))
	names := make([]string, len(g.EntryPoints))
	for i, e := range g.EntryPoints {
		entries[e] = true
		names[i] = displayName(g, e)
	}
	fmt.Fprintf(w, "entry points: %s\n", strings.Join(names, ", "))

	for i := range g.Nodes {
		n := &g.Nodes[i]

		var tags []string
		if n.IsImported {
			tags = append(tags, "import")
		}
		if n.IsExported {
			tags = append(tags, "export")
		}
		if entries[n.Index] {
			tags = append(tags, "entry")
		}
		if !g.IsReachable(n.Index) {
			tags = append(tags, "unreachable")
		}

		line := fmt.Sprintf("%6d %s", n.Index, n.DisplayName())
		if len(tags) != 0 {
			line += " [" + strings.Join(tags, ", ") + "]"
		}
		if callees := g.Callees(n.Index); len(callees) != 0 {
			targets := make([]string, len(callees))
			for i, e := range callees {
				targets[i] = displayName(g, e.To)
			}
			line += " -> " + strings.Join(targets, ", ")
		}

		var err error
		switch {
		case !g.IsReachable(n.Index):
			_, err = deadColor.Fprintln(w, line)
		case entries[n.Index]:
			_, err = entryColor.Fprintln(w, line)
		default:
			_, err = fmt.Fprintln(w, line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func displayName(g *callgraph.Graph, index uint32) string {
	if n, ok := g.Node(index); ok {
		return n.DisplayName()
	}
	return fmt.Sprintf("func[%d]", index)
}

func printNodes(w io.Writer, g *callgraph.Graph) error {
	type row struct {
		Funcidx   uint32 `csv:"funcidx"`
		Name      string `csv:"name"`
		Imported  bool   `csv:"imported"`
		Exported  bool   `csv:"exported"`
		Entry     bool   `csv:"entry"`
		Reachable bool   `csv:"reachable"`
		CallCount int    `csv:"call count"`
	}

	csvWriter := csv.NewWriter(w)

	encoder := csvutil.NewEncoder(csvWriter)

	entries := make(map[uint32]bool, len(g.EntryPoints))
	for _, e := range g.EntryPoints {
		entries[e] = true
	}
	for _, n := range g.Nodes {
		r := row{
			Funcidx:   n.Index,
			Name:      n.Name,
			Imported:  n.IsImported,
			Exported:  n.IsExported,
			Entry:     entries[n.Index],
			Reachable: g.IsReachable(n.Index),
			CallCount: n.CallCount,
		}
		if err := encoder.Encode(&r); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func printEdges(w io.Writer, g *callgraph.Graph) error {
	type row struct {
		Caller     uint32 `csv:"caller"`
		CallerName string `csv:"caller name"`
		Callee     uint32 `csv:"callee"`
		CalleeName string `csv:"callee name"`
		CallSites  int    `csv:"call sites"`
	}

	csvWriter := csv.NewWriter(w)

	encoder := csvutil.NewEncoder(csvWriter)
	for _, e := range g.Edges {
		r := row{
			Caller:     e.From,
			CallerName: displayName(g, e.From),
			Callee:     e.To,
			CalleeName: displayName(g, e.To),
			CallSites:  e.CallSites,
		}
		if err := encoder.Encode(&r); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
