package dump

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/wasm"
)

type row struct {
	Function         string `csv:"function"`
	Funcidx          uint32 `csv:"funcidx"`
	Type             uint32 `csv:"typeidx"`
	Signature        string `csv:"signature"`
	In               int    `csv:"in"`
	Out              int    `csv:"out"`
	Locals           string `csv:"locals"`
	LocalCount       uint64 `csv:"local count"`
	BodySize         uint32 `csv:"body size"`
	InstructionCount int    `csv:"instruction count"`
	MaxNesting       int    `csv:"max nesting"`
	Calls            int    `csv:"calls"`
	CallIndirect     int    `csv:"call_indirect"`
	Exported         bool   `csv:"exported"`
	Reachable        bool   `csv:"reachable"`
}

// locals renders local declarations as "count type" pairs, e.g. "2 i32; 1 f64".
func locals(entries []wasm.LocalEntry) (string, uint64) {
	var total uint64
	parts := make([]string, len(entries))
	for i, e := range entries {
		total += uint64(e.Count)
		parts[i] = strconv.FormatUint(uint64(e.Count), 10) + " " + e.Type.String()
	}
	return strings.Join(parts, "; "), total
}

func dumpStats(w io.Writer, m *wasm.Module, g *callgraph.Graph) error {
	csvWriter := csv.NewWriter(w)

	encoder := csvutil.NewEncoder(csvWriter)

	calls := make(map[uint32]int)
	for _, c := range m.Calls {
		calls[c.Caller]++
	}

	for i := range m.Functions {
		f := &m.Functions[i]

		r := row{
			Function:         f.Name,
			Funcidx:          f.Index,
			Type:             f.Type,
			BodySize:         f.BodySize,
			InstructionCount: f.Metrics.InstructionCount,
			MaxNesting:       f.Metrics.MaxNesting,
			Calls:            calls[f.Index],
			CallIndirect:     f.Metrics.IndirectCalls,
			Exported:         f.IsExported,
			Reachable:        g.IsReachable(f.Index),
		}
		if sig := m.Signature(f); sig != nil {
			r.Signature = sig.String()
			r.In, r.Out = len(sig.ParamTypes), len(sig.ReturnTypes)
		}
		r.Locals, r.LocalCount = locals(f.Locals)

		if err := encoder.Encode(&r); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
