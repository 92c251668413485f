package wasm

// backfill sets export flags and names once every section has been read.
// A function's name comes from the name section if it has an entry there,
// and otherwise from the first export of the function.
func (m *Module) backfill() {
	var exports [4]map[uint32]string
	for _, e := range m.Exports {
		if exports[e.Kind] == nil {
			exports[e.Kind] = map[uint32]string{}
		}
		if _, ok := exports[e.Kind][e.Index]; !ok {
			exports[e.Kind][e.Index] = e.Name
		}
	}

	for i := range m.Functions {
		f := &m.Functions[i]
		exportName, exported := exports[ExternalFunction][f.Index]
		f.IsExported = exported
		if name, ok := m.Names.Function(f.Index); ok {
			f.Name = name
		} else if exported {
			f.Name = exportName
		}
	}
	if m.Memory != nil {
		_, m.Memory.IsExported = exports[ExternalMemory][m.Memory.Index]
	}
	for i := range m.Tables {
		_, m.Tables[i].IsExported = exports[ExternalTable][m.Tables[i].Index]
	}
	for i := range m.Globals {
		_, m.Globals[i].IsExported = exports[ExternalGlobal][m.Globals[i].Index]
	}
}
