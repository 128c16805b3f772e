package engine

import (
	"github.com/tetratelabs/wazero/api"
)

const (
	ExportMemory  = "memory"
	ExportAlloc   = "bridge_alloc"
	ExportOpen    = "bridge_open"
	ExportCommand = "bridge_command"
	ExportClose   = "bridge_close"

	HostModule   = "bridge"
	HostProgress = "progress"

	// Reactor modules run their initializer before any export is called.
	initializeFunc = "_initialize"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return equalTypes(s.params, def.ParamTypes()) && equalTypes(s.results, def.ResultTypes())
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// requiredExports lists the functions every engine module exports.
var requiredExports = map[string]signature{
	// (size) -> ptr
	ExportAlloc: {params: []api.ValueType{i32}, results: []api.ValueType{i32}},
	// (init_ptr, init_len) -> handle, 0 on failure
	ExportOpen: {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	// (handle, input_ptr, input_len, long_running) -> ptr<<32 | len
	ExportCommand: {params: []api.ValueType{i32, i32, i32, i32}, results: []api.ValueType{i64}},
}

// (handle)
var closeSignature = signature{params: []api.ValueType{i32}}

// (handle, ptr, len) -> continue
var progressSignature = signature{params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32}}

// packResult and unpackResult convert between a guest buffer and the i64
// returned by bridge_command.
func packResult(ptr, n uint32) uint64 {
	return uint64(ptr)<<32 | uint64(n)
}

func unpackResult(v uint64) (ptr, n uint32) {
	return uint32(v >> 32), uint32(v)
}
