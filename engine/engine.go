package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// CacheDir persists compiled code between runs. Empty disables the cache.
	CacheDir string

	// Mounts lists host directories made visible to WASI engines at the same
	// path. The collection and media folders must be reachable through them.
	Mounts []string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone aborts a running command when its context is done.
	// The instance is unusable afterwards.
	CloseOnContextDone bool

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool
}

// WazeroEngine hosts an engine compiled to a core wasm module. It implements
// ankibridge.Engine; every Open instantiates a fresh module instance.
type WazeroEngine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	config   Config

	mu     sync.Mutex
	closed bool
}

var _ ankibridge.Engine = (*WazeroEngine)(nil)

// NewWazeroEngine compiles wasmBytes and checks that it implements the
// bridge ABI.
func NewWazeroEngine(ctx context.Context, wasmBytes []byte, cfg Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	if cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.Load("open compilation cache", err)
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	e := &WazeroEngine{runtime: runtime, config: cfg}
	if err := e.load(ctx, wasmBytes); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *WazeroEngine) load(ctx context.Context, wasmBytes []byte) error {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return errors.Load("compile engine module", err)
	}
	if err := validateExports(compiled); err != nil {
		return err
	}
	e.compiled = compiled

	if importsWASI(compiled) {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil {
			return errors.Load("instantiate WASI", err)
		}
	}

	_, err = e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostProgress), progressSignature.params, progressSignature.results).
		Export(HostProgress).
		Instantiate(ctx)
	if err != nil {
		return errors.Load("instantiate host module", err)
	}
	return nil
}

// validateExports checks the ABI exports and their signatures.
func validateExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		return errors.MissingExport(ExportMemory)
	}
	funcs := compiled.ExportedFunctions()
	for _, name := range []string{ExportAlloc, ExportOpen, ExportCommand} {
		def, ok := funcs[name]
		if !ok {
			return errors.MissingExport(name)
		}
		if !requiredExports[name].matches(def) {
			return badSignature(name, def)
		}
	}
	if def, ok := funcs[ExportClose]; ok && !closeSignature.matches(def) {
		return badSignature(ExportClose, def)
	}
	return nil
}

func badSignature(name string, def api.FunctionDefinition) *errors.Error {
	return errors.New(errors.PhaseLoad, errors.KindMissingExport).
		Message(name).
		Detail("export %q has signature %v -> %v", name, def.ParamTypes(), def.ResultTypes()).
		Build()
}

// Open instantiates the engine module and opens a backend in it.
func (e *WazeroEngine) Open(ctx context.Context, init []byte) (ankibridge.Handle, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.Closed("wazero engine")
	}

	inst := &Instance{
		engine:   e,
		stackBuf: make([]uint64, 4),
		output:   newGuestWriter(),
	}

	modConfig := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions(initializeFunc).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithStdout(inst.output).
		WithStderr(inst.output)
	if len(e.config.Mounts) > 0 {
		fsConfig := wazero.NewFSConfig()
		for _, dir := range e.config.Mounts {
			fsConfig = fsConfig.WithDirMount(dir, dir)
		}
		modConfig = modConfig.WithFSConfig(fsConfig)
	}

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	inst.module = mod
	inst.memory = mod.Memory()
	inst.allocFn = mod.ExportedFunction(ExportAlloc)
	inst.commandFn = mod.ExportedFunction(ExportCommand)
	inst.closeFn = mod.ExportedFunction(ExportClose)

	handle, err := inst.open(ctx, init)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	inst.handle = handle

	Logger().Debug("engine instance opened", zap.Uint32("handle", handle))
	return inst, nil
}

// Close releases the runtime and every instance created from it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	if err := e.runtime.Close(ctx); err != nil {
		return fmt.Errorf("close wazero runtime: %w", err)
	}
	return nil
}
