package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/backend"
	"github.com/wippyai/anki-bridge/config"
	"github.com/wippyai/anki-bridge/engine"
	"github.com/wippyai/anki-bridge/enginetest"
	"github.com/wippyai/anki-bridge/remote"
)

// rootOptions holds global flags and the state PersistentPreRunE derives
// from them.
type rootOptions struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ankibridge",
		Short:         "Run collection commands against an embedded engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := cfg.Log.NewLogger(opts.verbose)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			backend.SetLogger(logger)
			engine.SetLogger(logger)
			remote.SetLogger(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath(), "config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRenderCommand(opts))
	cmd.AddCommand(newStripAVCommand(opts))
	cmd.AddCommand(newExtractAVCommand(opts))
	cmd.AddCommand(newMinutesWestCommand(opts))
	cmd.AddCommand(newExpandClozesCommand(opts))
	cmd.AddCommand(newTemplateReqsCommand(opts))
	cmd.AddCommand(newTimingCommand(opts))
	cmd.AddCommand(newAddMediaCommand(opts))
	cmd.AddCommand(newSyncMediaCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// openEngine builds the engine selected by the config. The returned func
// releases it.
func (o *rootOptions) openEngine(ctx context.Context) (ankibridge.Engine, func(), error) {
	switch o.cfg.Engine.Kind {
	case config.EngineWasm:
		data, err := os.ReadFile(o.cfg.Engine.Module)
		if err != nil {
			return nil, nil, fmt.Errorf("read engine module: %w", err)
		}
		eng, err := engine.NewWazeroEngine(ctx, data, engine.Config{
			CacheDir:         o.cfg.Engine.CacheDir,
			MemoryLimitPages: o.cfg.Engine.MemoryLimitPages,
			Mounts:           o.mounts(),
		})
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {
			if err := eng.Close(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("engine close failed", zap.Error(err))
			}
		}, nil
	case config.EngineRemote:
		eng, err := remote.Dial(ctx, o.cfg.Engine.URL)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {}, nil
	default:
		return enginetest.New(enginetest.WithLogger(o.logger)), func() {}, nil
	}
}

// mounts lists the directories holding the collection and its media.
func (o *rootOptions) mounts() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range []string{o.cfg.Collection.Path, o.cfg.Collection.MediaDB} {
		if p == "" {
			continue
		}
		if dir := filepath.Dir(p); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if dir := o.cfg.Collection.MediaFolder; dir != "" && !seen[dir] {
		dirs = append(dirs, dir)
	}
	return dirs
}

func (o *rootOptions) paths() backend.Paths {
	return backend.Paths{
		CollectionPath:  o.cfg.Collection.Path,
		MediaFolderPath: o.cfg.Collection.MediaFolder,
		MediaDBPath:     o.cfg.Collection.MediaDB,
	}
}

// withBackend opens a backend on the configured engine, runs fn and closes
// everything again.
func (o *rootOptions) withBackend(ctx context.Context, fn func(*backend.Backend) error, opts ...backend.Option) error {
	eng, release, err := o.openEngine(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts = append([]backend.Option{backend.WithLogger(o.logger)}, opts...)
	b, err := backend.Open(ctx, eng, o.paths(), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("backend close failed", zap.Error(err))
		}
	}()
	return fn(b)
}
