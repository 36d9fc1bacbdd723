package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/config"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/wgpu_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/window"
	"github.com/spf13/cobra"
)

type runFlags struct {
	grid      int
	panorama  string
	profile   bool
	frameCap  float64
	software  bool
	maxFrames uint64
}

func newRunCommand(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render the demo scene in a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWindowed(ctx, cfg, flags)
		},
	}
	cmd.Flags().IntVar(&flags.grid, "grid", 4, "cubes per side of the demo grid")
	cmd.Flags().StringVar(&flags.panorama, "panorama", "", "equirectangular sky image (png, jpeg, bmp or webp)")
	cmd.Flags().BoolVar(&flags.profile, "profile", false, "log frame statistics every second")
	cmd.Flags().Float64Var(&flags.frameCap, "fps", 0, "render frame rate cap, 0 for uncapped")
	cmd.Flags().BoolVar(&flags.software, "software", false, "force the fallback (software) adapter")
	cmd.Flags().Uint64Var(&flags.maxFrames, "frames", 0, "exit after this many frames, 0 to run until closed")
	return cmd
}

func runWindowed(ctx context.Context, cfg config.Config, flags *runFlags) (err error) {
	logger := logging.Logger()

	win, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
	)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, win.Close()) }()

	presentMode := wgpu_backend.PresentModeVSync
	if cfg.PresentMode == config.PresentModeUncapped {
		presentMode = wgpu_backend.PresentModeUncapped
	}
	backend, err := wgpu_backend.NewWgpuBackend(win.SurfaceDescriptor(),
		wgpu_backend.WithPresentMode(presentMode),
		wgpu_backend.WithForceSoftwareRenderer(flags.software),
	)
	if err != nil {
		return fmt.Errorf("create wgpu backend: %w", err)
	}
	dev := gpu.NewDevice(backend, gpu.WithLogger(logger))
	defer func() { err = errors.Join(err, dev.Release()) }()

	extent := win.Extent()
	r, err := renderer.NewRenderer(dev, extent, append(cfg.RendererOptions(), renderer.WithLogger(logger))...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, r.Close()) }()

	return runDemo(ctx, r, extent, flags.grid, flags.panorama,
		engine.WithWindow(win),
		engine.WithProfiling(flags.profile),
		engine.WithRenderFrameLimit(flags.frameCap),
		engine.WithMaxFrames(flags.maxFrames),
		engine.WithLogger(logger),
	)
}

// runDemo drives r with the demo scene until the engine stops. The renderer is closed before the
// scene's meshes and textures are released.
func runDemo(ctx context.Context, r renderer.Renderer, extent common.Extent2D, grid int, panorama string, options ...engine.EngineBuilderOption) (err error) {
	loader := assets.NewLoader(assets.WithLogger(logging.Logger()))
	defer loader.Close()

	demo := newDemoScene(loader, grid, panorama, extent.Aspect())
	defer func() {
		err = errors.Join(err, r.Close())
		demo.Release()
	}()

	e, err := engine.NewEngine(r, demo, append(options,
		engine.WithTickCallback(demo.Tick),
		engine.WithResizeCallback(demo.Resize),
	)...)
	if err != nil {
		return err
	}
	return e.Run(ctx)
}
