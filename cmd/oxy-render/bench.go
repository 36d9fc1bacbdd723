package main

import (
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/spf13/cobra"
)

type benchFlags struct {
	frames      uint64
	grid        int
	gpuDelay    time.Duration
	resizeEvery uint64
}

func newBenchCommand(root *rootFlags) *cobra.Command {
	flags := &benchFlags{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the frame loop on the headless device and print frame statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := logging.Logger()

			backend := headless_backend.NewHeadlessBackend(headless_backend.WithExecutionDelay(flags.gpuDelay))
			dev := gpu.NewDevice(backend, gpu.WithLogger(logger))
			defer func() {
				if rerr := dev.Release(); err == nil {
					err = rerr
				}
			}()

			extent := common.Extent2D{Width: uint32(cfg.Window.Width), Height: uint32(cfg.Window.Height)}
			r, err := renderer.NewRenderer(dev, extent, append(cfg.RendererOptions(), renderer.WithLogger(logger))...)
			if err != nil {
				return err
			}

			var options []engine.EngineBuilderOption
			options = append(options, engine.WithMaxFrames(flags.frames), engine.WithLogger(logger))
			if flags.resizeEvery > 0 {
				options = append(options, engine.WithTickRate(1000), engine.WithTickCallback(resizer(r, extent, flags.resizeEvery)))
			}

			start := time.Now()
			if err := runDemo(cmd.Context(), r, extent, flags.grid, "", options...); err != nil {
				return err
			}
			elapsed := time.Since(start)

			stats := r.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "frames          %d\n", stats.Frames)
			fmt.Fprintf(out, "skipped         %d\n", stats.SkippedFrames)
			fmt.Fprintf(out, "resizes         %d\n", stats.Resizes)
			fmt.Fprintf(out, "fence waits     %d\n", stats.FenceWaits)
			fmt.Fprintf(out, "submissions     %d\n", len(backend.Submissions()))
			fmt.Fprintf(out, "presents        %d\n", len(backend.Presents()))
			fmt.Fprintf(out, "elapsed         %s\n", elapsed.Round(time.Microsecond))
			if elapsed > 0 {
				fmt.Fprintf(out, "frames/s        %.1f\n", float64(stats.Frames)/elapsed.Seconds())
			}
			return nil
		},
	}
	cmd.Flags().Uint64VarP(&flags.frames, "frames", "n", 300, "number of frames to render")
	cmd.Flags().IntVar(&flags.grid, "grid", 4, "cubes per side of the demo grid")
	cmd.Flags().DurationVar(&flags.gpuDelay, "gpu-delay", 0, "simulated GPU time per submission")
	cmd.Flags().Uint64Var(&flags.resizeEvery, "resize-every", 0, "toggle the surface size every N ticks, 0 to disable")
	return cmd
}

// resizer returns a tick callback that alternates the surface between its size and half of it.
func resizer(r renderer.Renderer, extent common.Extent2D, every uint64) func(float32) {
	var ticks uint64
	half := false
	return func(float32) {
		ticks++
		if ticks%every != 0 {
			return
		}
		half = !half
		w, h := int(extent.Width), int(extent.Height)
		if half {
			w, h = max(w/2, 1), max(h/2, 1)
		}
		r.Resize(w, h)
	}
}
