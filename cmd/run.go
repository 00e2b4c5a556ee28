package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robmorgan/clicktrack/config"
	"github.com/robmorgan/clicktrack/feed"
	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/metronome"
	"github.com/robmorgan/clicktrack/osctrigger"
	"github.com/robmorgan/clicktrack/output"
	"github.com/robmorgan/clicktrack/playlist"
	"github.com/spf13/cobra"
)

var (
	playlistFile string
	stopped      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the metronome until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&playlistFile, "playlist-file", "p", "", "load the playlist from a file and reload it on change")
	runCmd.Flags().BoolVar(&stopped, "stopped", false, "wait for a start command instead of playing immediately")
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := logger.Configure(cfg.Log); err != nil {
		return err
	}
	log := logger.GetProjectLogger()

	log.Info("Initializing metronome...")
	engine, err := metronome.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if playlistFile != "" {
		entries, err := playlist.ReadFile(playlistFile)
		if err != nil {
			return err
		}
		if err := engine.SetPlaylist(entries); err != nil {
			return err
		}
	}

	wg := sync.WaitGroup{}

	sink, err := newSink(cfg)
	if err != nil {
		return err
	}
	wg.Add(1)
	go output.RenderWorker(ctx, engine.Subscribe(), sink, &wg)

	if cfg.OSCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := osctrigger.ListenAndServe(ctx, cfg.OSCAddr, engine); err != nil {
				log.WithError(err).Error("OSC server stopped")
			}
		}()
	}

	if cfg.FeedAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.NewServer(engine).ListenAndServe(ctx, cfg.FeedAddr); err != nil {
				log.WithError(err).Error("Tick feed stopped")
			}
		}()
	}

	if playlistFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := playlist.Watch(ctx, playlistFile, engine.SetPlaylist); err != nil {
				log.WithError(err).Error("Playlist watcher stopped")
			}
		}()
	}

	if !stopped {
		if err := engine.Start(); err != nil {
			return err
		}
	}
	log.WithField("bpm", engine.State().SpeedBPM).Info("Metronome running")

	// handle CTRL+C interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	log.Info("Shutting down clicktrack")
	cancel()
	wg.Wait()
	return nil
}

// newSink logs every tick, and plays samples when any are configured.
func newSink(cfg config.Config) (output.Sink, error) {
	sinks := output.MultiSink{output.NewLogSink()}
	if len(cfg.Sounds) > 0 {
		beep, err := output.NewBeepSink(cfg.Sounds)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, beep)
	}
	return sinks, nil
}
