package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/realtime-ai/keyword-spotter/pkg/capture"
	"github.com/realtime-ai/keyword-spotter/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type loader func() (*config.Config, *logrus.Logger, error)

// sessionFlags declares the flags shared by listen and replay. They are bound
// to v only when the command runs, since both commands map the same keys.
func sessionFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("gate", "energy", "gate strategy: energy or voice-activity")
	f.Float64("threshold-db", 50, "energy gate threshold in dB")
	f.Int("top-k", 3, "number of labels reported per window")
	f.Float32("floor", 0.002, "confidence the best label must exceed")
	f.Int("hop", 8000, "samples between window starts")
	f.String("model", "", "keyword classifier ONNX model")
	f.String("labels", "", "label file, one label per line")
	f.String("addr", "", "serve /metrics and /ws on this address")
	f.String("dump", "", "write gated windows as WAV files to this directory")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, name := range flagKeys {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

var flagKeys = map[string]string{
	"gate.strategy":            "gate",
	"gate.threshold_db":        "threshold-db",
	"ranking.top_k":            "top-k",
	"ranking.confidence_floor": "floor",
	"audio.hop_size":           "hop",
	"model.path":               "model",
	"model.labels":             "labels",
	"server.addr":              "addr",
	"paths.dump":               "dump",
}

func newListenCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Spot keywords from the default microphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			src := capture.NewMalgoSource(capture.MalgoConfig{
				SampleRate: cfg.Audio.SampleRate,
				PeriodMs:   cfg.Audio.PeriodMs,
				QueueMs:    cfg.Audio.QueueMs,
				Logger:     log,
			})
			return spot(cmd.Context(), cfg, src, log)
		},
	}
	sessionFlags(cmd, v)
	return cmd
}

func newReplayCmd(v *viper.Viper, load loader) *cobra.Command {
	var realtime bool
	cmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Spot keywords in a 16 kHz mono 16-bit WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			return spot(cmd.Context(), cfg, capture.NewWAVSource(args[0], realtime), log)
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace reads at the file's sample rate")
	sessionFlags(cmd, v)
	return cmd
}

func spot(parent context.Context, cfg *config.Config, src capture.Source, log *logrus.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sp, err := build(ctx, cfg, src, log)
	if err != nil {
		return err
	}
	return sp.run(ctx, cfg.Server.Addr)
}
