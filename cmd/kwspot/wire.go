package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/capture"
	"github.com/realtime-ai/keyword-spotter/pkg/config"
	"github.com/realtime-ai/keyword-spotter/pkg/features"
	"github.com/realtime-ai/keyword-spotter/pkg/gate"
	"github.com/realtime-ai/keyword-spotter/pkg/inference"
	"github.com/realtime-ai/keyword-spotter/pkg/logstore"
	"github.com/realtime-ai/keyword-spotter/pkg/metrics"
	"github.com/realtime-ai/keyword-spotter/pkg/pipeline"
	"github.com/realtime-ai/keyword-spotter/pkg/report"
	"github.com/realtime-ai/keyword-spotter/pkg/session"
	"github.com/realtime-ai/keyword-spotter/pkg/trace"
	"github.com/realtime-ai/keyword-spotter/pkg/vad"
	"github.com/sirupsen/logrus"
)

// spotter holds everything one kwspot invocation owns.
type spotter struct {
	session  *session.Session
	bus      pipeline.Bus
	ws       *report.WebSocketReporter
	provider *metrics.Provider
	log      *logrus.Logger
}

// build loads the models and assembles a session around src. On error every
// collaborator created so far is released.
func build(ctx context.Context, cfg *config.Config, src capture.Source, log *logrus.Logger) (rt *spotter, err error) {
	sc, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()

	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
			src.Close()
		}
	}()

	if err := trace.Initialize(ctx, cfg.Trace, log); err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() { trace.Shutdown(context.Background()) })

	g, err := buildGate(cfg, sc, log)
	if err != nil {
		return nil, err
	}
	if d, ok := g.(interface{ Destroy() error }); ok {
		cleanup = append(cleanup, func() { d.Destroy() })
	}

	extractor, err := features.NewMFCC(features.MFCCConfig{
		SampleRate: sc.SampleRate,
		NumMFCC:    cfg.Model.NumMFCC,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() { classifier.Close() })

	store, err := logstore.OpenFileStore(cfg.Paths.Log)
	if err != nil {
		return nil, err
	}

	var dumper *audio.Dumper
	if cfg.Paths.Dump != "" {
		if dumper, err = audio.NewDumper(cfg.Paths.Dump, "window", sc.SampleRate, audio.Channels); err != nil {
			return nil, err
		}
	}

	rt = &spotter{bus: pipeline.NewEventBus(), log: log}
	reporters := report.Multi{report.NewLogReporter(log), report.NewBusReporter(rt.bus, id)}

	met := metrics.Nop()
	if cfg.Server.Addr != "" {
		rt.provider, err = metrics.InitProvider(ctx, metrics.ProviderConfig{
			ServiceName:    cfg.Trace.ServiceName,
			ServiceVersion: cfg.Trace.ServiceVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		if met, err = metrics.NewMetrics(rt.provider.MeterProvider()); err != nil {
			return nil, err
		}
		wsCfg := report.DefaultWebSocketConfig()
		wsCfg.SessionID = id
		wsCfg.Logger = log
		rt.ws = report.NewWebSocketReporter(wsCfg)
		reporters = append(reporters, rt.ws)
	}

	rt.session, err = session.New(sc, session.Options{
		ID:         id,
		Source:     src,
		Gate:       g,
		Extractor:  extractor,
		Classifier: classifier,
		Reporter:   reporters,
		Store:      store,
		Bus:        rt.bus,
		Dumper:     dumper,
		Metrics:    met,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func buildGate(cfg *config.Config, sc session.Config, log logrus.FieldLogger) (gate.Gate, error) {
	opts := gate.Options{
		ThresholdDB:     sc.DBThreshold,
		OffsetDB:        &cfg.Gate.OffsetDB,
		SampleRate:      sc.SampleRate,
		SpeechThreshold: cfg.Gate.SpeechThreshold,
		Logger:          log,
	}
	if sc.Strategy == gate.StrategyVoiceActivity {
		model, err := vad.NewONNXModel(vad.ModelConfig{
			ModelPath:   cfg.Gate.VADModel,
			LibraryPath: cfg.Model.LibraryPath,
		})
		if err != nil {
			return nil, fmt.Errorf("load voice activity model: %w", err)
		}
		opts.Model = model
		g, err := gate.New(sc.Strategy, opts)
		if err != nil {
			model.Destroy()
			return nil, err
		}
		return g, nil
	}
	return gate.New(sc.Strategy, opts)
}

func buildClassifier(cfg *config.Config) (*inference.Adapter, error) {
	labels, err := inference.LoadLabels(cfg.Model.Labels)
	if err != nil {
		return nil, err
	}
	model, err := inference.NewONNXModel(inference.ONNXConfig{
		ModelPath:   cfg.Model.Path,
		LibraryPath: cfg.Model.LibraryPath,
		Threads:     cfg.Model.Threads,
	})
	if err != nil {
		return nil, err
	}
	adapter, err := inference.NewAdapter(model, labels)
	if err != nil {
		model.Destroy()
		return nil, err
	}
	return adapter, nil
}

// run starts the bus, the HTTP listener and the session, and blocks until
// the session ends or ctx is cancelled.
func (rt *spotter) run(ctx context.Context, addr string) error {
	if err := rt.bus.Start(ctx); err != nil {
		return err
	}
	defer rt.bus.Stop()

	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	dropped := make(chan pipeline.Event, 64)
	rt.bus.Subscribe(pipeline.EventWindowDropped, dropped)
	defer rt.bus.Unsubscribe(pipeline.EventWindowDropped, dropped)
	go func() {
		for {
			select {
			case <-background.Done():
				return
			case evt := <-dropped:
				rt.log.WithField("session_id", evt.SessionID).Debugf("[kwspot] %v", evt.Payload)
			}
		}
	}()

	if rt.provider != nil {
		go func() {
			err := metrics.Serve(background, addr, map[string]http.Handler{
				"/metrics": rt.provider.Handler(),
				"/ws":      rt.ws,
			}, rt.log)
			if err != nil {
				rt.log.WithError(err).Error("[kwspot] HTTP listener failed")
			}
		}()
	}

	if err := rt.session.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		rt.log.Info("[kwspot] Shutting down")
		err := rt.session.Stop()
		rt.shutdown()
		return err
	case <-rt.session.Done():
		err := rt.session.Err()
		rt.shutdown()
		return err
	}
}

func (rt *spotter) shutdown() {
	ctx := context.Background()
	if rt.ws != nil {
		rt.ws.Close()
	}
	if rt.provider != nil {
		if err := rt.provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.log.WithError(err).Warn("[kwspot] Failed to flush metrics")
		}
	}
	if err := trace.Shutdown(ctx); err != nil {
		rt.log.WithError(err).Warn("[kwspot] Failed to flush traces")
	}
}
