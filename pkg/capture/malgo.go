package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPeriodMs is the device callback period.
	DefaultPeriodMs = 20
	// defaultQueueMs bounds how much captured audio may wait for the reader.
	defaultQueueMs = 5000
)

// MalgoConfig configures microphone capture.
type MalgoConfig struct {
	// SampleRate of the capture device, 16000 by default.
	SampleRate int
	// PeriodMs is the callback period in milliseconds.
	PeriodMs int
	// QueueMs is how much audio can be held while the reader is busy running
	// inference. Older audio is dropped beyond this.
	QueueMs int
	Logger  logrus.FieldLogger
}

// MalgoSource captures mono S16 audio from the default input device.
//
// The device callback runs on a miniaudio thread and only copies samples into
// a bounded queue; Read drains that queue on the session worker.
type MalgoSource struct {
	cfg MalgoConfig
	log logrus.FieldLogger

	audioContext  *malgo.AllocatedContext
	captureDevice *malgo.Device

	mu      sync.Mutex
	pending []int16
	notify  chan struct{}
	dropped int
	closed  bool

	closeOnce sync.Once
}

var _ Source = (*MalgoSource)(nil)

// NewMalgoSource creates a microphone source. The device is opened by Start.
func NewMalgoSource(cfg MalgoConfig) *MalgoSource {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.PeriodMs <= 0 {
		cfg.PeriodMs = DefaultPeriodMs
	}
	if cfg.QueueMs <= 0 {
		cfg.QueueMs = defaultQueueMs
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &MalgoSource{
		cfg:    cfg,
		log:    cfg.Logger.WithField("component", "malgo-capture"),
		notify: make(chan struct{}, 1),
	}
}

// Start initializes the malgo context and starts the capture device.
func (m *MalgoSource) Start() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize context: %v", ErrUnavailable, err)
	}
	m.audioContext = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.cfg.PeriodMs)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	m.captureDevice, err = malgo.InitDevice(m.audioContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			m.push(audio.BytesToInt16(inputSamples))
		},
	})
	if err != nil {
		m.Close()
		return fmt.Errorf("%w: failed to initialize capture device: %v", ErrUnavailable, err)
	}

	if err := m.captureDevice.Start(); err != nil {
		m.Close()
		return fmt.Errorf("%w: failed to start capture device: %v", ErrUnavailable, err)
	}

	m.log.Infof("[Capture] Started microphone at %dHz, period=%dms", m.cfg.SampleRate, m.cfg.PeriodMs)
	return nil
}

func (m *MalgoSource) push(samples []int16) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, samples...)
	limit := m.cfg.SampleRate * m.cfg.QueueMs / 1000
	if over := len(m.pending) - limit; over > 0 {
		m.pending = m.pending[over:]
		m.dropped += over
	}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Read implements Source.
func (m *MalgoSource) Read(ctx context.Context, dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, ErrClosed
		}
		if m.captureDevice == nil {
			m.mu.Unlock()
			return 0, Transient(fmt.Errorf("capture device not started"))
		}
		if len(m.pending) > 0 {
			n := copy(dst, m.pending)
			m.pending = m.pending[n:]
			dropped := m.dropped
			m.dropped = 0
			m.mu.Unlock()

			if dropped > 0 {
				m.log.Warnf("[Capture] Reader fell behind, dropped %d samples", dropped)
			}
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-m.notify:
		}
	}
}

// SampleRate implements Source.
func (m *MalgoSource) SampleRate() int {
	return m.cfg.SampleRate
}

// Close stops the device and releases the malgo context.
func (m *MalgoSource) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.pending = nil
		m.mu.Unlock()

		if m.captureDevice != nil {
			m.captureDevice.Stop()
			m.captureDevice.Uninit()
		}
		if m.audioContext != nil {
			_ = m.audioContext.Uninit()
			m.audioContext.Free()
		}
		m.log.Info("[Capture] Microphone released")
	})
	return nil
}
