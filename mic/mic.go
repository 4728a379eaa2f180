package mic

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"

	"aura.town/audio"
)

// ErrPermission means the OS refused access to the capture device.
var ErrPermission = errors.New("microphone access denied")

// Capture records mono audio from the default microphone and delivers
// fixed-size float32 frames. The frames channel is closed on Close.
type Capture struct {
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	frames    chan []float32
	log       *log.Logger
	closeOnce sync.Once

	mu      sync.Mutex
	pending []float32
	size    int
}

// Open starts capturing at rate with frameSize samples per frame.
func Open(rate, frameSize int, logger *log.Logger) (*Capture, error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", classify(err))
	}

	c := &Capture{
		malgoCtx: malgoCtx,
		frames:   make(chan []float32, 8),
		log:      logger,
		size:     frameSize,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(rate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.ingest(audio.PCM16ToFloat(input))
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		return nil, fmt.Errorf("failed to init microphone: %w", classify(err))
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return nil, fmt.Errorf("failed to start microphone: %w", classify(err))
	}

	return c, nil
}

// Frames yields captured frames of exactly the configured size.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// ingest accumulates samples and emits full frames without blocking
// the capture callback.
func (c *Capture) ingest(samples []float32) {
	c.mu.Lock()
	c.pending = append(c.pending, samples...)
	var full [][]float32
	for len(c.pending) >= c.size {
		frame := make([]float32, c.size)
		copy(frame, c.pending[:c.size])
		c.pending = c.pending[c.size:]
		full = append(full, frame)
	}
	c.mu.Unlock()

	for _, frame := range full {
		select {
		case c.frames <- frame:
		default:
			c.log.Warn("dropping capture frame, consumer too slow")
		}
	}
}

func (c *Capture) Close() {
	c.closeOnce.Do(func() {
		if c.device != nil {
			c.device.Stop()
			c.device.Uninit()
		}
		if c.malgoCtx != nil {
			c.malgoCtx.Uninit()
		}
		close(c.frames)
	})
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
