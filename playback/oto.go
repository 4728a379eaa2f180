package playback

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"aura.town/audio"
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// sharedContext initializes the process-wide oto context. oto allows
// only one context per process, so sessions share it and keep their own
// clock epochs.
func sharedContext(rate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// OtoDevice plays 16-bit mono PCM through the default output device.
// Its clock starts at zero when the device is opened.
type OtoDevice struct {
	ctx   *oto.Context
	epoch time.Time
}

func OpenOtoDevice(rate int) (*OtoDevice, error) {
	ctx, err := sharedContext(rate)
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	if err := ctx.Resume(); err != nil {
		return nil, fmt.Errorf("resume audio output: %w", err)
	}
	return &OtoDevice{ctx: ctx, epoch: time.Now()}, nil
}

func (d *OtoDevice) Now() float64 {
	return time.Since(d.epoch).Seconds()
}

func (d *OtoDevice) Start(chunk *audio.Chunk, at float64, done func()) (Source, error) {
	player := d.ctx.NewPlayer(bytes.NewReader(audio.FloatToPCM16(chunk.Samples)))

	src := &otoSource{player: player}

	delay := at - d.Now()
	if delay < 0 {
		delay = 0
	}
	src.startTimer = time.AfterFunc(secs(delay), func() {
		src.mu.Lock()
		stopped := src.stopped
		src.mu.Unlock()
		if !stopped {
			player.Play()
		}
	})
	src.doneTimer = time.AfterFunc(secs(delay+chunk.Seconds()), func() {
		src.mu.Lock()
		stopped := src.stopped
		src.stopped = true
		src.mu.Unlock()
		if !stopped {
			player.Close()
			done()
		}
	})
	return src, nil
}

func (d *OtoDevice) Close() error {
	return d.ctx.Suspend()
}

type otoSource struct {
	mu         sync.Mutex
	player     *oto.Player
	startTimer *time.Timer
	doneTimer  *time.Timer
	stopped    bool
}

func (s *otoSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.startTimer.Stop()
	s.doneTimer.Stop()
	s.player.Close()
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
