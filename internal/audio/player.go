package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/daoreader/internal/logger"
)

// ErrStopped 表示播放在结束前被主动停止。
var ErrStopped = errors.New("playback stopped")

// Player 使用 malgo (miniaudio) 管理音频输出。
// 一个 Player 可先后创建多个 Stream，每个 Stream 独占一个播放设备。
type Player struct {
	ctx     *malgo.AllocatedContext
	mu      sync.Mutex
	closed  bool
	streams map[*Stream]struct{}
}

// NewPlayer 初始化播放上下文。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx, streams: make(map[*Stream]struct{})}, nil
}

// Stream 是一次正在进行的播放，可暂停、恢复和停止。
type Stream struct {
	player *Player
	device *malgo.Device

	mu     sync.Mutex
	paused bool

	pcm []byte
	pos atomic.Int64

	finished   chan struct{}
	finishOnce sync.Once
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	err        error
}

// Start 打开默认扬声器开始播放 buf，立即返回。
func (p *Player) Start(buf *Buffer) (*Stream, error) {
	if buf == nil || len(buf.Samples) == 0 {
		return nil, fmt.Errorf("[audio] 没有可播放的样本")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("[audio] 播放器已关闭")
	}

	channels := buf.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &Stream{
		player:   p,
		pcm:      Float32ToBytes(buf.Samples),
		finished: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(buf.SampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	frameBytes := channels * 2
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			s.fill(output[:int(frameCount)*frameBytes])
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放设备失败: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("[audio] 启动播放设备失败: %w", err)
	}
	s.device = device
	p.streams[s] = struct{}{}

	go s.wait()
	logger.Debugf("[audio] 开始播放 %d 个样本 (%d Hz)", len(buf.Samples), buf.SampleRate)
	return s, nil
}

// fill 在音频线程中调用，拷贝下一段 PCM，不足部分填静音。
func (s *Stream) fill(out []byte) {
	pos := int(s.pos.Load())
	n := 0
	if pos < len(s.pcm) {
		n = copy(out, s.pcm[pos:])
		s.pos.Store(int64(pos + n))
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if n == 0 {
		s.finishOnce.Do(func() { close(s.finished) })
	}
}

// wait 在设备回调之外释放设备；miniaudio 不允许在回调内 Uninit。
func (s *Stream) wait() {
	select {
	case <-s.finished:
	case <-s.stopCh:
		s.err = ErrStopped
	}
	s.mu.Lock()
	_ = s.device.Stop()
	s.device.Uninit()
	s.player.mu.Lock()
	delete(s.player.streams, s)
	s.player.mu.Unlock()
	close(s.done)
	s.mu.Unlock()
}

// Stop 停止播放，可重复调用。
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Pause 暂停设备输出，保留当前位置。
func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.isDone() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("[audio] 暂停失败: %w", err)
	}
	s.paused = true
	return nil
}

// Resume 从暂停位置继续播放。
func (s *Stream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused || s.isDone() {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("[audio] 恢复播放失败: %w", err)
	}
	s.paused = false
	return nil
}

// Paused 报告流是否处于暂停状态。
func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Done 在播放结束（完成或被停止）后关闭。
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err 在 Done 关闭后返回结束原因；正常播完为 nil。
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Stream) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close 停止所有仍在播放的 Stream，等它们释放设备后再释放播放上下文。
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	live := make([]*Stream, 0, len(p.streams))
	for s := range p.streams {
		live = append(live, s)
	}
	p.mu.Unlock()

	for _, s := range live {
		s.Stop()
		<-s.Done()
	}
	if len(live) > 0 {
		logger.Debugf("[audio] 已停止 %d 个播放流", len(live))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
