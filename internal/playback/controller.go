// Package playback 实现朗读控制器：在云端与本地后端之间选择、管理唯一的朗读会话，
// 并向界面报告四值状态与失败通知。
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

// ErrSuperseded 表示等待中的会话被新的朗读请求取代。
var ErrSuperseded = errors.New("[playback] superseded by a newer request")

// Remote 是云端合成后端，*remote.Backend 满足该接口。
type Remote interface {
	Configured() bool
	Synthesize(ctx context.Context, req speech.Request) speech.Result
}

// Local 是本地引擎后端，*local.Backend 满足该接口。
type Local interface {
	Start(ctx context.Context, req speech.Request) (*speech.Handle, error)
}

// Output 播放云端合成的音频。
type Output interface {
	Start(buf *audio.Buffer) (*speech.Handle, error)
}

// PlayerOutput 把 *audio.Player 适配为 Output，主动停止视为取消。
func PlayerOutput(p *audio.Player) Output { return playerOutput{p} }

type playerOutput struct{ p *audio.Player }

func (o playerOutput) Start(buf *audio.Buffer) (*speech.Handle, error) {
	s, err := o.p.Start(buf)
	if err != nil {
		return nil, err
	}
	return speech.Watch(s, func(err error) error {
		if errors.Is(err, audio.ErrStopped) {
			return speech.ErrCanceled
		}
		return err
	}), nil
}

// NoticeKind 是面向用户的失败类别。
type NoticeKind int

const (
	// NoticeEngineUnsupported 本地引擎不可用。
	NoticeEngineUnsupported NoticeKind = iota
	// NoticePlaybackFailed 合成或播放失败。
	NoticePlaybackFailed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeEngineUnsupported:
		return "EngineUnsupported"
	case NoticePlaybackFailed:
		return "PlaybackFailed"
	default:
		return "Unknown"
	}
}

// Notice 是一次面向用户的失败通知。预期的取消不会产生通知。
type Notice struct {
	Kind NoticeKind
	Err  error
}

// Options 控制器配置。Remote 或 Player 为 nil 时只使用本地引擎。
type Options struct {
	Remote   Remote
	Local    Local
	Player   Output
	Locale   string
	Rate     float64
	// OnChange 在控制器锁内调用，只能读取 State，不能调用 Play 或 Stop。
	OnChange func(from, to State)
	OnNotice func(Notice)
}

// Session 描述当前会话。
type Session struct {
	ID      string
	Gen     uint64
	Kind    speech.Kind
	Text    string
	Started time.Time
}

type session struct {
	info   Session
	req    speech.Request
	ctx    context.Context
	cancel context.CancelFunc
	handle *speech.Handle
	reason error // 会话被结束的原因，由 c.mu 保护
}

// Controller 持有唯一的朗读会话。
// 所有会话状态由 mu 保护；后端回调以会话代数校验，过期回调直接丢弃。
type Controller struct {
	remote   Remote
	local    Local
	out      Output
	locale   string
	rate     float64
	onNotice func(Notice)

	sm *StateMachine

	mu      sync.Mutex
	gen     uint64
	current *session
}

// New 创建控制器，后端组合在此确定，之后不再改变。
func New(opts Options) *Controller {
	c := &Controller{
		local:    opts.Local,
		locale:   opts.Locale,
		rate:     opts.Rate,
		onNotice: opts.OnNotice,
		sm:       NewStateMachine(),
	}
	if opts.Remote != nil && opts.Remote.Configured() && opts.Player != nil {
		c.remote = opts.Remote
		c.out = opts.Player
		logger.Infof("[playback] 使用云端合成，本地引擎作为回退")
	} else {
		logger.Infof("[playback] 未配置云端合成，仅使用本地引擎")
	}
	if opts.OnChange != nil {
		c.sm.SetOnChange(opts.OnChange)
	}
	return c
}

// State 返回当前状态。
func (c *Controller) State() State { return c.sm.Current() }

// Session 返回当前会话，没有会话时 ok 为 false。
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Session{}, false
	}
	return c.current.info, true
}

// Play 朗读 text，阻塞到会话开始播放或失败为止。
//
// 正在播放时调用等同于 Stop（播放键的开关语义），返回 nil。
// 正在等待云端合成时，旧会话被取代，被取代的 Play 返回 ErrSuperseded。
// ctx 只约束等待阶段，播放开始后由 Stop 结束。
func (c *Controller) Play(ctx context.Context, text string) error {
	req, err := speech.NewRequest(text, c.locale, c.rate)
	if err != nil {
		return err
	}

	c.mu.Lock()
	switch c.sm.Current() {
	case StatePlaying:
		logger.Debugf("[playback] 播放中再次按下，停止")
		c.stopLocked(speech.ErrCanceled)
		c.mu.Unlock()
		return nil
	case StateLoadingAudio:
		logger.Debugf("[playback] 取代等待中的会话")
		c.endLocked(ErrSuperseded)
	}

	s := c.beginLocked(req)
	if c.remote == nil {
		notice, err := c.startLocalLocked(s, StateIdle)
		c.mu.Unlock()
		c.notify(notice)
		return err
	}
	if c.sm.Current() != StateLoadingAudio {
		c.sm.Transition(StateLoadingAudio)
	}
	c.mu.Unlock()

	// 调用方放弃等待时结束会话
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		if c.current == s {
			c.stopLocked(ctx.Err())
		}
		c.mu.Unlock()
	})

	res := c.remote.Synthesize(s.ctx, req)
	stop()

	c.mu.Lock()
	if c.current != s {
		reason := s.reason
		c.mu.Unlock()
		logger.Debugf("[playback] 会话 %s 已结束，丢弃合成结果 (%s)", s.info.ID, res.Status)
		return reason
	}

	var notice *Notice
	switch res.Status {
	case speech.StatusOK:
		notice, err = c.startRemoteLocked(s, res.Buffer)
	case speech.StatusUnavailable:
		logger.Infof("[playback] 云端不可用，改用本地引擎: %v", res.Err)
		notice, err = c.startLocalLocked(s, StateLoadingAudio)
	default:
		err = fmt.Errorf("%w: %w", speech.ErrPlaybackFailed, res.Err)
		notice = c.failLocked(s, NoticePlaybackFailed, err)
	}
	c.mu.Unlock()

	c.notify(notice)
	return err
}

// Stop 立即回到 Idle 并取消当前会话，可重复调用。
// 后端的拆除在之后异步完成，迟到的回调不会影响新状态。
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(speech.ErrCanceled)
}

func (c *Controller) stopLocked(reason error) {
	if c.current != nil {
		logger.Infof("[playback] 停止会话 %s", c.current.info.ID)
	}
	c.endLocked(reason)
	c.sm.ForceIdle()
}

// endLocked 作废当前会话，不改变状态。
func (c *Controller) endLocked(reason error) {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil
	s.reason = reason
	s.cancel()
	if s.handle != nil {
		s.handle.Cancel()
	}
}

func (c *Controller) beginLocked(req speech.Request) *session {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		info: Session{
			ID:      uuid.NewString(),
			Gen:     c.gen,
			Kind:    speech.KindLocal,
			Text:    req.Text,
			Started: time.Now(),
		},
		req:    req,
		ctx:    ctx,
		cancel: cancel,
	}
	if c.remote != nil {
		s.info.Kind = speech.KindRemote
	}
	c.current = s
	logger.Debugf("[playback] 开始会话 %s (#%d, %s)", s.info.ID, s.info.Gen, s.info.Kind)
	return s
}

func (c *Controller) startRemoteLocked(s *session, buf *audio.Buffer) (*Notice, error) {
	h, err := c.out.Start(buf)
	if err != nil {
		err = fmt.Errorf("%w: %w", speech.ErrPlaybackFailed, err)
		return c.failLocked(s, NoticePlaybackFailed, err), err
	}
	c.playingLocked(s, h)
	logger.Infof("[playback] 播放云端音频 %v", buf.Duration())
	return nil, nil
}

// startLocalLocked 用本地引擎开始会话。from 为调用时的状态，仅用于决定失败路径。
func (c *Controller) startLocalLocked(s *session, from State) (*Notice, error) {
	s.info.Kind = speech.KindLocal

	var (
		h   *speech.Handle
		err = speech.ErrEngineUnsupported
	)
	if c.local != nil {
		h, err = c.local.Start(s.ctx, s.req)
	}
	if err != nil {
		kind := NoticePlaybackFailed
		if errors.Is(err, speech.ErrEngineUnsupported) {
			kind = NoticeEngineUnsupported
		} else {
			err = fmt.Errorf("%w: %w", speech.ErrPlaybackFailed, err)
		}
		if from == StateIdle {
			// 尚未进入任何中间状态，直接结束
			c.current = nil
			s.cancel()
			logger.Warnf("[playback] 本地引擎无法朗读: %v", err)
			return &Notice{Kind: kind, Err: err}, err
		}
		return c.failLocked(s, kind, err), err
	}
	c.playingLocked(s, h)
	logger.Infof("[playback] 本地引擎开始朗读 %d 个字符", len([]rune(s.req.Text)))
	return nil, nil
}

func (c *Controller) playingLocked(s *session, h *speech.Handle) {
	s.handle = h
	c.sm.Transition(StatePlaying)
	go c.watch(s, h)
}

// failLocked 结束会话并经过 Error 回到 Idle。
func (c *Controller) failLocked(s *session, kind NoticeKind, err error) *Notice {
	logger.Errorf("[playback] 会话 %s 失败: %v", s.info.ID, err)
	c.endLocked(err)
	c.sm.Transition(StateError)
	c.sm.Transition(StateIdle)
	return &Notice{Kind: kind, Err: err}
}

// watch 等待播放结束并回到 Idle；会话已被取代时不做任何事。
func (c *Controller) watch(s *session, h *speech.Handle) {
	<-h.Done()
	err := h.Err()

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}

	var notice *Notice
	switch {
	case err == nil:
		logger.Infof("[playback] 会话 %s 播放完成", s.info.ID)
		c.current = nil
		s.cancel()
		c.sm.Transition(StateIdle)
	case errors.Is(err, speech.ErrCanceled):
		logger.Debugf("[playback] 会话 %s 已取消", s.info.ID)
		c.current = nil
		s.cancel()
		c.sm.Transition(StateIdle)
	default:
		if !errors.Is(err, speech.ErrPlaybackFailed) {
			err = fmt.Errorf("%w: %w", speech.ErrPlaybackFailed, err)
		}
		notice = c.failLocked(s, NoticePlaybackFailed, err)
	}
	c.mu.Unlock()

	c.notify(notice)
}

func (c *Controller) notify(n *Notice) {
	if n != nil && c.onNotice != nil {
		c.onNotice(*n)
	}
}
