// Package reader 组装朗读控制器、章节内容与导航，并提供终端命令循环。
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/config"
	"github.com/iabetor/daoreader/internal/content"
	"github.com/iabetor/daoreader/internal/database"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/playback"
	"github.com/iabetor/daoreader/internal/speech"
)

// controls 是命令循环使用的控制器接口，*playback.Controller 满足该接口。
type controls interface {
	Play(ctx context.Context, text string) error
	Stop()
	State() playback.State
}

// App 是终端阅读器。
type App struct {
	ctrl     controls
	provider content.Provider
	nav      *content.Navigator

	player  *audio.Player
	db      *database.DB
	closers []func()

	outMu sync.Mutex
	out   io.Writer
	wg    sync.WaitGroup
}

// New 按配置创建阅读器。out 用于输出章节与状态。
func New(cfg *config.Config, out io.Writer) (*App, error) {
	a := &App{out: out}

	player, err := audio.NewPlayer()
	if err != nil {
		logger.Warnf("[reader] 初始化音频播放失败，云端与离线合成不可用: %v", err)
	} else {
		a.player = player
	}

	opts := playback.Options{
		Locale:   cfg.Speech.Locale,
		Rate:     cfg.Speech.Rate,
		OnChange: a.onChange,
		OnNotice: a.onNotice,
	}

	remoteBackend, db, err := buildRemote(cfg.Speech.Remote)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化云端合成失败: %w", err)
	}
	a.db = db
	if remoteBackend != nil && a.player != nil {
		opts.Remote = remoteBackend
		opts.Player = playback.PlayerOutput(a.player)
	}

	localBackend, closer := buildLocal(cfg.Speech.Local, cfg.Speech.Locale, a.player)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	if localBackend != nil {
		opts.Local = localBackend
	}

	var table content.Provider
	if cfg.Reader.ContentFile != "" {
		t, err := content.LoadTable(cfg.Reader.ContentFile)
		if err != nil {
			logger.Warnf("[reader] %v，使用占位内容", err)
		} else {
			table = t
		}
	}

	a.ctrl = playback.New(opts)
	a.provider = content.Safe(table)
	a.nav = content.NewNavigator(cfg.Reader.FirstChapter, cfg.Reader.LastChapter, cfg.Reader.FirstChapter)
	return a, nil
}

// newApp 用给定组件创建阅读器。
func newApp(ctrl controls, provider content.Provider, nav *content.Navigator, out io.Writer) *App {
	return &App{ctrl: ctrl, provider: content.Safe(provider), nav: nav, out: out}
}

const help = `命令: p 朗读/停止  s 停止  n 下一章  b 上一章  g <章号> 跳转  t 译文  a 解析  h 帮助  q 退出`

// Run 从 in 读取命令，直到 ctx 取消、输入结束或收到 q。
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a.printf("%s\n", help)
	a.showChapter(a.nav.Current())

	for {
		select {
		case <-ctx.Done():
			a.ctrl.Stop()
			a.wg.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok || !a.handle(ctx, line) {
				a.ctrl.Stop()
				cancel()
				a.wg.Wait()
				return nil
			}
		}
	}
}

// handle 执行一条命令，返回 false 表示退出。
func (a *App) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
	case "q", "quit":
		return false
	case "p", "play":
		a.play(ctx)
	case "s", "stop":
		a.ctrl.Stop()
	case "n", "next":
		a.moveTo(a.nav.Next())
	case "b", "prev":
		a.moveTo(a.nav.Prev())
	case "g", "go":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			a.printf("无效的章号: %q\n", arg)
			return true
		}
		a.moveTo(a.nav.Select(n))
	case "t":
		ch, _ := a.provider.Chapter(a.nav.Current())
		a.printf("【译文】%s\n", ch.Translation)
	case "a":
		ch, _ := a.provider.Chapter(a.nav.Current())
		a.printf("【解析】%s\n", ch.Analysis)
	case "h", "help":
		a.printf("%s\n", help)
	default:
		a.printf("未知命令: %s\n%s\n", cmd, help)
	}
	return true
}

// play 朗读当前章节原文。Play 可能阻塞在云端合成上，放到后台执行以便随时停止。
func (a *App) play(ctx context.Context) {
	ch, _ := a.provider.Chapter(a.nav.Current())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.ctrl.Play(ctx, ch.Text)
		switch {
		case err == nil,
			errors.Is(err, playback.ErrSuperseded),
			errors.Is(err, speech.ErrCanceled),
			errors.Is(err, context.Canceled):
		case errors.Is(err, speech.ErrNoContent):
			a.printf("本章没有可朗读的内容\n")
		default:
			// 失败已通过 OnNotice 提示
			logger.Debugf("[reader] 朗读结束: %v", err)
		}
	}()
}

// moveTo 切换章节；切换前总是先停止朗读。
func (a *App) moveTo(n int, changed bool) {
	if !changed {
		a.printf("已经是第 %d 章\n", n)
		return
	}
	a.ctrl.Stop()
	a.showChapter(n)
}

func (a *App) showChapter(n int) {
	ch, _ := a.provider.Chapter(n)
	a.printf("\n%s\n%s\n", ch.Title, ch.Text)
	if len(ch.Keywords) > 0 {
		a.printf("关键词: %s\n", strings.Join(ch.Keywords, "、"))
	}
}

func (a *App) onChange(from, to playback.State) {
	switch to {
	case playback.StateLoadingAudio:
		a.printf("⋯ 正在生成语音\n")
	case playback.StatePlaying:
		a.printf("▶ 朗读中（p 停止）\n")
	case playback.StateIdle:
		if from == playback.StatePlaying {
			a.printf("■ 朗读结束\n")
		}
	}
}

func (a *App) onNotice(n playback.Notice) {
	switch n.Kind {
	case playback.NoticeEngineUnsupported:
		a.printf("✗ 当前环境不支持语音朗读\n")
	default:
		a.printf("✗ 朗读失败: %v\n", n.Err)
	}
}

func (a *App) printf(format string, args ...interface{}) {
	if a.out == nil {
		return
	}
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// Close 释放所有资源。
func (a *App) Close() {
	logger.Info("[reader] 正在关闭...")

	if a.ctrl != nil {
		a.ctrl.Stop()
	}
	for _, c := range a.closers {
		c()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.player != nil {
		a.player.Close()
	}

	logger.Info("[reader] 已关闭")
}
