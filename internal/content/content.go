// Package content 提供章节内容与章节导航。
package content

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/daoreader/internal/logger"
)

// ErrNotFound 表示章节不存在。
var ErrNotFound = errors.New("[content] chapter not found")

// Chapter 是一章的原文、译文与解析。
type Chapter struct {
	Number      int      `yaml:"number"`
	Title       string   `yaml:"title"`
	Text        string   `yaml:"text"`
	Translation string   `yaml:"translation"`
	Analysis    string   `yaml:"analysis"`
	Keywords    []string `yaml:"keywords"`
}

// Provider 按章节号提供内容。
type Provider interface {
	Chapter(n int) (Chapter, error)
}

// Placeholder 返回缺少数据时显示的占位章节。
func Placeholder(n int) Chapter {
	return Chapter{
		Number:      n,
		Title:       fmt.Sprintf("第 %d 章", n),
		Text:        "内容加载中...",
		Translation: "暂无译文",
		Analysis:    "暂无解析",
		Keywords:    []string{},
	}
}

// Safe 包装 p，任何错误或缺失都返回占位章节，保证导航不会因内容失败中断。
func Safe(p Provider) Provider { return safeProvider{p} }

type safeProvider struct{ p Provider }

func (s safeProvider) Chapter(n int) (Chapter, error) {
	if s.p == nil {
		return Placeholder(n), nil
	}
	ch, err := s.p.Chapter(n)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warnf("[content] 读取第 %d 章失败: %v", n, err)
		}
		return Placeholder(n), nil
	}
	return ch, nil
}

// Table 是内存中的章节表。
type Table struct {
	chapters map[int]Chapter
}

// NewTable 由章节列表构造章节表，章节号重复时后者覆盖前者。
func NewTable(chapters []Chapter) *Table {
	t := &Table{chapters: make(map[int]Chapter, len(chapters))}
	for _, ch := range chapters {
		t.chapters[ch.Number] = ch
	}
	return t
}

// Chapter 实现 Provider 接口。
func (t *Table) Chapter(n int) (Chapter, error) {
	ch, ok := t.chapters[n]
	if !ok {
		return Chapter{}, fmt.Errorf("%w: %d", ErrNotFound, n)
	}
	return ch, nil
}

// Numbers 返回已有的章节号，升序。
func (t *Table) Numbers() []int {
	out := make([]int, 0, len(t.chapters))
	for n := range t.chapters {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

type tableFile struct {
	Chapters []Chapter `yaml:"chapters"`
}

// LoadTable 读取 YAML 章节表：
//
//	chapters:
//	  - number: 1
//	    title: 第一章
//	    text: 道可道，非常道……
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[content] 读取章节文件 %s 失败: %w", path, err)
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("[content] 解析章节文件 %s 失败: %w", path, err)
	}
	for i, ch := range f.Chapters {
		if ch.Number <= 0 {
			return nil, fmt.Errorf("[content] 第 %d 条记录缺少章节号", i+1)
		}
	}

	t := NewTable(f.Chapters)
	logger.Infof("[content] 已加载 %d 章", len(t.chapters))
	return t, nil
}
