package remote

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/database"
	"github.com/iabetor/daoreader/internal/speech"
)

// Cache 把云端合成结果按请求内容缓存到 SQLite，避免同一章节反复请求。
type Cache struct {
	db         *database.DB
	maxEntries int

	mu   sync.Mutex
	last int64
}

// NewCache 创建缓存；maxEntries <= 0 表示不限制条数。
func NewCache(db *database.DB, maxEntries int) *Cache {
	return &Cache{db: db, maxEntries: maxEntries}
}

// Key 由服务名、音色、语言、语速和文本生成缓存键。
func Key(provider, voice string, req speech.Request) string {
	h := sha256.New()
	for _, part := range []string{
		provider,
		voice,
		req.Locale,
		strconv.FormatFloat(req.Rate, 'f', 3, 64),
		req.Text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stamp 返回严格递增的纳秒时间戳，作为 last_used 的值。
func (c *Cache) stamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// Lookup 查找缓存，命中时返回解码后的 Buffer 并刷新使用时间。
func (c *Cache) Lookup(key string) (*audio.Buffer, bool, error) {
	var (
		rate int
		pcm  []byte
	)
	err := c.db.QueryRow(
		`SELECT sample_rate, pcm FROM speech_cache WHERE cache_key = ?`, key,
	).Scan(&rate, &pcm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[cache] 查询缓存失败: %w", err)
	}

	buf, err := audio.DecodePCM16(pcm, rate)
	if err != nil {
		// 损坏的条目直接删除
		_, _ = c.db.Exec(`DELETE FROM speech_cache WHERE cache_key = ?`, key)
		return nil, false, err
	}

	_, _ = c.db.Exec(`UPDATE speech_cache SET last_used = ? WHERE cache_key = ?`, c.stamp(), key)
	return buf, true, nil
}

// Store 写入缓存，并按 last_used 淘汰超出上限的旧条目。
func (c *Cache) Store(key, provider string, buf *audio.Buffer) error {
	_, err := c.db.Exec(
		`INSERT INTO speech_cache (cache_key, provider, sample_rate, pcm, last_used)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			sample_rate = excluded.sample_rate,
			pcm = excluded.pcm,
			last_used = excluded.last_used`,
		key, provider, buf.SampleRate, audio.Float32ToBytes(buf.Samples), c.stamp(),
	)
	if err != nil {
		return fmt.Errorf("[cache] 写入缓存失败: %w", err)
	}

	if c.maxEntries > 0 {
		_, err = c.db.Exec(
			`DELETE FROM speech_cache WHERE cache_key NOT IN (
				SELECT cache_key FROM speech_cache ORDER BY last_used DESC, rowid DESC LIMIT ?
			)`, c.maxEntries,
		)
		if err != nil {
			return fmt.Errorf("[cache] 淘汰旧缓存失败: %w", err)
		}
	}
	return nil
}

// Len 返回缓存条目数。
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM speech_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("[cache] 统计缓存失败: %w", err)
	}
	return n, nil
}
