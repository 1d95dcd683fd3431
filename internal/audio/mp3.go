package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 将 MP3 数据解码为单声道小端 PCM16 字节，返回字节与采样率。
// go-mp3 总是输出 16-bit 立体声，这里取左右平均。
func DecodeMP3(data []byte) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: MP3 数据为空", ErrDecode)
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: MP3 解码失败: %v", ErrDecode, err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: 读取 PCM 数据失败: %v", ErrDecode, err)
	}

	return StereoToMono(pcm), decoder.SampleRate(), nil
}
