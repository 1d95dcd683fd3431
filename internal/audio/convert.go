package audio

import (
	"encoding/binary"
	"math"
)

// Float32ToInt16 将 float32 样本还原为 PCM int16，与 DecodePCM16 的归一化互逆。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := math.Round(float64(s) * pcm16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// Int16ToBytes 将 int16 样本转换为小端字节切片。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Float32ToBytes 将 float32 样本直接转换为原始 PCM16 字节，供播放设备和缓存使用。
func Float32ToBytes(in []float32) []byte {
	return Int16ToBytes(Float32ToInt16(in))
}

// StereoToMono 将交错的立体声 PCM16 字节左右声道取平均，返回单声道 PCM16 字节。
// 不完整的尾部帧被截掉。
func StereoToMono(pcm []byte) []byte {
	const bytesPerFrame = 4
	frames := len(pcm) / bytesPerFrame
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		off := i * bytesPerFrame
		left := int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		right := int32(int16(binary.LittleEndian.Uint16(pcm[off+2:])))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16((left+right)/2)))
	}
	return out
}
