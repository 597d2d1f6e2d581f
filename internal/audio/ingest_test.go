package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmWAV builds a 16-bit PCM WAV with interleaved samples.
func pcmWAV(t *testing.T, rate, channels int, samples []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// rawWAV builds a WAV container around already encoded sample bytes.
func rawWAV(audioFormat uint16, bitDepth, channels, rate int, data []byte) []byte {
	blockAlign := channels * bitDepth / 8

	var b []byte
	b = append(b, "RIFF"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(36+len(data)))
	b = append(b, "WAVEfmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, audioFormat)
	b = binary.LittleEndian.AppendUint16(b, uint16(channels))
	b = binary.LittleEndian.AppendUint32(b, uint32(rate))
	b = binary.LittleEndian.AppendUint32(b, uint32(rate*blockAlign))
	b = binary.LittleEndian.AppendUint16(b, uint16(blockAlign))
	b = binary.LittleEndian.AppendUint16(b, uint16(bitDepth))
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func TestIngest_UnsignedEightBit(t *testing.T) {
	raw := rawWAV(wavFormatPCM, 8, 1, 16000, []byte{0x80, 0xC0, 0x40, 0x00, 0xFF})

	u, err := Ingest(raw, 16000)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0.5, -0.5, -1, 127.0 / 128.0}, u.Samples)
}

func TestIngest_FloatWAV(t *testing.T) {
	var data []byte
	for _, v := range []float32{0.25, -0.5, 0, 1} {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}

	u, err := Ingest(rawWAV(wavFormatFloat, 32, 1, 16000, data), 16000)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, -0.5, 0, 1}, u.Samples)
}

func TestIngest_UnsupportedWAVFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "64-bit float", raw: rawWAV(wavFormatFloat, 64, 1, 16000, make([]byte, 32))},
		{name: "mu-law", raw: rawWAV(7, 8, 1, 16000, []byte{1, 2, 3, 4})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Ingest(tt.raw, 16000)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

// flacStream encodes per-channel samples as a FLAC stream of verbatim frames.
func flacStream(t *testing.T, rate int, bps uint8, blockSize int, channels [][]int32) []byte {
	t.Helper()

	n := len(channels[0])
	var out bytes.Buffer
	enc, err := flac.NewEncoder(&out, &meta.StreamInfo{
		BlockSizeMin:  uint16(blockSize),
		BlockSizeMax:  uint16(blockSize),
		SampleRate:    uint32(rate),
		NChannels:     uint8(len(channels)),
		BitsPerSample: bps,
		NSamples:      uint64(n),
	})
	require.NoError(t, err)

	layout := frame.ChannelsMono
	if len(channels) == 2 {
		layout = frame.ChannelsLR
	}

	for start := 0; start < n; start += blockSize {
		end := min(start+blockSize, n)
		subframes := make([]*frame.Subframe, len(channels))
		for ch, samples := range channels {
			subframes[ch] = &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   append([]int32(nil), samples[start:end]...),
				NSamples:  end - start,
			}
		}
		require.NoError(t, enc.WriteFrame(&frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(end - start),
				SampleRate:        uint32(rate),
				Channels:          layout,
				BitsPerSample:     bps,
			},
			Subframes: subframes,
		}))
	}
	require.NoError(t, enc.Close())

	return out.Bytes()
}

func TestDecodeFLAC_InterleavesAndScales(t *testing.T) {
	const n = 32
	left := make([]int32, n)
	right := make([]int32, n)
	for i := range n {
		left[i] = int32(i) << 18
		right[i] = -int32(i) << 17
	}
	raw := flacStream(t, 16000, 24, 16, [][]int32{left, right})

	u, err := decodeFLAC(raw)
	require.NoError(t, err)

	assert.Equal(t, 16000, u.SampleRate)
	assert.Equal(t, 2, u.Channels)
	require.Len(t, u.Samples, 2*n)
	for i := range n {
		assert.Equal(t, float32(i)/32, u.Samples[2*i], "left %d", i)
		assert.Equal(t, -float32(i)/64, u.Samples[2*i+1], "right %d", i)
	}
}

func TestIngest_FLACStereoIsAveraged(t *testing.T) {
	const n = 32
	left := make([]int32, n)
	right := make([]int32, n)
	for i := range n {
		left[i] = int32(i) << 18
		right[i] = -int32(i) << 17
	}

	u, err := Ingest(flacStream(t, 16000, 24, 16, [][]int32{left, right}), 16000)
	require.NoError(t, err)

	assert.Equal(t, 1, u.Channels)
	require.Len(t, u.Samples, n)
	for i := range n {
		assert.Equal(t, float32(i)/128, u.Samples[i])
	}
}

func TestIngest_FLACSixteenBitMono(t *testing.T) {
	raw := flacStream(t, 16000, 16, 16, [][]int32{{
		0, 16384, -16384, 32767, -32768, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
	}})

	u, err := Ingest(raw, 16000)
	require.NoError(t, err)

	require.Len(t, u.Samples, 16)
	assert.Equal(t, []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}, u.Samples[:5])
}

func TestIngest_MonoAtTargetRateIsUntouched(t *testing.T) {
	raw := pcmWAV(t, 16000, 1, []int{0, 16384, -16384, 32767, -32768})

	u, err := Ingest(raw, 16000)
	require.NoError(t, err)

	assert.Equal(t, 16000, u.SampleRate)
	assert.Equal(t, 1, u.Channels)
	assert.Equal(t, []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}, u.Samples)
}

func TestIngest_StereoIsAveraged(t *testing.T) {
	raw := pcmWAV(t, 16000, 2, []int{
		1000, 3000,
		-4096, 4096,
		8192, 0,
	})

	u, err := Ingest(raw, 16000)
	require.NoError(t, err)

	require.Len(t, u.Samples, 3)
	assert.InDelta(t, 2000.0/32768.0, u.Samples[0], 1e-7)
	assert.InDelta(t, 0, u.Samples[1], 1e-7)
	assert.InDelta(t, 4096.0/32768.0, u.Samples[2], 1e-7)
}

func TestIngest_ResamplesStereoSilence(t *testing.T) {
	// 2 seconds of 44.1 kHz stereo silence.
	raw := pcmWAV(t, 44100, 2, make([]int, 2*44100*2))

	u, err := Ingest(raw, 16000)
	require.NoError(t, err)

	assert.Equal(t, 16000, u.SampleRate)
	assert.Equal(t, 1, u.Channels)
	assert.Len(t, u.Samples, 32000)
	for _, s := range u.Samples {
		assert.InDelta(t, 0, s, 1e-6)
	}
}

func TestIngest_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "garbage", raw: []byte("definitely not audio, just some text bytes")},
		{name: "truncated riff", raw: []byte("RIFF\x00\x00\x00\x00WAVE")},
		{name: "truncated flac", raw: []byte("fLaC\x00\x00\x00\x22")},
		{name: "zero samples", raw: pcmWAV(t, 16000, 1, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Ingest(tt.raw, 16000)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Empty(t, u.Samples)
		})
	}
}

func TestIngest_InvalidTargetRate(t *testing.T) {
	_, err := Ingest(pcmWAV(t, 16000, 1, []int{1, 2, 3}), 0)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, formatWAV, detect([]byte("RIFF\x24\x00\x00\x00WAVEfmt ")))
	assert.Equal(t, formatFLAC, detect([]byte("fLaC")))
	assert.Equal(t, formatUnknown, detect([]byte("OggS\x00\x02")))
	assert.Equal(t, formatUnknown, detect(nil))
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, Downmix([]float32{1, 0, -0.5, 0.5}, 2))
	assert.Equal(t, []float32{0.25}, Downmix([]float32{0.25, 0.25, 0.25, 0.25}, 4))

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, Downmix(mono, 1))
}

func TestResample_LengthAndLevel(t *testing.T) {
	const (
		from = 48000
		to   = 16000
		amp  = 0.5
	)
	in := make([]float32, from)
	for i := range in {
		in[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/from))
	}

	out, err := Resample(in, from, to)
	require.NoError(t, err)
	require.Len(t, out, to)

	var sum float64
	window := out[2000:14000]
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(window)))
	assert.InDelta(t, amp/math.Sqrt2, rms, 0.05)
}

func TestResample_IsPhaseAligned(t *testing.T) {
	const (
		from = 44100
		to   = 16000
		amp  = 0.5
	)
	// Linear chirp from 100 Hz to 600 Hz over half a second; unlike a pure
	// tone it has a single correlation peak.
	chirp := func(sec float64) float64 {
		return amp * math.Sin(2*math.Pi*(100*sec+500*sec*sec))
	}

	in := make([]float32, from/2)
	for i := range in {
		in[i] = float32(chirp(float64(i) / from))
	}

	out, err := Resample(in, from, to)
	require.NoError(t, err)
	require.Len(t, out, to/2)

	const margin = 400
	ideal := func(i int) float64 { return chirp(float64(i) / to) }

	bestLag, bestScore := 0, math.Inf(-1)
	for lag := -200; lag <= 200; lag++ {
		var score float64
		for i := margin; i < len(out)-margin; i++ {
			score += float64(out[i]) * ideal(i+lag)
		}
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	assert.InDelta(t, 0, bestLag, 1)

	var sum float64
	for i := margin; i < len(out)-margin; i++ {
		d := float64(out[i]) - ideal(i)
		sum += d * d
	}
	assert.Less(t, math.Sqrt(sum/float64(len(out)-2*margin)), 0.06)
}

func TestResample_KeepsTail(t *testing.T) {
	const (
		from = 44100
		to   = 16000
		amp  = 0.5
	)
	in := make([]float32, from)
	for i := range in {
		in[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/from))
	}

	out, err := Resample(in, from, to)
	require.NoError(t, err)
	require.Len(t, out, to)

	// Last 20 ms.
	tail := out[len(out)-320:]
	var sum float64
	for _, s := range tail {
		sum += float64(s) * float64(s)
	}
	assert.InDelta(t, amp/math.Sqrt2, math.Sqrt(sum/float64(len(tail))), 0.03)
}

func TestFilterDelay_IsCached(t *testing.T) {
	d1, err := filterDelay(22050, 16000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d1, 0)

	d2, err := filterDelay(22050, 16000)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	_, ok := delays.Load(ratePair{from: 22050, to: 16000})
	assert.True(t, ok)
}

func TestResample_SameRateIsNoop(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3}
	out, err := Resample(in, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Resample(in, 0, 16000)
	assert.ErrorIs(t, err, ErrInvalidRate)
}
