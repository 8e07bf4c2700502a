// Package wavio reads and writes RIFF/WAVE audio with bounded memory.
//
// Reader streams PCM frames through a fixed-size buffer and downmixes to
// mono float64 in the range [-1, 1], so callers never hold a full file in
// memory. ReadSpan re-reads an absolute frame range for chunk extraction,
// and WriteMono encodes 16-bit PCM output.
package wavio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// readFrames is the number of frames decoded per PCMBuffer call.
const readFrames = 8192

// ErrNotWAV reports that a file failed RIFF/WAVE validation.
var ErrNotWAV = errors.New("not a valid wav file")

// Reader streams mono samples from a WAV file.
type Reader struct {
	file    *os.File
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	pending []int
	scale   float64

	sampleRate int
	channels   int
	bitDepth   int
}

// Open validates the file and prepares a streaming reader positioned at the
// first PCM frame.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek pcm data: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		file.Close()
		return nil, fmt.Errorf("wav %s reports %d channels", path, channels)
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		file.Close()
		return nil, fmt.Errorf("wav %s has unsupported bit depth %d", path, bitDepth)
	}

	return &Reader{
		file:    file,
		decoder: decoder,
		buf: &audio.IntBuffer{
			Format: decoder.Format(),
			Data:   make([]int, readFrames*channels),
		},
		scale:      float64(int64(1) << (bitDepth - 1)),
		sampleRate: int(decoder.SampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
	}, nil
}

// SampleRate returns the native sample rate in Hz.
func (r *Reader) SampleRate() int { return r.sampleRate }

// Channels returns the native channel count.
func (r *Reader) Channels() int { return r.channels }

// BitDepth returns the PCM bit depth.
func (r *Reader) BitDepth() int { return r.bitDepth }

// ReadMono fills dst with up to len(dst) mono frames, averaging channels and
// normalizing to [-1, 1]. It returns the number of frames written and io.EOF
// once the stream is exhausted.
func (r *Reader) ReadMono(dst []float64) (int, error) {
	written := 0
	for written < len(dst) {
		if len(r.pending) < r.channels {
			if err := r.refill(); err != nil {
				if written > 0 && errors.Is(err, io.EOF) {
					return written, nil
				}
				return written, err
			}
		}
		for len(r.pending) >= r.channels && written < len(dst) {
			var sum float64
			for c := 0; c < r.channels; c++ {
				sum += float64(r.pending[c])
			}
			dst[written] = clampUnit(sum / (float64(r.channels) * r.scale))
			r.pending = r.pending[r.channels:]
			written++
		}
	}
	return written, nil
}

func (r *Reader) refill() error {
	n, err := r.decoder.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read pcm: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	// Round down to whole frames. Trailing partial frames only appear in
	// truncated files and are dropped.
	n -= n % r.channels
	r.pending = r.buf.Data[:n]
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadSpan re-reads frames [startFrame, endFrame) from path as mono samples
// at the file's native rate. The span is bounded by the chunk being
// extracted, not the file size.
func ReadSpan(path string, startFrame, endFrame int64) ([]float64, int, error) {
	if startFrame < 0 || endFrame < startFrame {
		return nil, 0, fmt.Errorf("invalid span [%d, %d)", startFrame, endFrame)
	}

	reader, err := Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer reader.Close()

	scratch := make([]float64, readFrames)
	var skipped int64
	for skipped < startFrame {
		want := int64(len(scratch))
		if remaining := startFrame - skipped; remaining < want {
			want = remaining
		}
		n, err := reader.ReadMono(scratch[:want])
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return nil, 0, fmt.Errorf("span start %d beyond end of %s", startFrame, path)
			}
			return nil, 0, err
		}
		skipped += int64(n)
	}

	samples := make([]float64, 0, endFrame-startFrame)
	for int64(len(samples)) < endFrame-startFrame {
		want := endFrame - startFrame - int64(len(samples))
		if want > int64(len(scratch)) {
			want = int64(len(scratch))
		}
		n, err := reader.ReadMono(scratch[:want])
		if n > 0 {
			samples = append(samples, scratch[:n]...)
		}
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, err
		}
	}
	return samples, reader.SampleRate(), nil
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Rates must be positive; equal rates return the input
// unchanged.
func Resample(samples []float64, srcRate, dstRate int) ([]float64, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", srcRate, dstRate)
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples, nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		left := int(pos)
		if left >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(left)
		out[i] = samples[left]*(1-frac) + samples[left+1]*frac
	}
	return out, nil
}

// WriteMono encodes mono samples as 16-bit PCM WAV at the given rate.
func WriteMono(path string, samples []float64, sampleRate int) error {
	return Write(path, samples, sampleRate, 1)
}

// Write encodes mono samples as 16-bit PCM with the given channel layout.
// Multi-channel output duplicates the mono signal into every channel.
func Write(path string, samples []float64, sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("write wav: invalid sample rate %d", sampleRate)
	}
	if channels < 1 {
		return fmt.Errorf("write wav: invalid channel count %d", channels)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	encoder := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	data := make([]int, len(samples)*channels)
	for i, sample := range samples {
		value := int(clampUnit(sample) * 32767.0)
		for c := 0; c < channels; c++ {
			data[i*channels+c] = value
		}
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		encoder.Close()
		file.Close()
		return fmt.Errorf("write pcm: %w", err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return file.Close()
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
