package silence

import (
	"errors"
	"fmt"
	"math"
)

// Segment is a silence interval in absolute file-relative seconds.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// DetectorParams configures the energy threshold and frame geometry.
type DetectorParams struct {
	// SilenceThreshold is the RMS amplitude below which a frame is silent.
	SilenceThreshold float64
	// MinSilenceDuration filters out intervals shorter than this, in seconds.
	MinSilenceDuration float64
	// FrameLength and HopLength are in samples.
	FrameLength int
	HopLength   int
}

// Detector finds silence intervals within one audio window at a time.
type Detector struct {
	params DetectorParams
}

// NewDetector validates params and returns a Detector.
func NewDetector(params DetectorParams) (*Detector, error) {
	if params.SilenceThreshold <= 0 || params.SilenceThreshold >= 1 {
		return nil, fmt.Errorf("silence threshold %v out of range (0, 1)", params.SilenceThreshold)
	}
	if params.MinSilenceDuration <= 0 {
		return nil, errors.New("min silence duration must be positive")
	}
	if params.FrameLength <= 0 {
		return nil, errors.New("frame length must be positive")
	}
	if params.HopLength <= 0 || params.HopLength > params.FrameLength {
		return nil, fmt.Errorf("hop length %d must be in [1, frame length %d]", params.HopLength, params.FrameLength)
	}
	return &Detector{params: params}, nil
}

// Detect returns the silence intervals local to one window of mono samples,
// expressed in absolute time. offset is the window's start position in the
// file, in seconds.
//
// Interior runs shorter than MinSilenceDuration are dropped. Runs touching
// a window edge are always emitted: they may continue in the neighboring
// window, so the duration filter can only be applied after the assembler
// has merged across boundaries (see Assembler.Merge and the caller's
// post-merge filtering).
func (d *Detector) Detect(samples []float64, sampleRate int, offset float64) ([]Segment, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d must be positive", sampleRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	windowDuration := float64(len(samples)) / float64(sampleRate)

	// Sub-frame windows cannot support framed RMS. Judge the whole window
	// by mean absolute amplitude instead.
	if len(samples) < d.params.FrameLength {
		var sum float64
		for _, sample := range samples {
			sum += math.Abs(sample)
		}
		if sum/float64(len(samples)) >= d.params.SilenceThreshold {
			return nil, nil
		}
		// The whole window is silent and touches both edges, so it is
		// always provisionally emitted.
		return []Segment{{Start: offset, End: offset + windowDuration, Confidence: 1}}, nil
	}

	energies := d.frameRMS(samples)

	var segments []Segment
	runStart := -1
	var runEnergy float64
	flush := func(endFrame int) {
		if runStart < 0 {
			return
		}
		start := offset + d.frameStartTime(runStart, sampleRate)
		end := offset + d.frameEndTime(endFrame-1, sampleRate)
		if end > offset+windowDuration {
			end = offset + windowDuration
		}
		touchesEdge := runStart == 0 || endFrame == len(energies)
		if end-start >= d.params.MinSilenceDuration || touchesEdge {
			frames := float64(endFrame - runStart)
			segments = append(segments, Segment{
				Start:      start,
				End:        end,
				Confidence: confidence(runEnergy/frames, d.params.SilenceThreshold),
			})
		}
		runStart = -1
		runEnergy = 0
	}

	for i, energy := range energies {
		if energy < d.params.SilenceThreshold {
			if runStart < 0 {
				runStart = i
			}
			runEnergy += energy
			continue
		}
		flush(i)
	}
	flush(len(energies))

	return segments, nil
}

// frameRMS computes short-time RMS energy for each hop-aligned frame.
func (d *Detector) frameRMS(samples []float64) []float64 {
	frame := d.params.FrameLength
	hop := d.params.HopLength
	count := 1 + (len(samples)-frame)/hop
	energies := make([]float64, count)
	for i := 0; i < count; i++ {
		start := i * hop
		var sum float64
		for _, sample := range samples[start : start+frame] {
			sum += sample * sample
		}
		energies[i] = math.Sqrt(sum / float64(frame))
	}
	return energies
}

func (d *Detector) frameStartTime(frame int, sampleRate int) float64 {
	return float64(frame*d.params.HopLength) / float64(sampleRate)
}

func (d *Detector) frameEndTime(frame int, sampleRate int) float64 {
	return float64(frame*d.params.HopLength+d.params.FrameLength) / float64(sampleRate)
}

// confidence maps how far below the threshold a run's mean energy sits onto
// [0, 1], where 1 is digital silence.
func confidence(meanEnergy, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	c := 1 - meanEnergy/threshold
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
