package concat

import (
	"time"
)

// Info summarizes a single MP4 buffer.
type Info struct {
	MovieTimescale uint32
	MediaTimescale uint32
	VideoSamples   int
	AudioSamples   int
	HasAudio       bool
	Duration       time.Duration
}

// Probe inspects one MP4 buffer without producing output.
// Same parsing rules and failure modes as Concat.
func Probe(buf []byte) (*Info, error) {
	file, err := parseInput(buf)
	if err != nil {
		return nil, err
	}

	info := &Info{
		MovieTimescale: file.movieTimescale,
		MediaTimescale: file.video.timescale,
		VideoSamples:   int(file.video.sampleCount),
	}
	if file.audio != nil {
		info.HasAudio = true
		info.AudioSamples = int(file.audio.sampleCount)
	}
	if file.video.timescale != 0 {
		// Split into whole seconds and remainder so long
		// presentations don't overflow the tick multiplication.
		ticks := file.video.duration()
		scale := uint64(file.video.timescale)
		info.Duration = time.Duration(ticks/scale)*time.Second +
			time.Duration((ticks%scale)*uint64(time.Second)/scale)
	}
	return info, nil
}
