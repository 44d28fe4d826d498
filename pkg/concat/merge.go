package concat

import (
	"errors"
	"fmt"

	"stitcher/pkg/mp4"
)

// ErrTimescaleMismatch inputs declare different media timescales.
// No conversion path exists, inputs must be pre-verified identical.
var ErrTimescaleMismatch = errors.New("media timescale mismatch")

// mergedTrack is the unified sample table describing all inputs
// as one continuous track. It owns its sequences, nothing aliases
// the per-input tables.
type mergedTrack struct {
	handler   [4]byte
	timescale uint32
	stsd      []byte
	width     uint32
	height    uint32

	sampleCount uint32
	sizes       []uint32
	uniformSize uint32 // non-zero when every input shared one uniform size.

	chunkOffsets []uint64 // one chunk per input file.
	stsc         []mp4.StscEntry
	stts         []mp4.SttsEntry
	stss         []uint32
	hasStss      bool
	ctts         []mp4.CttsEntry
	hasCtts      bool

	duration uint64 // media timescale units.
}

// mergeTracks combines the same-kind track of every input into one table.
// regionOffsets[i] is the absolute position of input i's mdat payload in
// the final file.
func mergeTracks(tracks []*track, regionOffsets []uint64) (*mergedTrack, error) {
	first := tracks[0]
	m := &mergedTrack{
		handler:   first.handler,
		timescale: first.timescale,
		stsd:      first.stsd,
		width:     first.width,
		height:    first.height,
	}

	for i, t := range tracks {
		if t.timescale != m.timescale {
			return nil, fmt.Errorf("%w: input %v: %v != %v",
				ErrTimescaleMismatch, i, t.timescale, m.timescale)
		}
		if t.hasStss {
			m.hasStss = true
		}
		if t.ctts != nil {
			m.hasCtts = true
		}
	}

	// Sample sizes concatenate in input order. The uniform-size shortcut
	// survives only if every input declared the same uniform size.
	m.uniformSize = first.uniformSize
	for _, t := range tracks {
		if t.uniformSize != m.uniformSize {
			m.uniformSize = 0
		}
		m.sizes = append(m.sizes, t.sizes...)
		m.sampleCount += t.sampleCount
	}

	// One chunk per input file. Each chunk starts where that input's
	// sample data lands in the final mdat.
	equalCounts := true
	m.chunkOffsets = make([]uint64, len(tracks))
	for i, t := range tracks {
		var firstChunk uint64
		if len(t.chunkPos) > 0 {
			firstChunk = t.chunkPos[0]
		}
		m.chunkOffsets[i] = regionOffsets[i] + firstChunk

		if t.sampleCount != first.sampleCount {
			equalCounts = false
		}
	}

	// stsc can say "this chunk holds K samples" for any K, so the table
	// collapses to a single run when every input has the same count.
	if equalCounts {
		m.stsc = []mp4.StscEntry{{
			FirstChunk:             1,
			SamplesPerChunk:        first.sampleCount,
			SampleDescriptionIndex: 1,
		}}
	} else {
		m.stsc = make([]mp4.StscEntry, len(tracks))
		for i, t := range tracks {
			m.stsc[i] = mp4.StscEntry{
				FirstChunk:             uint32(i + 1),
				SamplesPerChunk:        t.sampleCount,
				SampleDescriptionIndex: 1,
			}
		}
	}

	var cumSamples uint32
	for _, t := range tracks {
		for _, entry := range t.stts {
			appendStts(&m.stts, entry)
		}

		if m.hasStss {
			if t.hasStss {
				for _, number := range t.stss {
					m.stss = append(m.stss, cumSamples+number)
				}
			} else {
				// Implicit all-sync. Materialized before offsetting so
				// this input's frames stay seekable next to inputs that
				// do carry explicit sync lists.
				for i := uint32(1); i <= t.sampleCount; i++ {
					m.stss = append(m.stss, cumSamples+i)
				}
			}
		}

		if m.hasCtts {
			if t.ctts != nil {
				for _, entry := range t.ctts {
					appendCtts(&m.ctts, entry)
				}
			} else {
				// No B-frames in this input, explicit zero offsets keep
				// the merged table uniform.
				appendCtts(&m.ctts, mp4.CttsEntry{
					SampleCount: t.sampleCount,
				})
			}
		}

		cumSamples += t.sampleCount
		m.duration += t.duration()
	}

	return m, nil
}

// appendStts extends the last run when the delta repeats across a
// file boundary. Purely a size optimization, total duration is unchanged.
func appendStts(entries *[]mp4.SttsEntry, entry mp4.SttsEntry) {
	if entry.SampleCount == 0 {
		return
	}
	n := len(*entries)
	if n > 0 && (*entries)[n-1].SampleDelta == entry.SampleDelta {
		(*entries)[n-1].SampleCount += entry.SampleCount
		return
	}
	*entries = append(*entries, entry)
}

func appendCtts(entries *[]mp4.CttsEntry, entry mp4.CttsEntry) {
	if entry.SampleCount == 0 {
		return
	}
	n := len(*entries)
	if n > 0 && (*entries)[n-1].SampleOffsetV1 == entry.SampleOffsetV1 {
		(*entries)[n-1].SampleCount += entry.SampleCount
		return
	}
	*entries = append(*entries, entry)
}
