package concat

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"stitcher/pkg/mp4"
	"stitcher/pkg/mp4/bitio"
)

// ErrNoInput the input list is empty.
var ErrNoInput = errors.New("no input files")

const (
	videoTrackID = 1
	audioTrackID = 2
)

// Concat merges the given MP4 buffers into a single MP4 whose mdat is
// the byte-exact concatenation of the inputs' sample data and whose
// moov describes one continuous presentation. Input order is playback
// order. Inputs must share codec configuration and media timescale,
// only the timescale is verified here.
//
// Pure function, safe for concurrent use with independent inputs.
func Concat(inputs [][]byte) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}

	// Parse and extract every input. A single malformed input fails the
	// whole request, a skipped input would shift every later chunk offset.
	files := make([]*inputFile, len(inputs))
	for i, buf := range inputs {
		file, err := parseInput(buf)
		if err != nil {
			return nil, fmt.Errorf("input %v: %w", i, err)
		}
		files[i] = file
	}

	// Audio is merged only when the first input carries it. Every later
	// input must then carry it too, half-present audio cannot be described
	// by one sample table.
	withAudio := files[0].audio != nil
	if withAudio {
		for i, file := range files {
			if file.audio == nil {
				return nil, fmt.Errorf("input %v: %w: audio trak", i, ErrMissingBox)
			}
		}
	}

	// Final layout is ftyp, mdat, moov. Chunk offsets only depend on the
	// fixed prefix before the mdat payload, not on the moov size.
	ftyp := &mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', '4'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', '4'}},
		},
	}
	prefix := uint64(8+ftyp.Size()) + 8

	segments := make([][]byte, len(files))
	regionOffsets := make([]uint64, len(files))
	pos := prefix
	for i, file := range files {
		segments[i] = file.mdat
		regionOffsets[i] = pos
		pos += uint64(len(file.mdat))
	}

	videoTracks := make([]*track, len(files))
	for i, file := range files {
		videoTracks[i] = file.video
	}
	video, err := mergeTracks(videoTracks, regionOffsets)
	if err != nil {
		return nil, fmt.Errorf("video track: %w", err)
	}

	var audio *mergedTrack
	if withAudio {
		audioTracks := make([]*track, len(files))
		for i, file := range files {
			audioTracks[i] = file.audio
		}
		if audio, err = mergeTracks(audioTracks, regionOffsets); err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
	}

	moov, err := generateMoov(video, audio, files[0].movieTimescale)
	if err != nil {
		return nil, err
	}

	out := &bytes.Buffer{}
	w := bitio.NewWriter(out)

	if _, err := mp4.WriteSingleBox(w, ftyp); err != nil {
		return nil, fmt.Errorf("write ftyp: %w", err)
	}
	if _, err := mp4.WriteSingleBox(w, &mp4.Mdat{Segments: segments}); err != nil {
		return nil, fmt.Errorf("write mdat: %w", err)
	}
	if err := moov.Marshal(w); err != nil {
		return nil, fmt.Errorf("write moov: %w", err)
	}
	return out.Bytes(), nil
}

func generateMoov(video *mergedTrack, audio *mergedTrack, movieTimescale uint32) (mp4.Boxes, error) {
	/*
	   moov
	   - mvhd
	   - trak (video)
	   - trak (audio)
	*/

	movieDuration := video.duration * uint64(movieTimescale) / uint64(video.timescale)

	nextTrackID := uint32(videoTrackID + 1)
	if audio != nil {
		nextTrackID = audioTrackID + 1
	}

	mvhd := &mp4.Mvhd{
		Timescale:   movieTimescale,
		Rate:        65536,
		Volume:      256,
		Matrix:      unityMatrix,
		NextTrackID: nextTrackID,
	}
	if movieDuration > math.MaxUint32 {
		mvhd.FullBox.Version = 1
		mvhd.DurationV1 = movieDuration
	} else {
		mvhd.DurationV0 = uint32(movieDuration)
	}

	moov := mp4.Boxes{
		Box:      &mp4.Moov{},
		Children: []mp4.Boxes{{Box: mvhd}},
	}

	videoTrak, err := generateTrak(video, videoTrackID, movieDuration)
	if err != nil {
		return mp4.Boxes{}, err
	}
	moov.Children = append(moov.Children, videoTrak)

	if audio != nil {
		audioTrak, err := generateTrak(audio, audioTrackID, movieDuration)
		if err != nil {
			return mp4.Boxes{}, err
		}
		moov.Children = append(moov.Children, audioTrak)
	}
	return moov, nil
}

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func generateTrak(m *mergedTrack, trackID uint32, movieDuration uint64) (mp4.Boxes, error) {
	/*
	   trak
	   - tkhd
	   - edts
	     - elst
	   - mdia
	     - mdhd
	     - hdlr
	     - minf
	*/

	isAudio := m.handler == [4]byte{'s', 'o', 'u', 'n'}

	tkhd := &mp4.Tkhd{
		FullBox: mp4.FullBox{
			Flags: [3]byte{0, 0, 3}, // Enabled and in movie.
		},
		TrackID: trackID,
		Matrix:  unityMatrix,
	}
	if movieDuration > math.MaxUint32 {
		tkhd.FullBox.Version = 1
		tkhd.DurationV1 = movieDuration
	} else {
		tkhd.DurationV0 = uint32(movieDuration)
	}
	if isAudio {
		tkhd.Volume = 256
		tkhd.AlternateGroup = 1
	} else {
		tkhd.Width = m.width
		tkhd.Height = m.height
	}

	mdhd := &mp4.Mdhd{
		Timescale: m.timescale,
		Language:  [3]byte{'u', 'n', 'd'},
	}
	if m.duration > math.MaxUint32 {
		mdhd.FullBox.Version = 1
		mdhd.DurationV1 = m.duration
	} else {
		mdhd.DurationV0 = uint32(m.duration)
	}

	hdlr := &mp4.Hdlr{
		HandlerType: [4]byte{'v', 'i', 'd', 'e'},
		Name:        "VideoHandler",
	}
	if isAudio {
		hdlr.HandlerType = [4]byte{'s', 'o', 'u', 'n'}
		hdlr.Name = "SoundHandler"
	}

	minf, err := generateMinf(m, isAudio)
	if err != nil {
		return mp4.Boxes{}, err
	}

	trak := mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: tkhd},
			generateEdts(movieDuration),
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: mdhd},
					{Box: hdlr},
					minf,
				},
			},
		},
	}
	return trak, nil
}

// generateEdts synthesizes the single edit spanning the whole merged
// presentation. Strict players refuse to seek past the first segment
// without it.
func generateEdts(movieDuration uint64) mp4.Boxes {
	entry := mp4.ElstEntry{
		MediaRateInteger: 1,
	}
	elst := &mp4.Elst{EntryCount: 1}
	if movieDuration > math.MaxUint32 {
		elst.FullBox.Version = 1
		entry.SegmentDurationV1 = movieDuration
		entry.MediaTimeV1 = 0
	} else {
		entry.SegmentDurationV0 = uint32(movieDuration)
		entry.MediaTimeV0 = 0
	}
	elst.Entries = []mp4.ElstEntry{entry}

	return mp4.Boxes{
		Box:      &mp4.Edts{},
		Children: []mp4.Boxes{{Box: elst}},
	}
}

func generateMinf(m *mergedTrack, isAudio bool) (mp4.Boxes, error) {
	/*
	   minf
	   - vmhd | smhd
	   - dinf
	     - dref
	       - url
	   - stbl
	     - stsd
	     - stts
	     - stss (only if an input had one)
	     - ctts (only if an input had B-frames)
	     - stsc
	     - stsz
	     - stco
	*/

	stbl := mp4.Boxes{
		Box: &mp4.Stbl{},
		Children: []mp4.Boxes{
			{Box: &mp4.Raw{BoxType: mp4.TypeStsd, Payload: m.stsd}},
			{Box: &mp4.Stts{Entries: m.stts}},
		},
	}
	if m.hasStss {
		stbl.Children = append(stbl.Children, mp4.Boxes{
			Box: &mp4.Stss{SampleNumbers: m.stss},
		})
	}
	if m.hasCtts {
		stbl.Children = append(stbl.Children, mp4.Boxes{
			Box: &mp4.Ctts{
				FullBox: mp4.FullBox{Version: 1},
				Entries: m.ctts,
			},
		})
	}

	stsz := &mp4.Stsz{SampleCount: m.sampleCount}
	if m.uniformSize != 0 {
		stsz.SampleSize = m.uniformSize
	} else {
		stsz.EntrySizes = m.sizes
	}

	stco := &mp4.Stco{ChunkOffsets: make([]uint32, len(m.chunkOffsets))}
	for i, offset := range m.chunkOffsets {
		if offset > math.MaxUint32 {
			return mp4.Boxes{}, fmt.Errorf("%w: chunk offset %v", mp4.ErrBoxTooLarge, offset)
		}
		stco.ChunkOffsets[i] = uint32(offset)
	}

	stbl.Children = append(stbl.Children,
		mp4.Boxes{Box: &mp4.Stsc{Entries: m.stsc}},
		mp4.Boxes{Box: stsz},
		mp4.Boxes{Box: stco},
	)

	var header mp4.ImmutableBox = &mp4.Vmhd{
		FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}},
	}
	if isAudio {
		header = &mp4.Smhd{}
	}

	minf := mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			{Box: header},
			{
				Box: &mp4.Dinf{},
				Children: []mp4.Boxes{
					{
						Box: &mp4.Dref{EntryCount: 1},
						Children: []mp4.Boxes{
							{Box: &mp4.URL{
								FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}},
							}},
						},
					},
				},
			},
			stbl,
		},
	}
	return minf, nil
}
