// Package concat merges MP4 segments with identical codec configuration
// into a single continuous presentation without touching sample data.
package concat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"stitcher/pkg/mp4"
)

// ErrMissingBox mandatory sample-table box absent.
var ErrMissingBox = errors.New("missing required box")

// track is the sample table of one track in one input file.
type track struct {
	handler   [4]byte
	timescale uint32
	stsd      []byte // raw stsd payload, re-emitted byte-exact.

	// tkhd presentation fields, video only.
	width  uint32 // fixed-point 16.16
	height uint32 // fixed-point 16.16

	sampleCount uint32
	sizes       []uint32
	uniformSize uint32 // non-zero when stsz declared a uniform size.

	chunkOffsets []uint64 // absolute within the source file.
	chunkPos     []uint64 // relative to the mdat payload start.

	stsc []mp4.StscEntry
	stts []mp4.SttsEntry

	// nil stss means every sample is a sync sample.
	stss    []uint32
	hasStss bool

	// nil ctts means decode order equals display order.
	ctts []mp4.CttsEntry
}

// duration in media timescale units.
func (t *track) duration() uint64 {
	var total uint64
	for _, entry := range t.stts {
		total += uint64(entry.SampleCount) * uint64(entry.SampleDelta)
	}
	return total
}

// inputFile is one fully extracted input.
type inputFile struct {
	movieTimescale uint32
	video          *track
	audio          *track
	mdat           []byte // payload only, borrowed from the input buffer.
}

// parseInput parses one input buffer and extracts its sample tables.
func parseInput(buf []byte) (*inputFile, error) {
	nodes, err := mp4.Parse(buf)
	if err != nil {
		return nil, err
	}

	moov := mp4.FindNode(nodes, mp4.TypeMoov)
	if moov == nil {
		return nil, fmt.Errorf("%w: moov", ErrMissingBox)
	}
	mdat := mp4.FindNode(nodes, mp4.TypeMdat)
	if mdat == nil {
		return nil, fmt.Errorf("%w: mdat", ErrMissingBox)
	}

	mvhd := moov.Find(mp4.TypeMvhd)
	if mvhd == nil {
		return nil, fmt.Errorf("%w: mvhd", ErrMissingBox)
	}
	movieTimescale, err := parseMvhdTimescale(mvhd.Payload)
	if err != nil {
		return nil, err
	}

	file := &inputFile{
		movieTimescale: movieTimescale,
		mdat:           mdat.Payload,
	}

	for _, trak := range moov.FindAll(mp4.TypeTrak) {
		t, err := extractTrack(trak, uint64(mdat.Offset))
		if err != nil {
			return nil, err
		}
		switch t.handler {
		case [4]byte{'v', 'i', 'd', 'e'}:
			if file.video == nil {
				file.video = t
			}
		case [4]byte{'s', 'o', 'u', 'n'}:
			if file.audio == nil {
				file.audio = t
			}
		}
	}

	if file.video == nil {
		return nil, fmt.Errorf("%w: video trak", ErrMissingBox)
	}
	return file, nil
}

// extractTrack derives the sample table of one trak.
// mdatStart is the absolute offset of the mdat payload in the file,
// used to record chunk positions relative to the payload.
func extractTrack(trak *mp4.Node, mdatStart uint64) (*track, error) {
	mdia := trak.Find(mp4.TypeMdia)
	if mdia == nil {
		return nil, fmt.Errorf("%w: mdia", ErrMissingBox)
	}
	hdlr := mdia.Find(mp4.TypeHdlr)
	if hdlr == nil {
		return nil, fmt.Errorf("%w: hdlr", ErrMissingBox)
	}
	if len(hdlr.Payload) < 12 {
		return nil, fmt.Errorf("%w: hdlr: short payload", mp4.ErrMalformed)
	}
	mdhd := mdia.Find(mp4.TypeMdhd)
	if mdhd == nil {
		return nil, fmt.Errorf("%w: mdhd", ErrMissingBox)
	}
	minf := mdia.Find(mp4.TypeMinf)
	if minf == nil {
		return nil, fmt.Errorf("%w: minf", ErrMissingBox)
	}
	stbl := minf.Find(mp4.TypeStbl)
	if stbl == nil {
		return nil, fmt.Errorf("%w: stbl", ErrMissingBox)
	}
	stsd := stbl.Find(mp4.TypeStsd)
	if stsd == nil {
		return nil, fmt.Errorf("%w: stsd", ErrMissingBox)
	}

	t := &track{stsd: stsd.Payload}
	copy(t.handler[:], hdlr.Payload[8:12])

	var err error
	if t.timescale, err = parseMdhdTimescale(mdhd.Payload); err != nil {
		return nil, err
	}
	if tkhd := trak.Find(mp4.TypeTkhd); tkhd != nil {
		if err := parseTkhd(tkhd.Payload, t); err != nil {
			return nil, err
		}
	}

	if err := extractSampleTable(stbl, mdatStart, t); err != nil {
		return nil, err
	}
	return t, nil
}

func extractSampleTable(stbl *mp4.Node, mdatStart uint64, t *track) error {
	stsz := stbl.Find(mp4.TypeStsz)
	if stsz == nil {
		return fmt.Errorf("%w: stsz", ErrMissingBox)
	}
	if err := parseStsz(stsz.Payload, t); err != nil {
		return err
	}

	stco := stbl.Find(mp4.TypeStco)
	co64 := stbl.Find(mp4.TypeCo64)
	switch {
	case stco != nil:
		if err := parseStco(stco.Payload, t); err != nil {
			return err
		}
	case co64 != nil:
		if err := parseCo64(co64.Payload, t); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: stco", ErrMissingBox)
	}

	stsc := stbl.Find(mp4.TypeStsc)
	if stsc == nil {
		return fmt.Errorf("%w: stsc", ErrMissingBox)
	}
	if err := parseStsc(stsc.Payload, t); err != nil {
		return err
	}

	stts := stbl.Find(mp4.TypeStts)
	if stts == nil {
		return fmt.Errorf("%w: stts", ErrMissingBox)
	}
	if err := parseStts(stts.Payload, t); err != nil {
		return err
	}

	if stss := stbl.Find(mp4.TypeStss); stss != nil {
		if err := parseStss(stss.Payload, t); err != nil {
			return err
		}
	}
	if ctts := stbl.Find(mp4.TypeCtts); ctts != nil {
		if err := parseCtts(ctts.Payload, t); err != nil {
			return err
		}
	}

	// Chunk positions relative to the mdat payload.
	t.chunkPos = make([]uint64, len(t.chunkOffsets))
	for i, offset := range t.chunkOffsets {
		if offset < mdatStart {
			return fmt.Errorf("%w: chunk %v offset %v before mdat payload",
				mp4.ErrMalformed, i+1, offset)
		}
		t.chunkPos[i] = offset - mdatStart
	}

	return validateTable(t)
}

// validateTable checks cross-box consistency.
func validateTable(t *track) error {
	var chunkSamples uint64
	for i, entry := range t.stsc {
		lastChunk := uint32(len(t.chunkOffsets)) + 1
		if i+1 < len(t.stsc) {
			lastChunk = t.stsc[i+1].FirstChunk
		}
		if entry.FirstChunk == 0 || lastChunk < entry.FirstChunk {
			return fmt.Errorf("%w: stsc: non-monotonic first chunk", mp4.ErrMalformed)
		}
		nChunks := lastChunk - entry.FirstChunk
		chunkSamples += uint64(nChunks) * uint64(entry.SamplesPerChunk)
	}
	if chunkSamples != uint64(t.sampleCount) {
		return fmt.Errorf("%w: stsc maps %v samples, stsz has %v",
			mp4.ErrMalformed, chunkSamples, t.sampleCount)
	}

	var timedSamples uint64
	for _, entry := range t.stts {
		timedSamples += uint64(entry.SampleCount)
	}
	if timedSamples != uint64(t.sampleCount) {
		return fmt.Errorf("%w: stts covers %v samples, stsz has %v",
			mp4.ErrMalformed, timedSamples, t.sampleCount)
	}

	for _, number := range t.stss {
		if number == 0 || number > t.sampleCount {
			return fmt.Errorf("%w: stss sample number %v out of range",
				mp4.ErrMalformed, number)
		}
	}
	return nil
}

/*********************** payload decoding ************************/

var be = binary.BigEndian

func shortPayload(name string) error {
	return fmt.Errorf("%w: %v: short payload", mp4.ErrMalformed, name)
}

func parseMvhdTimescale(payload []byte) (uint32, error) {
	if len(payload) < 1 {
		return 0, shortPayload("mvhd")
	}
	pos := 12 // version 0: creation and modification times are 32-bit.
	if payload[0] == 1 {
		pos = 20
	}
	if len(payload) < pos+4 {
		return 0, shortPayload("mvhd")
	}
	return be.Uint32(payload[pos:]), nil
}

func parseMdhdTimescale(payload []byte) (uint32, error) {
	if len(payload) < 1 {
		return 0, shortPayload("mdhd")
	}
	pos := 12
	if payload[0] == 1 {
		pos = 20
	}
	if len(payload) < pos+4 {
		return 0, shortPayload("mdhd")
	}
	return be.Uint32(payload[pos:]), nil
}

func parseTkhd(payload []byte, t *track) error {
	if len(payload) < 1 {
		return shortPayload("tkhd")
	}
	pos := 76 // version 0: width after times, ids, duration, layer and matrix.
	if payload[0] == 1 {
		pos = 88
	}
	if len(payload) < pos+8 {
		return shortPayload("tkhd")
	}
	t.width = be.Uint32(payload[pos:])
	t.height = be.Uint32(payload[pos+4:])
	return nil
}

func parseStsz(payload []byte, t *track) error {
	if len(payload) < 12 {
		return shortPayload("stsz")
	}
	uniformSize := be.Uint32(payload[4:])
	count := be.Uint32(payload[8:])

	t.sampleCount = count
	t.uniformSize = uniformSize
	t.sizes = make([]uint32, count)

	if uniformSize != 0 {
		// Uniform size, no per-sample array in the file.
		// Materialized so the merge logic has one shape to deal with.
		for i := range t.sizes {
			t.sizes[i] = uniformSize
		}
		return nil
	}

	if len(payload) < 12+int(count)*4 {
		return shortPayload("stsz")
	}
	for i := range t.sizes {
		t.sizes[i] = be.Uint32(payload[12+i*4:])
	}
	return nil
}

func parseStco(payload []byte, t *track) error {
	if len(payload) < 8 {
		return shortPayload("stco")
	}
	count := int(be.Uint32(payload[4:]))
	if len(payload) < 8+count*4 {
		return shortPayload("stco")
	}
	t.chunkOffsets = make([]uint64, count)
	for i := range t.chunkOffsets {
		t.chunkOffsets[i] = uint64(be.Uint32(payload[8+i*4:]))
	}
	return nil
}

func parseCo64(payload []byte, t *track) error {
	if len(payload) < 8 {
		return shortPayload("co64")
	}
	count := int(be.Uint32(payload[4:]))
	if len(payload) < 8+count*8 {
		return shortPayload("co64")
	}
	t.chunkOffsets = make([]uint64, count)
	for i := range t.chunkOffsets {
		t.chunkOffsets[i] = be.Uint64(payload[8+i*8:])
	}
	return nil
}

func parseStsc(payload []byte, t *track) error {
	if len(payload) < 8 {
		return shortPayload("stsc")
	}
	count := int(be.Uint32(payload[4:]))
	if len(payload) < 8+count*12 {
		return shortPayload("stsc")
	}
	// Kept as runs, expanding per sample would defeat the format.
	t.stsc = make([]mp4.StscEntry, count)
	for i := range t.stsc {
		t.stsc[i] = mp4.StscEntry{
			FirstChunk:             be.Uint32(payload[8+i*12:]),
			SamplesPerChunk:        be.Uint32(payload[12+i*12:]),
			SampleDescriptionIndex: be.Uint32(payload[16+i*12:]),
		}
	}
	return nil
}

func parseStts(payload []byte, t *track) error {
	if len(payload) < 8 {
		return shortPayload("stts")
	}
	count := int(be.Uint32(payload[4:]))
	if len(payload) < 8+count*8 {
		return shortPayload("stts")
	}
	t.stts = make([]mp4.SttsEntry, count)
	for i := range t.stts {
		t.stts[i] = mp4.SttsEntry{
			SampleCount: be.Uint32(payload[8+i*8:]),
			SampleDelta: be.Uint32(payload[12+i*8:]),
		}
	}
	return nil
}

func parseStss(payload []byte, t *track) error {
	if len(payload) < 8 {
		return shortPayload("stss")
	}
	count := int(be.Uint32(payload[4:]))
	if len(payload) < 8+count*4 {
		return shortPayload("stss")
	}
	t.hasStss = true
	t.stss = make([]uint32, count)
	for i := range t.stss {
		t.stss[i] = be.Uint32(payload[8+i*4:])
	}
	return nil
}

func parseCtts(payload []byte, t *track) error {
	if len(payload) < 8 {
		return shortPayload("ctts")
	}
	version := payload[0]
	count := int(be.Uint32(payload[4:]))
	if len(payload) < 8+count*8 {
		return shortPayload("ctts")
	}
	// Offsets are normalized to signed form, version 0 files
	// can only hold non-negative offsets anyway.
	t.ctts = make([]mp4.CttsEntry, count)
	for i := range t.ctts {
		entry := mp4.CttsEntry{
			SampleCount:    be.Uint32(payload[8+i*8:]),
			SampleOffsetV1: int32(be.Uint32(payload[12+i*8:])),
		}
		if version == 0 {
			entry.SampleOffsetV0 = be.Uint32(payload[12+i*8:])
		}
		t.ctts[i] = entry
	}
	return nil
}
