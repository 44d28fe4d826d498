package concat

import (
	"bytes"
	"testing"

	"stitcher/pkg/mp4"
	"stitcher/pkg/mp4/bitio"

	"github.com/stretchr/testify/require"
)

func TestParseInputMissingBoxes(t *testing.T) {
	serialize := func(t *testing.T, boxes ...mp4.ImmutableBox) []byte {
		t.Helper()
		buf := &bytes.Buffer{}
		w := bitio.NewWriter(buf)
		for _, box := range boxes {
			_, err := mp4.WriteSingleBox(w, box)
			require.NoError(t, err)
		}
		return buf.Bytes()
	}

	t.Run("moov", func(t *testing.T) {
		buf := serialize(t, &mp4.Ftyp{MajorBrand: [4]byte{'i', 's', 'o', '4'}})
		_, err := parseInput(buf)
		require.ErrorIs(t, err, ErrMissingBox)
		require.Contains(t, err.Error(), "moov")
	})

	t.Run("mdat", func(t *testing.T) {
		buf := serialize(t, &mp4.Moov{})
		_, err := parseInput(buf)
		require.ErrorIs(t, err, ErrMissingBox)
		require.Contains(t, err.Error(), "mdat")
	})

	t.Run("mvhd", func(t *testing.T) {
		buf := serialize(t, &mp4.Mdat{}, &mp4.Moov{})
		_, err := parseInput(buf)
		require.ErrorIs(t, err, ErrMissingBox)
		require.Contains(t, err.Error(), "mvhd")
	})

	t.Run("videoTrak", func(t *testing.T) {
		buf := buildSegment(t, 1000, testTrack{
			handler: [4]byte{'s', 'o', 'u', 'n'},
			scale:   48000,
			chunks:  [][]uint32{{4}},
			delta:   1024,
		})
		_, err := parseInput(buf)
		require.ErrorIs(t, err, ErrMissingBox)
		require.Contains(t, err.Error(), "video trak")
	})

	sampleBoxes := []mp4.BoxType{
		mp4.TypeStsd,
		mp4.TypeStts,
		mp4.TypeStsc,
		mp4.TypeStsz,
		mp4.TypeStco,
	}
	for _, typ := range sampleBoxes {
		typ := typ
		t.Run(typ.String(), func(t *testing.T) {
			track := videoTrack(90000, 3000, 5)
			track.omit = []mp4.BoxType{typ}
			buf := buildSegment(t, 1000, track)

			_, err := parseInput(buf)
			require.ErrorIs(t, err, ErrMissingBox)
		})
	}
}

func TestParseInputCo64(t *testing.T) {
	track := videoTrack(90000, 3000, 3, 4)
	track.useCo64 = true
	buf := buildSegment(t, 1000, track)

	file, err := parseInput(buf)
	require.NoError(t, err)
	require.Equal(t, []uint64{28}, file.video.chunkOffsets)
	require.Equal(t, []uint64{0}, file.video.chunkPos)
}

func TestParseInputUniformStsz(t *testing.T) {
	track := videoTrack(90000, 3000, 8, 8, 8)
	track.uniform = true
	buf := buildSegment(t, 1000, track)

	file, err := parseInput(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(8), file.video.uniformSize)
	require.Equal(t, []uint32{8, 8, 8}, file.video.sizes)
}

func TestParseInputInvalidTables(t *testing.T) {
	t.Run("sttsCountMismatch", func(t *testing.T) {
		track := videoTrack(90000, 0, 5, 5)
		track.stts = []mp4.SttsEntry{{SampleCount: 3, SampleDelta: 3000}}
		buf := buildSegment(t, 1000, track)

		_, err := parseInput(buf)
		require.ErrorIs(t, err, mp4.ErrMalformed)
	})

	t.Run("stssOutOfRange", func(t *testing.T) {
		track := videoTrack(90000, 3000, 5, 5)
		track.hasStss = true
		track.stss = []uint32{5}
		buf := buildSegment(t, 1000, track)

		_, err := parseInput(buf)
		require.ErrorIs(t, err, mp4.ErrMalformed)
	})

	t.Run("chunkBeforeMdat", func(t *testing.T) {
		buf := buildSegment(t, 1000, videoTrack(90000, 3000, 5))

		// Point the first chunk into the file header.
		pos := bytes.Index(buf, []byte("stco"))
		require.NotEqual(t, -1, pos)
		copy(buf[pos+12:pos+16], []byte{0, 0, 0, 5})

		_, err := parseInput(buf)
		require.ErrorIs(t, err, mp4.ErrMalformed)
	})
}

func TestParseHeaderVersions(t *testing.T) {
	t.Run("mvhdV1", func(t *testing.T) {
		payload := make([]byte, 112)
		payload[0] = 1
		be.PutUint32(payload[20:], 90000)

		scale, err := parseMvhdTimescale(payload)
		require.NoError(t, err)
		require.Equal(t, uint32(90000), scale)
	})

	t.Run("mdhdShort", func(t *testing.T) {
		_, err := parseMdhdTimescale([]byte{0, 0, 0})
		require.ErrorIs(t, err, mp4.ErrMalformed)
	})

	t.Run("tkhdV1", func(t *testing.T) {
		payload := make([]byte, 96)
		payload[0] = 1
		be.PutUint32(payload[88:], 1280<<16)
		be.PutUint32(payload[92:], 720<<16)

		var tr track
		require.NoError(t, parseTkhd(payload, &tr))
		require.Equal(t, uint32(1280<<16), tr.width)
		require.Equal(t, uint32(720<<16), tr.height)
	})
}

func TestParseCttsVersions(t *testing.T) {
	payload := []byte{
		0,                // version
		0x00, 0x00, 0x00, // flags
		0x00, 0x00, 0x00, 0x01, // entry count
		0x00, 0x00, 0x00, 0x02, // sample count
		0x00, 0x00, 0x0b, 0xb8, // sample offset
	}
	var tr track
	require.NoError(t, parseCtts(payload, &tr))
	require.Equal(t, []mp4.CttsEntry{{
		SampleCount:    2,
		SampleOffsetV0: 3000,
		SampleOffsetV1: 3000,
	}}, tr.ctts)

	negative := []byte{
		1,                // version
		0x00, 0x00, 0x00, // flags
		0x00, 0x00, 0x00, 0x01, // entry count
		0x00, 0x00, 0x00, 0x01, // sample count
		0xff, 0xff, 0xf4, 0x48, // sample offset
	}
	tr = track{}
	require.NoError(t, parseCtts(negative, &tr))
	require.Equal(t, int32(-3000), tr.ctts[0].SampleOffsetV1)
}

func TestTrackDuration(t *testing.T) {
	tr := track{stts: []mp4.SttsEntry{
		{SampleCount: 48, SampleDelta: 1024},
		{SampleCount: 2, SampleDelta: 512},
	}}
	require.Equal(t, uint64(50176), tr.duration())
}
