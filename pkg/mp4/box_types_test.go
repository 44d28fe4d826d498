package mp4

import (
	"bytes"
	"testing"

	"stitcher/pkg/mp4/bitio"

	"github.com/stretchr/testify/require"
)

func TestBoxTypes(t *testing.T) {
	testCases := []struct {
		name string
		src  ImmutableBox
		bin  []byte
	}{
		{
			name: "ftyp",
			src: &Ftyp{
				MajorBrand:   [4]byte{'i', 's', 'o', '4'},
				MinorVersion: 512,
				CompatibleBrands: []CompatibleBrandElem{
					{CompatibleBrand: [4]byte{'i', 's', 'o', '4'}},
				},
			},
			bin: []byte{
				'i', 's', 'o', '4',
				0x00, 0x00, 0x02, 0x00, // minor version
				'i', 's', 'o', '4',
			},
		},
		{
			name: "raw",
			src: &Raw{
				BoxType: TypeStsd,
				Payload: []byte{0x01, 0x02, 0x03},
			},
			bin: []byte{0x01, 0x02, 0x03},
		},
		{
			name: "elst: version 0",
			src: &Elst{
				EntryCount: 1,
				Entries: []ElstEntry{{
					SegmentDurationV0: 12000,
					MediaTimeV0:       0,
					MediaRateInteger:  1,
				}},
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x01, // entry count
				0x00, 0x00, 0x2e, 0xe0, // segment duration
				0x00, 0x00, 0x00, 0x00, // media time
				0x00, 0x01, // media rate integer
				0x00, 0x00, // media rate fraction
			},
		},
		{
			name: "elst: version 1",
			src: &Elst{
				FullBox:    FullBox{Version: 1},
				EntryCount: 1,
				Entries: []ElstEntry{{
					SegmentDurationV1: 0x123456789a,
					MediaTimeV1:       0,
					MediaRateInteger:  1,
				}},
			},
			bin: []byte{
				1,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x01, // entry count
				0x00, 0x00, 0x00, 0x12, 0x34, 0x56, 0x78, 0x9a, // segment duration
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // media time
				0x00, 0x01, // media rate integer
				0x00, 0x00, // media rate fraction
			},
		},
		{
			name: "stts",
			src: &Stts{
				Entries: []SttsEntry{
					{SampleCount: 48, SampleDelta: 1024},
					{SampleCount: 2, SampleDelta: 512},
				},
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x02, // entry count
				0x00, 0x00, 0x00, 0x30, // sample count
				0x00, 0x00, 0x04, 0x00, // sample delta
				0x00, 0x00, 0x00, 0x02, // sample count
				0x00, 0x00, 0x02, 0x00, // sample delta
			},
		},
		{
			name: "stss",
			src: &Stss{
				SampleNumbers: []uint32{1, 49},
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x02, // entry count
				0x00, 0x00, 0x00, 0x01, // sample number
				0x00, 0x00, 0x00, 0x31, // sample number
			},
		},
		{
			name: "ctts: version 1",
			src: &Ctts{
				FullBox: FullBox{Version: 1},
				Entries: []CttsEntry{
					{SampleCount: 2, SampleOffsetV1: -1024},
				},
			},
			bin: []byte{
				1,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x01, // entry count
				0x00, 0x00, 0x00, 0x02, // sample count
				0xff, 0xff, 0xfc, 0x00, // sample offset
			},
		},
		{
			name: "stsc",
			src: &Stsc{
				Entries: []StscEntry{
					{FirstChunk: 1, SamplesPerChunk: 48, SampleDescriptionIndex: 1},
				},
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x01, // entry count
				0x00, 0x00, 0x00, 0x01, // first chunk
				0x00, 0x00, 0x00, 0x30, // samples per chunk
				0x00, 0x00, 0x00, 0x01, // sample description index
			},
		},
		{
			name: "stsz: uniform",
			src: &Stsz{
				SampleSize:  512,
				SampleCount: 48,
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x02, 0x00, // sample size
				0x00, 0x00, 0x00, 0x30, // sample count
			},
		},
		{
			name: "stsz: per sample",
			src: &Stsz{
				SampleCount: 2,
				EntrySizes:  []uint32{3, 5},
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x00, // sample size
				0x00, 0x00, 0x00, 0x02, // sample count
				0x00, 0x00, 0x00, 0x03, // entry size
				0x00, 0x00, 0x00, 0x05, // entry size
			},
		},
		{
			name: "stco",
			src: &Stco{
				ChunkOffsets: []uint32{28, 49180},
			},
			bin: []byte{
				0,                // version
				0x00, 0x00, 0x00, // flags
				0x00, 0x00, 0x00, 0x02, // entry count
				0x00, 0x00, 0x00, 0x1c, // chunk offset
				0x00, 0x00, 0xc0, 0x1c, // chunk offset
			},
		},
		{
			name: "mdat",
			src: &Mdat{
				Segments: [][]byte{{0x01, 0x02}, {0x03}},
			},
			bin: []byte{0x01, 0x02, 0x03},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			w := bitio.NewWriter(buf)

			err := tc.src.Marshal(w)
			require.NoError(t, err)
			require.Equal(t, tc.bin, buf.Bytes())
			require.Equal(t, len(tc.bin), tc.src.Size())
		})
	}
}

func TestWriteSingleBox(t *testing.T) {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	n, err := WriteSingleBox(w, &Mdat{Segments: [][]byte{{0xaa, 0xbb}}})
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x0a,
		'm', 'd', 'a', 't',
		0xaa, 0xbb,
	}, buf.Bytes())
}

func TestBoxesMarshal(t *testing.T) {
	boxes := Boxes{
		Box: &Moov{},
		Children: []Boxes{
			{Box: &Trak{}},
			{Box: &Trak{}},
		},
	}
	require.Equal(t, 24, boxes.Size())

	buf := &bytes.Buffer{}
	err := boxes.Marshal(bitio.NewWriter(buf))
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x18,
		'm', 'o', 'o', 'v',
		0x00, 0x00, 0x00, 0x08,
		't', 'r', 'a', 'k',
		0x00, 0x00, 0x00, 0x08,
		't', 'r', 'a', 'k',
	}, buf.Bytes())
}
