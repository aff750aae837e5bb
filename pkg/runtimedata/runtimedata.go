// Package runtimedata defines RuntimeData, the tagged-union payload type
// carried between pipeline nodes, and its zero-copy wire codec.
package runtimedata

import "github.com/mediarun/pipeline-runtime/pkg/rterr"

// Kind errors specific to the runtimedata codec.
const (
	KindEncoding rterr.Kind = "runtimedata.encoding"
	KindDecoding rterr.Kind = "runtimedata.decoding"
)

// Variant discriminates the RuntimeData tagged union.
type Variant uint8

const (
	VariantAudio Variant = iota + 1
	VariantVideo
	VariantNumpy
	VariantText
	VariantJSON
	VariantBinary
)

// EndOfBatch is the reserved type_tag used by multi-output nodes to signal
// the end of a generator's output stream. It is never a valid payload
// variant; Decode rejects it with a KindDecoding error (spec §9 Open
// Question 1).
const EndOfBatch Variant = 0xFF

func (v Variant) String() string {
	switch v {
	case VariantAudio:
		return "audio"
	case VariantVideo:
		return "video"
	case VariantNumpy:
		return "numpy"
	case VariantText:
		return "text"
	case VariantJSON:
		return "json"
	case VariantBinary:
		return "binary"
	case EndOfBatch:
		return "end_of_batch"
	default:
		return "unknown"
	}
}

// PixelFormat names a supported video pixel layout.
type PixelFormat string

// I420 is the default pixel format (spec §3.1).
const I420 PixelFormat = "I420"

// RuntimeData is the tagged-union payload exchanged between pipeline
// nodes. Exactly one of the typed fields is meaningful, selected by Kind.
// All buffer fields are treated as shared, immutable once constructed:
// consumers must never mutate Samples/Frame/Bytes in place.
type RuntimeData struct {
	kind Variant

	// Audio
	Samples    []float32
	SampleRate uint32
	Channels   uint8

	// Video
	Frame       []byte
	Width       uint32
	Height      uint32
	PixelFormat PixelFormat
	PTSMicros   int64

	// Numpy
	NumpyBytes   []byte
	Shape        []uint64
	Strides      []int64
	DType        string
	CContiguous  bool
	FContiguous  bool

	// Text / JSON
	Text string

	// Binary
	Bytes    []byte
	MimeHint string
}

// Kind reports which variant this RuntimeData holds.
func (r RuntimeData) Kind() Variant { return r.kind }

// NewAudio constructs an Audio variant. len(samples) must equal
// frames*channels; this is not re-validated here, callers are expected to
// construct consistent payloads (internal boundary, not a user-input
// boundary).
func NewAudio(samples []float32, sampleRate uint32, channels uint8) RuntimeData {
	return RuntimeData{kind: VariantAudio, Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// NewVideo constructs a Video variant.
func NewVideo(frame []byte, width, height uint32, format PixelFormat, ptsMicros int64) RuntimeData {
	return RuntimeData{kind: VariantVideo, Frame: frame, Width: width, Height: height, PixelFormat: format, PTSMicros: ptsMicros}
}

// NewNumpy constructs a Numpy variant. Exactly one of cContig/fContig may
// be true for non-1-D shapes (spec §3.1 invariant); 1-D arrays may set
// both.
func NewNumpy(data []byte, shape []uint64, strides []int64, dtype string, cContig, fContig bool) RuntimeData {
	return RuntimeData{
		kind: VariantNumpy, NumpyBytes: data, Shape: shape, Strides: strides,
		DType: dtype, CContiguous: cContig, FContiguous: fContig,
	}
}

// NewText constructs a Text variant.
func NewText(s string) RuntimeData { return RuntimeData{kind: VariantText, Text: s} }

// NewJSON constructs a JSON variant; value is carried pre-marshaled as
// text so the codec never needs reflection in the hot path.
func NewJSON(rawJSON string) RuntimeData { return RuntimeData{kind: VariantJSON, Text: rawJSON} }

// NewBinary constructs a Binary variant.
func NewBinary(b []byte, mimeHint string) RuntimeData {
	return RuntimeData{kind: VariantBinary, Bytes: b, MimeHint: mimeHint}
}

// ItemSize returns the byte width of one element of dtype, or 0 if unknown.
func ItemSize(dtype string) int {
	switch dtype {
	case "float32", "int32":
		return 4
	case "float64":
		return 8
	case "int16":
		return 2
	default:
		return 0
	}
}
