package runtimedata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sigurn/crc16"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// crc16Table is the CCITT-FALSE table used for the optional diagnostic
// trailer (SPEC_FULL §3.7). Decode never verifies the trailer.
var crc16Table = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Encode serializes r per the wire format in spec §4.1/§6.3: a one-byte
// type_tag, a four-byte little-endian total_size, then the type-specific
// body. When withChecksum is true, a trailing 2-byte CRC16/CCITT-FALSE
// over tag+size+body is appended and total_size is NOT adjusted to
// include it — the trailer is a pure diagnostic suffix a decoder without
// checksum verification enabled can ignore.
func Encode(r RuntimeData, withChecksum bool) ([]byte, error) {
	var body bytes.Buffer

	switch r.kind {
	case VariantAudio:
		if err := binary.Write(&body, binary.LittleEndian, r.SampleRate); err != nil {
			return nil, wrapEncode(err)
		}
		body.WriteByte(r.Channels)
		frameCount := uint32(0)
		if r.Channels > 0 {
			frameCount = uint32(len(r.Samples)) / uint32(r.Channels)
		}
		if err := binary.Write(&body, binary.LittleEndian, frameCount); err != nil {
			return nil, wrapEncode(err)
		}
		for _, s := range r.Samples {
			if err := binary.Write(&body, binary.LittleEndian, math.Float32bits(s)); err != nil {
				return nil, wrapEncode(err)
			}
		}

	case VariantVideo:
		if err := binary.Write(&body, binary.LittleEndian, r.Width); err != nil {
			return nil, wrapEncode(err)
		}
		if err := binary.Write(&body, binary.LittleEndian, r.Height); err != nil {
			return nil, wrapEncode(err)
		}
		writeLengthPrefixedString(&body, string(r.PixelFormat))
		if err := binary.Write(&body, binary.LittleEndian, uint64(r.PTSMicros)); err != nil {
			return nil, wrapEncode(err)
		}
		if err := binary.Write(&body, binary.LittleEndian, uint32(len(r.Frame))); err != nil {
			return nil, wrapEncode(err)
		}
		body.Write(r.Frame)

	case VariantNumpy:
		if err := binary.Write(&body, binary.LittleEndian, uint16(len(r.Shape))); err != nil {
			return nil, wrapEncode(err)
		}
		for _, dim := range r.Shape {
			if err := binary.Write(&body, binary.LittleEndian, dim); err != nil {
				return nil, wrapEncode(err)
			}
		}
		for _, stride := range r.Strides {
			if err := binary.Write(&body, binary.LittleEndian, stride); err != nil {
				return nil, wrapEncode(err)
			}
		}
		writeLengthPrefixedString16(&body, r.DType)
		var flags uint8
		if r.CContiguous {
			flags |= 0x1
		}
		if r.FContiguous {
			flags |= 0x2
		}
		body.WriteByte(flags)
		body.Write(r.NumpyBytes)

	case VariantText:
		writeLengthPrefixedString(&body, r.Text)

	case VariantJSON:
		writeLengthPrefixedString(&body, r.Text)

	case VariantBinary:
		writeLengthPrefixedString(&body, r.MimeHint)
		if err := binary.Write(&body, binary.LittleEndian, uint32(len(r.Bytes))); err != nil {
			return nil, wrapEncode(err)
		}
		body.Write(r.Bytes)

	default:
		return nil, wrapEncode(fmt.Errorf("unsupported variant %d", r.kind))
	}

	out := make([]byte, 0, 5+body.Len()+2)
	out = append(out, byte(r.kind))
	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, uint32(body.Len()))
	out = append(out, sizeBuf...)
	out = append(out, body.Bytes()...)

	if withChecksum {
		sum := crc16.Checksum(out, crc16Table)
		checksumBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(checksumBuf, sum)
		out = append(out, checksumBuf...)
	}

	return out, nil
}

// Decode parses a wire frame produced by Encode. Bytes after the declared
// body, such as a checksum trailer, are ignored; the checksum is never
// verified.
func Decode(frame []byte) (RuntimeData, error) {
	if len(frame) < 5 {
		return RuntimeData{}, wrapDecode(fmt.Errorf("frame too short: %d bytes", len(frame)))
	}

	tag := Variant(frame[0])
	if tag == EndOfBatch {
		return RuntimeData{}, wrapDecode(fmt.Errorf("end-of-batch sentinel is not a decodable payload"))
	}

	totalSize := binary.LittleEndian.Uint32(frame[1:5])
	if uint32(len(frame)-5) < totalSize {
		return RuntimeData{}, wrapDecode(fmt.Errorf("truncated frame: declared %d, have %d", totalSize, len(frame)-5))
	}
	body := frame[5 : 5+int(totalSize)]
	r := bytes.NewReader(body)

	switch tag {
	case VariantAudio:
		var sampleRate uint32
		if err := binary.Read(r, binary.LittleEndian, &sampleRate); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		channelsByte, err := readByte(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		var frameCount uint32
		if err := binary.Read(r, binary.LittleEndian, &frameCount); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		total := int(frameCount) * int(channelsByte)
		samples := make([]float32, total)
		for i := 0; i < total; i++ {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return RuntimeData{}, wrapDecode(err)
			}
			samples[i] = math.Float32frombits(bits)
		}
		return NewAudio(samples, sampleRate, channelsByte), nil

	case VariantVideo:
		var width, height uint32
		if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		if err := binary.Read(r, binary.LittleEndian, &height); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		format, err := readLengthPrefixedString(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		var ptsRaw uint64
		if err := binary.Read(r, binary.LittleEndian, &ptsRaw); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		var frameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &frameLen); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		frameBytes := make([]byte, frameLen)
		if _, err := r.Read(frameBytes); err != nil && frameLen > 0 {
			return RuntimeData{}, wrapDecode(err)
		}
		return NewVideo(frameBytes, width, height, PixelFormat(format), int64(ptsRaw)), nil

	case VariantNumpy:
		var rank uint16
		if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		shape := make([]uint64, rank)
		for i := range shape {
			if err := binary.Read(r, binary.LittleEndian, &shape[i]); err != nil {
				return RuntimeData{}, wrapDecode(err)
			}
		}
		strides := make([]int64, rank)
		for i := range strides {
			if err := binary.Read(r, binary.LittleEndian, &strides[i]); err != nil {
				return RuntimeData{}, wrapDecode(err)
			}
		}
		dtype, err := readLengthPrefixedString16(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		flags, err := readByte(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		rest := make([]byte, r.Len())
		if _, err := r.Read(rest); err != nil && len(rest) > 0 {
			return RuntimeData{}, wrapDecode(err)
		}
		return NewNumpy(rest, shape, strides, dtype, flags&0x1 != 0, flags&0x2 != 0), nil

	case VariantText:
		s, err := readLengthPrefixedString(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		return NewText(s), nil

	case VariantJSON:
		s, err := readLengthPrefixedString(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		return NewJSON(s), nil

	case VariantBinary:
		mime, err := readLengthPrefixedString(r)
		if err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return RuntimeData{}, wrapDecode(err)
		}
		b := make([]byte, length)
		if _, err := r.Read(b); err != nil && length > 0 {
			return RuntimeData{}, wrapDecode(err)
		}
		return NewBinary(b, mime), nil

	default:
		return RuntimeData{}, wrapDecode(fmt.Errorf("unsupported type_tag %d", tag))
	}
}

func writeLengthPrefixedString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func writeLengthPrefixedString16(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	b := make([]byte, length)
	if length > 0 {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

func readLengthPrefixedString16(r *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	b := make([]byte, length)
	if length > 0 {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

func readByte(r *bytes.Reader) (uint8, error) {
	var b uint8
	err := binary.Read(r, binary.LittleEndian, &b)
	return b, err
}

func wrapEncode(err error) error {
	return rterr.Wrap(KindEncoding, err.Error(), err)
}

func wrapDecode(err error) error {
	return rterr.Wrap(KindDecoding, err.Error(), err)
}
