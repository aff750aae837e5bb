package runtimedata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

func TestCodecRoundTripAudio(t *testing.T) {
	samples := make([]float32, 960)
	for i := range samples {
		samples[i] = float32(i) * 0.001
	}
	orig := runtimedata.NewAudio(samples, 48000, 1)

	frame, err := runtimedata.Encode(orig, false)
	require.NoError(t, err)

	decoded, err := runtimedata.Decode(frame)
	require.NoError(t, err)

	require.Equal(t, orig.SampleRate, decoded.SampleRate)
	require.Equal(t, orig.Channels, decoded.Channels)
	require.Equal(t, orig.Samples, decoded.Samples)
}

func TestCodecRoundTripNumpyFContiguous(t *testing.T) {
	data := make([]byte, 960*4)
	for i := range data {
		data[i] = byte(i % 256)
	}
	orig := runtimedata.NewNumpy(data, []uint64{3, 320}, []int64{4, 12}, "float32", false, true)

	frame, err := runtimedata.Encode(orig, true)
	require.NoError(t, err)

	decoded, err := runtimedata.Decode(frame)
	require.NoError(t, err)

	require.Equal(t, orig.Shape, decoded.Shape)
	require.Equal(t, orig.Strides, decoded.Strides)
	require.Equal(t, orig.DType, decoded.DType)
	require.False(t, decoded.CContiguous)
	require.True(t, decoded.FContiguous)
	require.Equal(t, orig.NumpyBytes, decoded.NumpyBytes)
}

func TestCodecRoundTripText(t *testing.T) {
	orig := runtimedata.NewText("hello pipeline")
	frame, err := runtimedata.Encode(orig, false)
	require.NoError(t, err)

	decoded, err := runtimedata.Decode(frame)
	require.NoError(t, err)
	require.Equal(t, orig.Text, decoded.Text)
}

func TestCodecRoundTripVideo(t *testing.T) {
	frameBytes := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	orig := runtimedata.NewVideo(frameBytes, 1280, 720, runtimedata.I420, 123456)

	frame, err := runtimedata.Encode(orig, false)
	require.NoError(t, err)

	decoded, err := runtimedata.Decode(frame)
	require.NoError(t, err)
	require.Equal(t, orig.Width, decoded.Width)
	require.Equal(t, orig.Height, decoded.Height)
	require.Equal(t, orig.PixelFormat, decoded.PixelFormat)
	require.Equal(t, orig.PTSMicros, decoded.PTSMicros)
	require.Equal(t, orig.Frame, decoded.Frame)
}

func TestDecodeRejectsEndOfBatchAsPayload(t *testing.T) {
	frame := []byte{byte(runtimedata.EndOfBatch), 0, 0, 0, 0}
	_, err := runtimedata.Decode(frame)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	orig := runtimedata.NewText("truncate me")
	frame, err := runtimedata.Encode(orig, false)
	require.NoError(t, err)

	_, err = runtimedata.Decode(frame[:len(frame)-3])
	require.Error(t, err)
}
