// Command nodeworker is a minimal reference worker process speaking the
// IPC wire protocol described in spec §4.1/§4.2. It stands in for a real
// "python" node worker in tests and local development: it echoes
// single-output payloads unchanged and, when RUNTIME_MULTI_OUTPUT=true,
// splits a Text payload on whitespace and emits one payload per word
// followed by the end-of-batch sentinel.
package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel"
	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel/shm"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

func main() {
	sessionID := os.Getenv("RUNTIME_SESSION_ID")
	nodeID := os.Getenv("RUNTIME_NODE_ID")
	dir := os.Getenv("RUNTIME_CHANNEL_DIR")
	multiOutput := os.Getenv("RUNTIME_MULTI_OUTPUT") == "true"

	inputPath := dir + "/" + ipcchannel.ChannelName(sessionID, nodeID, ipcchannel.DirectionInput)
	outputPath := dir + "/" + ipcchannel.ChannelName(sessionID, nodeID, ipcchannel.DirectionOutput)

	input := waitAndOpen(inputPath)
	output := waitAndOpen(outputPath)
	defer input.Close()
	defer output.Close()

	readyFrame, err := runtimedata.Encode(runtimedata.NewText(ipcchannel.ReadyMarker), false)
	if err != nil {
		log.Fatalf("encode ready marker: %v", err)
	}
	pushBlocking(output, readyFrame)

	for {
		frame := popBlocking(input)
		data, err := runtimedata.Decode(frame)
		if err != nil {
			continue
		}
		if data.Kind() == runtimedata.VariantText && data.Text == ipcchannel.StreamEndMarker {
			return
		}

		if !multiOutput {
			out, err := runtimedata.Encode(data, false)
			if err != nil {
				continue
			}
			pushBlocking(output, out)
			continue
		}

		for i, word := range strings.Fields(data.Text) {
			out, err := runtimedata.Encode(runtimedata.NewText(strconv.Itoa(i)+":"+word), false)
			if err != nil {
				continue
			}
			pushBlocking(output, out)
		}
		endOfBatch := append([]byte{byte(runtimedata.EndOfBatch)}, make([]byte, 4)...)
		pushBlocking(output, endOfBatch)
	}
}

// waitAndOpen polls for the host-created ring file to appear, then maps
// it using the file's own size to derive the ring capacity so the worker
// never needs to be told the capacity out of band.
func waitAndOpen(path string) *shm.Ring {
	var size int64
	for {
		info, err := os.Stat(path)
		if err == nil {
			size = info.Size()
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	const headerSize = 16
	capacity := uint32(size - headerSize)

	ring, err := shm.Open(path, capacity)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	return ring
}

func pushBlocking(r *shm.Ring, frame []byte) {
	for !r.TryPush(frame) {
		time.Sleep(time.Millisecond)
	}
}

func popBlocking(r *shm.Ring) []byte {
	for {
		if frame, ok := r.TryPop(); ok {
			return frame
		}
		time.Sleep(time.Millisecond)
	}
}
