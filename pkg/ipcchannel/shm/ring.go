// Package shm implements the single-host, file-backed shared-memory ring
// buffer that realizes the IPC Channel's zero-copy transport (spec §4.1,
// §6.5). Each ring is a single-producer/single-consumer queue of
// length-prefixed frames, memory-mapped so producer and consumer (which
// may live in different OS processes) observe writes without a copy
// through the kernel.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	headerSize  = 16 // head cursor (8 bytes) + tail cursor (8 bytes)
	frameHeader = 4  // length prefix per queued frame
)

// Ring is a memory-mapped SPSC ring buffer of length-prefixed byte frames.
type Ring struct {
	file     *os.File
	path     string
	data     []byte
	capacity uint32 // size of the data region, excluding headerSize
	head     *uint64
	tail     *uint64
}

// Create allocates a new ring-buffer-backed file of the given data
// capacity (not including the header) and maps it into memory.
func Create(path string, capacity uint32) (*Ring, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create shm file: %w", err)
	}

	total := int64(headerSize) + int64(capacity)
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate shm file: %w", err)
	}

	return mapRing(f, path, capacity)
}

// Open maps an existing ring-buffer file created by Create.
func Open(path string, capacity uint32) (*Ring, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open shm file: %w", err)
	}
	return mapRing(f, path, capacity)
}

func mapRing(f *os.File, path string, capacity uint32) (*Ring, error) {
	total := int(headerSize + capacity)
	data, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shm file: %w", err)
	}

	r := &Ring{
		file:     f,
		path:     path,
		data:     data,
		capacity: capacity,
		head:     (*uint64)(unsafe.Pointer(&data[0])),
		tail:     (*uint64)(unsafe.Pointer(&data[8])),
	}
	return r, nil
}

// Close unmaps and closes the backing file without removing it.
func (r *Ring) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return r.file.Close()
}

// Remove closes the ring and deletes its backing discovery file.
func (r *Ring) Remove() error {
	if err := r.Close(); err != nil {
		return err
	}
	return os.Remove(r.path)
}

func (r *Ring) region() []byte { return r.data[headerSize:] }

// slots returns the free-space and used-space byte counts.
func (r *Ring) slots() (used, free uint32) {
	h := atomic.LoadUint64(r.head)
	t := atomic.LoadUint64(r.tail)
	used = uint32(t - h) // monotonically increasing cursors, wrap via modulo capacity on access
	if used > r.capacity {
		used = r.capacity
	}
	free = r.capacity - used
	return used, free
}

// TryPush attempts a non-blocking enqueue of one frame. It returns false
// if there is insufficient free space, in which case the caller (the IPC
// command queue's SendData handling) applies its own deadline-based retry
// policy rather than this type growing the buffer unboundedly (spec §4.1
// back-pressure policy).
func (r *Ring) TryPush(frame []byte) bool {
	need := uint32(frameHeader + len(frame))
	_, free := r.slots()
	if need > free {
		return false
	}

	region := r.region()
	t := atomic.LoadUint64(r.tail)
	pos := uint32(t) % r.capacity

	lenBuf := make([]byte, frameHeader)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(frame)))
	r.writeWrapped(region, pos, lenBuf)
	r.writeWrapped(region, (pos+frameHeader)%r.capacity, frame)

	atomic.AddUint64(r.tail, uint64(need))
	return true
}

// TryPop attempts a non-blocking dequeue of one frame.
func (r *Ring) TryPop() ([]byte, bool) {
	used, _ := r.slots()
	if used < frameHeader {
		return nil, false
	}

	region := r.region()
	h := atomic.LoadUint64(r.head)
	pos := uint32(h) % r.capacity

	lenBuf := r.readWrapped(region, pos, frameHeader)
	frameLen := binary.LittleEndian.Uint32(lenBuf)
	if used < uint32(frameHeader)+frameLen {
		return nil, false
	}

	payload := r.readWrapped(region, (pos+frameHeader)%r.capacity, int(frameLen))
	atomic.AddUint64(r.head, uint64(frameHeader)+uint64(frameLen))
	return payload, true
}

func (r *Ring) writeWrapped(region []byte, pos uint32, data []byte) {
	n := copy(region[pos:], data)
	if n < len(data) {
		copy(region[0:], data[n:])
	}
}

func (r *Ring) readWrapped(region []byte, pos uint32, n int) []byte {
	out := make([]byte, n)
	first := copy(out, region[pos:])
	if first < n {
		copy(out[first:], region[0:n-first])
	}
	return out
}
