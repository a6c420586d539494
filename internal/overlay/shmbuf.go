package overlay

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AllocError reports a shared-memory allocation failure. Fatal: without a
// buffer there is nothing to show.
type AllocError struct {
	Op  string
	Err error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("shared memory %s failed: %v", e.Op, e.Err)
}

func (e *AllocError) Unwrap() error { return e.Err }

// shmBuffer is a memfd-backed pixel buffer shared with the compositor.
// Stride is always 4*width (ARGB8888).
type shmBuffer struct {
	fd     int
	data   []byte
	width  int
	height int
	stride int
}

func newShmBuffer(width, height int) (*shmBuffer, error) {
	stride := width * 4
	size := stride * height

	fd, err := unix.MemfdCreate("rcrosshair-buffer", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, &AllocError{Op: "memfd_create", Err: err}
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, &AllocError{Op: "ftruncate", Err: err}
	}
	// Sealing the size lets the compositor map the file without guarding
	// against SIGBUS from a shrinking peer.
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK)

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, &AllocError{Op: "mmap", Err: err}
	}

	return &shmBuffer{fd: fd, data: data, width: width, height: height, stride: stride}, nil
}

func (b *shmBuffer) size() int32 {
	return int32(b.stride * b.height)
}

// close unmaps and releases the descriptor. Safe to call twice.
func (b *shmBuffer) close() {
	if b.data != nil {
		_ = unix.Munmap(b.data)
		b.data = nil
	}
	if b.fd >= 0 {
		_ = unix.Close(b.fd)
		b.fd = -1
	}
}
