package file

import (
	"os"
	"runtime"
	"syscall"
	"unsafe"

	gofallocate "github.com/detailyang/go-fallocate"

	"github.com/ringrt/ringrt"
	"github.com/ringrt/ringrt/fd"
	"github.com/ringrt/ringrt/internal/op"
	"github.com/ringrt/ringrt/internal/ringsys"
)

// File is a reference to an open file on the filesystem, driven entirely
// through the currently active executor's ring. Every operation returns an
// *op.Op to be awaited (embedded in a task's own poll function, or wrapped
// with op.AsPollFn and driven through ringrt.Block/ringrt.Spawn directly).
type File struct {
	fd *fd.Fd
}

const atFdCwd = -100

// Open submits an open of path in read-only mode, the same default os.Open
// uses.
func Open(path string) *op.Op[*File] {
	return NewOpenOptions().Read(true).Submit(path)
}

// WithOptions returns a fresh OpenOptions for building a non-default open.
func WithOptions() *OpenOptions {
	return NewOpenOptions()
}

// Submit submits an open of path with the options accumulated on o.
func (o *OpenOptions) Submit(path string) *op.Op[*File] {
	flags, ferr := o.flags()
	cpath, perr := syscall.BytePtrFromString(path)

	var precheck error
	if err := firstErr(ferr, perr); err != nil {
		precheck = &ringrt.OpenError{Path: path, Err: err}
	}
	spec := &openSpec{path: cpath, flags: flags, mode: o.mode, precheck: precheck}
	return op.NewOp(currentSubmitter(), spec, decodeOpenFor(spec))
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// currentSubmitter is a small indirection so every operation constructor in
// this package fetches the active executor's Submitter the same way
// fd.NewCurrent fetches its Closer.
func currentSubmitter() op.Submitter {
	return ringrt.CurrentSubmitter()
}

type openSpec struct {
	path     *byte
	flags    int
	mode     uint32
	precheck error // a bad path or option combination, caught before submission
}

// Configure still submits a real (harmless) no-op SQE when precheck is set,
// rather than skipping submission: Op's contract is push-then-await, and a
// spec that never pushes anything would need its own early-return path
// threaded through Op.Poll. decodeOpenFor below ignores the completion
// entirely and returns precheck instead once it arrives.
func (s *openSpec) Configure(sqe *ringsys.SQE) {
	if s.precheck != nil {
		sqe.Opcode = ringsys.OpNop
		return
	}
	sqe.Opcode = ringsys.OpOpenat
	sqe.Fd = atFdCwd
	sqe.Addr = uint64(uintptr(unsafe.Pointer(s.path)))
	sqe.Len = s.mode
	sqe.OpcodeFlags = uint32(s.flags)
}

func decodeOpenFor(s *openSpec) func(op.CQEResult) (*File, error) {
	return func(r op.CQEResult) (*File, error) {
		if s.precheck != nil {
			return nil, s.precheck
		}
		if r.Res < 0 {
			return nil, syscall.Errno(-r.Res)
		}
		return &File{fd: fd.NewCurrent(r.Res, fd.KindRaw)}, nil
	}
}

// ReadAt submits a positioned read into buf starting at offset. buf must
// stay alive and unmoved until the returned Op completes.
func (f *File) ReadAt(buf []byte, offset int64) *op.Op[int] {
	spec := &readAtSpec{fd: f.fd.Clone(), buf: buf, offset: uint64(offset)}
	return op.NewOp(currentSubmitter(), spec, decodeReleasingN(spec))
}

type readAtSpec struct {
	fd     *fd.Fd
	buf    []byte
	offset uint64
}

func (s *readAtSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpRead
	sqe.Fd = s.fd.Raw()
	if s.fd.Fixed() {
		sqe.Flags |= ringsys.SqeFixedFile
	}
	if len(s.buf) > 0 {
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.buf[0])))
	}
	sqe.Len = uint32(len(s.buf))
	sqe.Off = s.offset
}

// WriteAt submits a positioned write of buf starting at offset. buf must
// stay alive and unmoved until the returned Op completes.
func (f *File) WriteAt(buf []byte, offset int64) *op.Op[int] {
	spec := &writeAtSpec{fd: f.fd.Clone(), buf: buf, offset: uint64(offset)}
	return op.NewOp(currentSubmitter(), spec, decodeReleasingN(spec))
}

type writeAtSpec struct {
	fd     *fd.Fd
	buf    []byte
	offset uint64
}

func (s *writeAtSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpWrite
	sqe.Fd = s.fd.Raw()
	if s.fd.Fixed() {
		sqe.Flags |= ringsys.SqeFixedFile
	}
	if len(s.buf) > 0 {
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&s.buf[0])))
	}
	sqe.Len = uint32(len(s.buf))
	sqe.Off = s.offset
}

// rwSpec is the common shape ReadAt/WriteAt's specs share, just enough for
// decodeReleasingN to release the cloned Fd reference once the operation
// completes, independent of the File it was issued against still being
// open.
type rwSpec interface {
	releaseFd()
}

func (s *readAtSpec) releaseFd()  { s.fd.Release() }
func (s *writeAtSpec) releaseFd() { s.fd.Release() }

func decodeReleasingN(s rwSpec) func(op.CQEResult) (int, error) {
	return func(r op.CQEResult) (int, error) {
		s.releaseFd()
		if r.Res < 0 {
			return 0, syscall.Errno(-r.Res)
		}
		return int(r.Res), nil
	}
}

// Sync submits an fsync(2) of the file's data and metadata.
func (f *File) Sync() *op.Op[struct{}] {
	return f.sync(0)
}

// Datasync submits an fdatasync(2) of only the file's data.
func (f *File) Datasync() *op.Op[struct{}] {
	return f.sync(ringsys.FsyncDatasync)
}

func (f *File) sync(flags uint32) *op.Op[struct{}] {
	spec := &syncSpec{fd: f.fd, flags: flags}
	return op.NewOp(currentSubmitter(), spec, decodeVoid)
}

type syncSpec struct {
	fd    *fd.Fd
	flags uint32
}

func (s *syncSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpFsync
	sqe.Fd = s.fd.Raw()
	if s.fd.Fixed() {
		sqe.Flags |= ringsys.SqeFixedFile
	}
	sqe.OpcodeFlags = s.flags
}

func decodeVoid(r op.CQEResult) (struct{}, error) {
	if r.Res < 0 {
		return struct{}{}, syscall.Errno(-r.Res)
	}
	return struct{}{}, nil
}

// SyncRange submits a sync_file_range(2) of [offset, offset+length).
func (f *File) SyncRange(offset int64, length uint32, flags uint32) *op.Op[struct{}] {
	spec := &syncRangeSpec{fd: f.fd, offset: uint64(offset), length: length, flags: flags}
	return op.NewOp(currentSubmitter(), spec, decodeVoid)
}

type syncRangeSpec struct {
	fd     *fd.Fd
	offset uint64
	length uint32
	flags  uint32
}

func (s *syncRangeSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpSyncFileRange
	sqe.Fd = s.fd.Raw()
	if s.fd.Fixed() {
		sqe.Flags |= ringsys.SqeFixedFile
	}
	sqe.Off = s.offset
	sqe.Len = s.length
	sqe.OpcodeFlags = s.flags
}

// Fallocate submits a fallocate(2) of [offset, offset+length) with mode (a
// combination of FALLOC_FL_* bits). When the completion reports the opcode
// unsupported (ENOSYS/EOPNOTSUPP — common on older kernels), the Op's
// decode step falls back to a direct synchronous fallocate(2) call via
// go-fallocate instead of surfacing the error, so callers never have to
// special-case "ring doesn't support this opcode" themselves.
//
// The fallback runs inline during decode, briefly blocking whichever
// goroutine is driving the executor loop at the moment the completion is
// observed. No record of the unsupported opcode is kept: every Fallocate
// call submits IORING_OP_FALLOCATE again, and every one whose completion
// reports ENOSYS/EOPNOTSUPP runs the synchronous fallback.
func (f *File) Fallocate(offset, length int64, mode int32) *op.Op[struct{}] {
	spec := &fallocateSpec{fd: f.fd.Raw(), fixed: f.fd.Fixed(), offset: uint64(offset), length: uint64(length), mode: mode}
	return op.NewOp(currentSubmitter(), spec, decodeFallocate(f.fd.Raw(), offset, length))
}

// Allocate reserves [offset, offset+length) without changing the file's
// apparent size (FALLOC_FL_ZERO_RANGE | FALLOC_FL_KEEP_SIZE).
func (f *File) Allocate(offset, length int64) *op.Op[struct{}] {
	return f.Fallocate(offset, length, falloFlZeroRange|falloFlKeepSize)
}

// Discard punches a hole in [offset, offset+length), freeing the
// underlying storage without changing the file's apparent size
// (FALLOC_FL_PUNCH_HOLE | FALLOC_FL_KEEP_SIZE).
func (f *File) Discard(offset, length int64) *op.Op[struct{}] {
	return f.Fallocate(offset, length, falloFlPunchHole|falloFlKeepSize)
}

const (
	falloFlKeepSize  int32 = 0x01
	falloFlPunchHole int32 = 0x02
	falloFlZeroRange int32 = 0x10
)

type fallocateSpec struct {
	fd     int32
	fixed  bool
	offset uint64
	length uint64
	mode   int32
}

func (s *fallocateSpec) Configure(sqe *ringsys.SQE) {
	sqe.Opcode = ringsys.OpFallocate
	sqe.Fd = s.fd
	if s.fixed {
		sqe.Flags |= ringsys.SqeFixedFile
	}
	sqe.Off = s.offset
	sqe.Len = uint32(s.length)
	sqe.OpcodeFlags = uint32(s.mode)
}

func decodeFallocate(rawFd int32, offset, length int64) func(op.CQEResult) (struct{}, error) {
	return func(r op.CQEResult) (struct{}, error) {
		if r.Res >= 0 {
			return struct{}{}, nil
		}
		errno := syscall.Errno(-r.Res)
		if errno != syscall.ENOSYS && errno != syscall.EOPNOTSUPP {
			return struct{}{}, errno
		}
		// go-fallocate wants a concrete *os.File; wrap the raw descriptor
		// without transferring ownership. os.NewFile arms a GC finalizer
		// that calls close(2) on the wrapped fd; Fd() only forces blocking
		// mode, it does not touch the finalizer. Clear it explicitly so
		// this wrapper being collected can never race a close against
		// File's own reference-counted fd.
		probe := os.NewFile(uintptr(rawFd), "")
		runtime.SetFinalizer(probe, nil)
		if err := gofallocate.Fallocate(probe, offset, length); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
}

// Close releases the file's descriptor. The close itself is asynchronous
// and fire-and-forget, issued once every other reference (e.g. one held by
// an in-flight ReadAt/WriteAt) has also been released.
func (f *File) Close() {
	f.fd.Release()
}
