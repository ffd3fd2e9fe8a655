// Package file implements a single open regular file against the ring: open,
// positioned read/write, the fsync family, and fallocate-based allocate/
// discard.
package file

import (
	"syscall"
)

// OpenOptions builds the access and creation mode a file is opened with,
// mirroring the read/write/append/create/truncate builder the standard
// library's os.OpenFile flags collapse into a single int. Unlike os.OpenFile,
// Open never blocks the calling goroutine: it submits an IORING_OP_OPENAT
// and awaits its completion like every other operation in this package.
type OpenOptions struct {
	read     bool
	write    bool
	append   bool
	create   bool
	createNew bool
	truncate bool
	mode     uint32
}

// NewOpenOptions returns an OpenOptions with every bit unset and a default
// creation mode of 0o666, the same default os.Create uses.
func NewOpenOptions() *OpenOptions {
	return &OpenOptions{mode: 0o666}
}

// Read sets whether the file should be readable.
func (o *OpenOptions) Read(v bool) *OpenOptions { o.read = v; return o }

// Write sets whether the file should be writable.
func (o *OpenOptions) Write(v bool) *OpenOptions { o.write = v; return o }

// Append sets whether writes append to the end of the file regardless of
// the current file position. Implies Write.
func (o *OpenOptions) Append(v bool) *OpenOptions { o.append = v; return o }

// Create sets whether the file should be created if it does not already
// exist. Requires Write or Append; without either, the open fails with
// EINVAL.
func (o *OpenOptions) Create(v bool) *OpenOptions { o.create = v; return o }

// CreateNew sets whether the open must create a new file, failing with
// EEXIST if one already exists at the given path. Implies Create.
func (o *OpenOptions) CreateNew(v bool) *OpenOptions { o.createNew = v; return o }

// Truncate sets whether an existing file should be truncated to zero length
// on open. Requires Write and cannot be combined with Append; otherwise the
// open fails with EINVAL.
func (o *OpenOptions) Truncate(v bool) *OpenOptions { o.truncate = v; return o }

// Mode sets the permission bits used when a new file is created.
func (o *OpenOptions) Mode(mode uint32) *OpenOptions { o.mode = mode; return o }

// accessMode computes the O_RDONLY/O_WRONLY/O_RDWR portion of the open
// flags, the way OpenOptionsExt::get_access_mode does in the original this
// is adapted from.
func (o *OpenOptions) accessMode() (int, error) {
	if !o.read && !o.write && !o.append {
		return 0, syscall.EINVAL
	}
	var flags int
	switch {
	case o.read && o.write:
		flags = syscall.O_RDWR
	case o.write:
		flags = syscall.O_WRONLY
	case o.read:
		flags = syscall.O_RDONLY
	default: // append with neither Read nor Write set
		flags = syscall.O_WRONLY
	}
	if o.append {
		if o.read && flags != syscall.O_RDWR {
			flags = syscall.O_RDWR
		}
		flags |= syscall.O_APPEND
	}
	return flags, nil
}

// creationMode computes the O_CREAT/O_EXCL/O_TRUNC portion of the open
// flags, rejecting the same nonsensical combinations the original's
// get_creation_mode does (e.g. Create or Truncate without Write or Append,
// Truncate with Append).
func (o *OpenOptions) creationMode() (int, error) {
	if o.append && o.truncate {
		return 0, syscall.EINVAL
	}
	if !o.write && !o.append && (o.create || o.truncate) {
		return 0, syscall.EINVAL
	}
	switch {
	case !o.create && !o.truncate && !o.createNew:
		return 0, nil
	case o.createNew:
		if !o.write && !o.append {
			return 0, syscall.EINVAL
		}
		return syscall.O_CREAT | syscall.O_EXCL, nil
	case o.create && !o.truncate:
		return syscall.O_CREAT, nil
	case !o.create && o.truncate:
		return syscall.O_TRUNC, nil
	default: // create && truncate
		return syscall.O_CREAT | syscall.O_TRUNC, nil
	}
}

// flags returns the combined open(2) flags, always OR'd with O_CLOEXEC the
// same way the original does for every file it opens through the ring.
func (o *OpenOptions) flags() (int, error) {
	access, err := o.accessMode()
	if err != nil {
		return 0, err
	}
	creation, err := o.creationMode()
	if err != nil {
		return 0, err
	}
	return access | creation | syscall.O_CLOEXEC, nil
}
