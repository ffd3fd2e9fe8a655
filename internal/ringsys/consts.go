// Package ringsys provides low-level io_uring syscall wrappers and the raw
// struct layouts the kernel exchanges them in. Nothing in this package
// understands task scheduling or backpressure; it is the thinnest possible
// layer over io_uring_setup(2)/io_uring_enter(2). The IORING_REGISTER_*
// opcodes are defined, but there is no io_uring_register(2) wrapper.
package ringsys

// Syscall numbers for io_uring (x86_64). golang.org/x/sys/unix does not
// export these for every architecture it supports, so they are defined
// here the same way the reference io_uring bindings this package is
// modeled on do.
const (
	SysIOUringSetup    = 425
	SysIOUringEnter    = 426
	SysIOUringRegister = 427
)

// Op is an io_uring_op opcode (IORING_OP_*).
type Op uint8

const (
	OpNop Op = iota
	OpReadv
	OpWritev
	OpFsync
	OpReadFixed
	OpWriteFixed
	OpPollAdd
	OpPollRemove
	OpSyncFileRange
	OpSendmsg
	OpRecvmsg
	OpTimeout
	OpTimeoutRemove
	OpAccept
	OpAsyncCancel
	OpLinkTimeout
	OpConnect
	OpFallocate
	OpOpenat
	OpClose
	OpFilesUpdate
	OpStatx
	OpRead
	OpWrite
	OpFadvise
	OpMadvise
	OpSend
	OpRecv
	OpOpenat2
	OpEpollCtl
	OpSplice
	OpProvideBuffers
	OpRemoveBuffers
	OpTee
	OpShutdown
	OpRenameat
	OpUnlinkat
	OpMkdirat
	OpSymlinkat
	OpLinkat
	OpMsgRing
	OpFsetxattr
	OpSetxattr
	OpFgetxattr
	OpGetxattr
	OpSocket
	OpUringCmd
	OpSendZC
	OpSendmsgZC
	OpReadMultishot
	OpWaitid
	OpFutexWait
	OpFutexWake
	OpFutexWaitv
	OpFixedFdInstall
	OpFtruncate
	OpBind
	OpListen

	opLast // bounds sentinel, unexported: never part of the wire protocol
)

// SQE flags (IOSQE_*).
const (
	SqeFixedFile      uint8 = 1 << 0
	SqeIODrain        uint8 = 1 << 1
	SqeIOLink         uint8 = 1 << 2
	SqeIOHardlink     uint8 = 1 << 3
	SqeAsync          uint8 = 1 << 4
	SqeBufferSelect   uint8 = 1 << 5
	SqeCQESkipSuccess uint8 = 1 << 6
)

// Setup flags (IORING_SETUP_*).
const (
	SetupIOPoll        uint32 = 1 << 0
	SetupSQPoll        uint32 = 1 << 1
	SetupSQAff         uint32 = 1 << 2
	SetupCQSize        uint32 = 1 << 3
	SetupClamp         uint32 = 1 << 4
	SetupAttachWQ      uint32 = 1 << 5
	SetupRDisabled     uint32 = 1 << 6
	SetupSubmitAll     uint32 = 1 << 7
	SetupCoopTaskrun   uint32 = 1 << 8
	SetupTaskrunFlag   uint32 = 1 << 9
	SetupSQE128        uint32 = 1 << 10
	SetupCQE32         uint32 = 1 << 11
	SetupSingleIssuer  uint32 = 1 << 12
	SetupDeferTaskrun  uint32 = 1 << 13
	SetupNoMmap        uint32 = 1 << 14
	SetupRegisteredOnly uint32 = 1 << 15
	SetupNoSQArray     uint32 = 1 << 16
)

// Feature flags (IORING_FEAT_*).
const (
	FeatSingleMmap     uint32 = 1 << 0
	FeatNodrop         uint32 = 1 << 1
	FeatSubmitStable   uint32 = 1 << 2
	FeatRWCurPos       uint32 = 1 << 3
	FeatCurPersonality uint32 = 1 << 4
	FeatFastPoll       uint32 = 1 << 5
	FeatPoll32Bits     uint32 = 1 << 6
	FeatSQPollNonfixed uint32 = 1 << 7
	FeatExtArg         uint32 = 1 << 8
	FeatNativeWorkers  uint32 = 1 << 9
	FeatRsrcTags       uint32 = 1 << 10
	FeatCQESkip        uint32 = 1 << 11
	FeatLinkedFile     uint32 = 1 << 12
	FeatRegRegRing     uint32 = 1 << 13
)

// Enter flags (IORING_ENTER_*).
const (
	EnterGetevents     uint32 = 1 << 0
	EnterSQWakeup      uint32 = 1 << 1
	EnterSQWait        uint32 = 1 << 2
	EnterExtArg        uint32 = 1 << 3
	EnterRegisteredRing uint32 = 1 << 4
)

// Register opcodes (IORING_REGISTER_*). This runtime never issues
// io_uring_register(2) at all: fixed files are never registered (every fd
// the typed I/O packages hand out is created as a plain fd.KindRaw
// descriptor) and buffer rings go through the classic per-SQE
// IORING_OP_PROVIDE_BUFFERS/REMOVE_BUFFERS opcodes instead of the
// registered, mmap'd buffer-ring variant (out of scope, see bufring's
// package doc). These constants are kept as a reference table only.
const (
	RegisterBuffers     uint32 = 0
	UnregisterBuffers   uint32 = 1
	RegisterFiles       uint32 = 2
	UnregisterFiles     uint32 = 3
	RegisterEventfd     uint32 = 4
	UnregisterEventfd   uint32 = 5
	RegisterEnableRings uint32 = 12
	RegisterPbufRing    uint32 = 22
	UnregisterPbufRing  uint32 = 23
	RegisterSyncCancel  uint32 = 24
)

// CQE flags (IORING_CQE_F_*).
const (
	CQEFBuffer        uint32 = 1 << 0
	CQEFMore          uint32 = 1 << 1
	CQEFSockNonempty  uint32 = 1 << 2
	CQEFNotif         uint32 = 1 << 3
)

// SQ ring flags.
const (
	SQNeedWakeup uint32 = 1 << 0
	SQCQOverflow uint32 = 1 << 1
	SQTaskrun    uint32 = 1 << 2
)

// Fsync flags.
const (
	FsyncDatasync uint32 = 1 << 0
)

// Accept flags.
const (
	AcceptMultishot uint32 = 1 << 0
)

// Cancel flags (IORING_ASYNC_CANCEL_*).
const (
	AsyncCancelAll      uint32 = 1 << 0
	AsyncCancelFd       uint32 = 1 << 1
	AsyncCancelAny      uint32 = 1 << 2
	AsyncCancelFdFixed  uint32 = 1 << 3
)

// mmap offsets for the ring buffers (IORING_OFF_*).
const (
	OffSQRing uint64 = 0
	OffCQRing uint64 = 0x8000000
	OffSQEs   uint64 = 0x10000000
)

// FileIndexAlloc is the magic file_index value requesting the kernel pick a
// fixed-file slot automatically.
const FileIndexAlloc uint32 = 0xffffffff - 1
