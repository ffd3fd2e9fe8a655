package file

import (
	"syscall"
	"testing"
)

func TestOpenOptionsReadOnly(t *testing.T) {
	flags, err := NewOpenOptions().Read(true).flags()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flags&syscall.O_WRONLY != 0 || flags&syscall.O_RDWR != 0 {
		t.Fatalf("flags=%#o, expected neither O_WRONLY nor O_RDWR set", flags)
	}
	if flags&syscall.O_CLOEXEC == 0 {
		t.Fatal("expected O_CLOEXEC always set")
	}
}

func TestOpenOptionsCreateTruncate(t *testing.T) {
	flags, err := NewOpenOptions().Write(true).Create(true).Truncate(true).flags()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := syscall.O_WRONLY | syscall.O_CREAT | syscall.O_TRUNC | syscall.O_CLOEXEC
	if flags != want {
		t.Fatalf("flags=%#o, want %#o", flags, want)
	}
}

func TestOpenOptionsCreateNewRequiresWriteOrAppend(t *testing.T) {
	if _, err := NewOpenOptions().Read(true).CreateNew(true).flags(); err == nil {
		t.Fatal("expected an error for CreateNew without Write/Append")
	}
	flags, err := NewOpenOptions().Write(true).CreateNew(true).flags()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flags&syscall.O_EXCL == 0 || flags&syscall.O_CREAT == 0 {
		t.Fatalf("flags=%#o, expected O_CREAT|O_EXCL for CreateNew", flags)
	}
}

func TestOpenOptionsAppendImpliesWritable(t *testing.T) {
	flags, err := NewOpenOptions().Append(true).flags()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flags&syscall.O_APPEND == 0 || flags&syscall.O_WRONLY == 0 {
		t.Fatalf("flags=%#o, expected O_WRONLY|O_APPEND", flags)
	}
}

func TestOpenOptionsAppendAndTruncateRejected(t *testing.T) {
	if _, err := NewOpenOptions().Write(true).Append(true).Truncate(true).flags(); err == nil {
		t.Fatal("expected an error combining Append and Truncate")
	}
}

func TestOpenOptionsNeitherReadNorWriteRejected(t *testing.T) {
	if _, err := NewOpenOptions().flags(); err == nil {
		t.Fatal("expected an error when neither Read nor Write is set")
	}
}
