package asm

import (
	"errors"
	"testing"
)

func TestBufferBasicUsage(t *testing.T) {
	b := NewBuffer("test")

	b.Write([]byte("hello"))
	if b.Len() != 5 {
		t.Errorf("Expected length 5, got %d", b.Len())
	}

	b.Commit()

	// Reading is safe after commit
	if string(b.Bytes()) != "hello" {
		t.Errorf("Expected 'hello', got '%s'", string(b.Bytes()))
	}
}

func TestBufferPreventsWriteAfterCommit(t *testing.T) {
	b := NewBuffer("test")
	b.Write([]byte("data"))
	b.Commit()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when writing to committed buffer")
		}
	}()

	b.Write([]byte("more"))
}

func TestBufferTruncate(t *testing.T) {
	b := NewBuffer("test")
	b.Write([]byte("keep"))
	b.Write([]byte("drop"))
	b.Truncate(4)
	if string(b.Bytes()) != "keep" {
		t.Errorf("Expected 'keep', got '%s'", string(b.Bytes()))
	}
}

func TestBufferPatch(t *testing.T) {
	b := NewBuffer("test")
	b.Write([]byte{1, 2, 3, 4})
	err := b.Patch(2, func(code []byte) error {
		code[2] = 9
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.Bytes()[2] != 9 {
		t.Errorf("Expected patched byte 9, got %d", b.Bytes()[2])
	}

	if err := b.Patch(5, func([]byte) error { return nil }); err == nil {
		t.Error("Expected an error for a patch past the end")
	}

	boom := errors.New("boom")
	if err := b.Patch(0, func([]byte) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected the callback error, got %v", err)
	}
}
