package scrollback

import (
	"fmt"
	"reflect"
	"testing"
)

func TestPushBytes_MidLineCarry(t *testing.T) {
	b := New(10)
	b.PushBytes([]byte("hel"))
	b.PushBytes([]byte("lo\nworld\npart"))

	got := b.LinesTail(10)
	want := []string{"hello", "world"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LinesTail = %v, want %v", got, want)
	}

	b.PushBytes([]byte("ial\n"))
	got = b.LinesTail(10)
	want = []string{"hello", "world", "partial"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LinesTail = %v, want %v", got, want)
	}
}

func TestPushBytes_EvictsOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.PushBytes([]byte(fmt.Sprintf("line%d\n", i)))
	}
	got := b.LinesTail(10)
	want := []string{"line2", "line3", "line4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LinesTail = %v, want %v", got, want)
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
}

func TestLinesTail_LessThanAvailable(t *testing.T) {
	b := New(10)
	b.PushBytes([]byte("a\nb\nc\nd\n"))
	got := b.LinesTail(2)
	want := []string{"c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LinesTail(2) = %v, want %v", got, want)
	}
}

func TestIterRange(t *testing.T) {
	b := New(10)
	b.PushBytes([]byte("a\nb\nc\nd\n"))
	got := b.IterRange(1, 3)
	want := []string{"b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("IterRange(1,3) = %v, want %v", got, want)
	}

	if got := b.IterRange(5, 1); got != nil {
		t.Fatalf("IterRange(5,1) = %v, want nil", got)
	}
}

func TestDefaultMaxLines(t *testing.T) {
	b := New(0)
	if b.maxLines != DefaultMaxLines {
		t.Fatalf("maxLines = %d, want %d", b.maxLines, DefaultMaxLines)
	}
}
