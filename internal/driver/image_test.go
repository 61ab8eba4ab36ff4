package driver

import (
	"testing"

	"github.com/stevencasey/aeron/internal/logbuffer"
)

func newTestImage(t *testing.T) (*Image, *logbuffer.LogBuffer) {
	t.Helper()
	lb, err := logbuffer.NewLogBuffer(logbuffer.TermMinLength)
	if err != nil {
		t.Fatalf("NewLogBuffer: %v", err)
	}
	lb.SetLimit(int64(logbuffer.TermMinLength) * logbuffer.PartitionCount)
	img := &Image{sessionID: 7, streamID: 3, log: lb}
	return img, lb
}

func TestImagePollDeliversInOrder(t *testing.T) {
	img, lb := newTestImage(t)
	for _, s := range []string{"one", "two", "three"} {
		if _, res := lb.Append([]byte(s)); res != logbuffer.AppendOK {
			t.Fatalf("append %q: %d", s, res)
		}
	}

	var seen []string
	n := img.Poll(func(buf []byte, offset, length int32, h Header) {
		seen = append(seen, string(buf[offset:offset+length]))
		if h.SessionID != 7 || h.StreamID != 3 {
			t.Fatalf("header = %+v", h)
		}
	}, 10)
	if n != 3 {
		t.Fatalf("poll = %d, want 3", n)
	}
	if seen[0] != "one" || seen[1] != "two" || seen[2] != "three" {
		t.Fatalf("order = %v", seen)
	}
	if img.Position() != lb.Position() {
		t.Fatalf("image position %d != published %d", img.Position(), lb.Position())
	}
	if img.Poll(func([]byte, int32, int32, Header) {}, 10) != 0 {
		t.Fatalf("second poll should deliver nothing")
	}
}

func TestImagePollHonorsFragmentLimit(t *testing.T) {
	img, lb := newTestImage(t)
	for i := 0; i < 5; i++ {
		lb.Append([]byte{byte(i)})
	}
	if n := img.Poll(func([]byte, int32, int32, Header) {}, 2); n != 2 {
		t.Fatalf("poll = %d, want 2", n)
	}
	if n := img.Poll(func([]byte, int32, int32, Header) {}, 10); n != 3 {
		t.Fatalf("second poll = %d, want remaining 3", n)
	}
}

func TestImagePollSkipsPadding(t *testing.T) {
	img, lb := newTestImage(t)
	// Land a padding frame by filling most of the term then appending a
	// frame that does not fit the remainder.
	filler := make([]byte, 56)
	for i := 0; i < int(lb.TermLength())/64-1; i++ {
		lb.Append(filler)
	}
	if _, res := lb.Append(make([]byte, 128)); res != logbuffer.AppendRotation {
		t.Fatalf("expected rotation")
	}
	lb.Append([]byte("fresh"))

	count := 0
	var last string
	for {
		n := img.Poll(func(buf []byte, offset, length int32, h Header) {
			count++
			last = string(buf[offset:offset+length])
		}, 100)
		if n == 0 {
			break
		}
	}
	// All filler frames plus the post-rotation frame, no padding frame.
	if want := int(lb.TermLength())/64 - 1 + 1; count != want {
		t.Fatalf("delivered %d fragments, want %d", count, want)
	}
	if last != "fresh" {
		t.Fatalf("last fragment = %q, want the post-rotation frame", last)
	}
	if img.Position() != lb.Position() {
		t.Fatalf("image position %d != published %d", img.Position(), lb.Position())
	}
}

func TestImagePollPanicPreservesDeliveredPosition(t *testing.T) {
	img, lb := newTestImage(t)
	for _, s := range []string{"a", "b", "c"} {
		lb.Append([]byte(s))
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected handler panic to propagate")
			}
		}()
		img.Poll(func(buf []byte, offset, length int32, h Header) {
			if string(buf[offset:offset+length]) == "b" {
				panic("handler failure")
			}
		}, 10)
	}()

	// "a" was delivered and is committed; "b" was not, so it is
	// redelivered along with "c".
	var seen []string
	img.Poll(func(buf []byte, offset, length int32, h Header) {
		seen = append(seen, string(buf[offset:offset+length]))
	}, 10)
	if len(seen) != 2 || seen[0] != "b" || seen[1] != "c" {
		t.Fatalf("after panic saw %v, want [b c]", seen)
	}
}

func TestClosedImagePollsNothing(t *testing.T) {
	img, lb := newTestImage(t)
	lb.Append([]byte("x"))
	img.closed.Store(true)
	if n := img.Poll(func([]byte, int32, int32, Header) {}, 10); n != 0 {
		t.Fatalf("closed image delivered %d", n)
	}
}
