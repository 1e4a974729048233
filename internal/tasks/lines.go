package tasks

import "bytes"

// LineBuffer splits an arbitrarily chunked byte stream into newline-terminated lines.
//
// Splitting is done on raw bytes, so a chunk boundary inside a multibyte UTF-8 sequence
// only ever lands in the retained fragment. The zero value is ready to use.
type LineBuffer struct {
	buf []byte
}

// Feed appends chunk and returns every complete line up to and including the last '\n',
// without their terminators. The trailing fragment is kept for the next call.
//
// Returned slices are owned by the caller.
func (b *LineBuffer) Feed(chunk []byte) [][]byte {
	b.buf = append(b.buf, chunk...)

	last := bytes.LastIndexByte(b.buf, '\n')
	if last < 0 {
		return nil
	}

	complete := b.buf[:last]
	lines := bytes.Split(complete, []byte{'\n'})
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = append([]byte(nil), bytes.TrimSuffix(l, []byte{'\r'})...)
	}

	b.buf = append(b.buf[:0], b.buf[last+1:]...)
	return out
}

// Flush returns the unterminated remainder and empties the buffer.
func (b *LineBuffer) Flush() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	rest := append([]byte(nil), b.buf...)
	b.buf = b.buf[:0]
	return bytes.TrimSuffix(rest, []byte{'\r'})
}

// Pending reports the size of the retained fragment.
func (b *LineBuffer) Pending() int { return len(b.buf) }
