package kfmt

import "io"

// ringBufSize bounds the amount of pre-console output that is retained.
// Boot output before the console/TTY driver attaches is rarely more than a
// few KiB.
const ringBufSize = 4096

// ringBuffer is an allocation-free circular byte buffer used to retain
// Printf output produced before a real output sink is available via
// SetOutputSink.
type ringBuffer struct {
	buf   [ringBufSize]byte
	start int
	len   int
}

// Write implements io.Writer. Writes beyond the buffer capacity cause the
// oldest bytes to be discarded.
func (r *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		writeAt := (r.start + r.len) % ringBufSize
		r.buf[writeAt] = b
		if r.len < ringBufSize {
			r.len++
		} else {
			r.start = (r.start + 1) % ringBufSize
		}
	}
	return len(p), nil
}

// Read implements io.Reader, draining the buffer in FIFO order. It is used
// by SetOutputSink to flush accumulated output to the real sink.
func (r *ringBuffer) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && r.len > 0 {
		p[n] = r.buf[r.start]
		r.start = (r.start + 1) % ringBufSize
		r.len--
		n++
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
