// Package fifo implements the FIFO file: an unbounded queue of
// variable-length payload blocks, written synchronously and read through
// the IORequest model — a read pends immediately and completes as soon as
// a matching write (or an already-queued block) becomes available.
//
// Grounded on original_source/src/kernel/file/fifofile.c (FIFOFile,
// FIFOElement, RWFIFORequest, pushFIFOElement_noLock/popFIFOElement_noLock,
// processFIFO, readFIFOFile/writeFIFOFile/closeFIFOFile) per spec.md
// §3.12/§4.13. The original drives completion over RWFileRequest/VFS
// plumbing that is out of scope here; this repository completes requests
// directly on a kernel/ioreq.Queue, the same adaptation kernel/timer and
// kernel/resource make.
package fifo

import (
	"kernelcore/kernel/ioreq"
	"kernelcore/kernel/sync"
)

type element struct {
	data []byte
	next *element
}

// readRequest is one pending Read call waiting for a payload block.
type readRequest struct {
	file       *File
	ior        *ioreq.IORequest
	buffer     []byte
	copied     int
	prev, next *readRequest
}

func cancelRead(ior *ioreq.IORequest) {
	r := ior.Instance.(*readRequest)
	f := r.file
	f.lock.Acquire()
	f.removeRead(r)
	f.lock.Release()
}

// File is one FIFO file instance: a locked linked list of queued payload
// blocks plus a locked linked list of readers waiting for one.
type File struct {
	lock sync.Spinlock

	queue *ioreq.Queue

	elemHead, elemTail *element
	readHead           *readRequest
}

// New creates an empty FIFO file whose reads complete on queue.
func New(queue *ioreq.Queue) *File {
	return &File{queue: queue}
}

func (f *File) pushElement(e *element) {
	if f.elemHead == nil {
		f.elemHead = e
	} else {
		f.elemTail.next = e
	}
	f.elemTail = e
}

func (f *File) popElement() *element {
	e := f.elemHead
	f.elemHead = e.next
	if f.elemHead == nil {
		f.elemTail = nil
	}
	e.next = nil
	return e
}

func (f *File) pushRead(r *readRequest) {
	r.next = nil
	r.prev = nil
	if f.readHead == nil {
		f.readHead = r
		return
	}
	last := f.readHead
	for last.next != nil {
		last = last.next
	}
	last.next = r
	r.prev = last
}

func (f *File) popRead() *readRequest {
	r := f.readHead
	f.readHead = r.next
	if f.readHead != nil {
		f.readHead.prev = nil
	}
	r.next, r.prev = nil, nil
	return r
}

func (f *File) removeRead(r *readRequest) {
	if r.prev != nil {
		r.prev.next = r.next
	} else if f.readHead == r {
		f.readHead = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}
	r.prev, r.next = nil, nil
}

// process pairs queued elements with waiting readers until one list runs
// dry, mirroring processFIFO's loop.
func (f *File) process() {
	for {
		f.lock.Acquire()
		var e *element
		var r *readRequest
		if f.elemHead != nil && f.readHead != nil {
			e = f.popElement()
			r = f.popRead()
		}
		f.lock.Release()
		if e == nil || r == nil {
			return
		}
		r.copied = copy(r.buffer, e.data)
		f.queue.Finish(r.ior)
	}
}

// Write enqueues data as one payload block, waking a waiting reader if one
// is parked.
func (f *File) Write(data []byte) {
	e := &element{data: append([]byte(nil), data...)}
	f.lock.Acquire()
	f.pushElement(e)
	f.lock.Release()
	f.process()
}

// Read queues buffer to receive the next payload block and returns the
// IORequest that completes once it has been filled. The copied byte count
// is available via CopiedLen after the request's IORequest has finished.
func (f *File) Read(buffer []byte) *ioreq.IORequest {
	r := &readRequest{file: f, buffer: buffer}
	r.ior = ioreq.New(f.queue, r, cancelRead, func(ior *ioreq.IORequest) []uintptr {
		return []uintptr{uintptr(r.copied)}
	})
	f.queue.Pend(r.ior)
	f.lock.Acquire()
	f.pushRead(r)
	f.lock.Release()
	f.process()
	return r.ior
}

// CopiedLen returns how many bytes a finished read actually copied into its
// buffer (payload blocks smaller than the buffer copy short).
func CopiedLen(ior *ioreq.IORequest) int {
	return ior.Instance.(*readRequest).copied
}

// Close drains any queued, never-read payload blocks. It panics if a read
// is still pending, mirroring the original's assert(HAS_FIFO_REQUEST == 0):
// callers must cancel or wait out every outstanding Read before closing.
func (f *File) Close() {
	f.lock.Acquire()
	defer f.lock.Release()
	for f.elemHead != nil {
		f.popElement()
	}
	if f.readHead != nil {
		panic("fifo: Close called with a read still pending")
	}
}
