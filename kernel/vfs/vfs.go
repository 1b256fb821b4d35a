// Package vfs implements the virtual file system layer: a registry of file
// systems keyed by a name prefix, the "<prefix>:<subpath>" path grammar,
// per-file operation vtables, and a per-task open-file table.
//
// Grounded on original_source/src/kernel/file/file.h and file.c
// (FileNameFunctions/FileFunctions, addFileSystem, OpenedFile,
// OpenFileManager, INITIAL_FILE_FUNCTIONS's dummy-op pattern) per spec.md
// §3.13/§4.14. The original dispatches every operation through the
// IORequest/system-call machinery (open/read/write/... each produce a
// FileIORequest a caller waits on); concrete file types in this repository
// (kernel/fifo, kernel/resource's enumerator) already block internally via
// kernel/ioreq or kernel/sync, so this layer dispatches synchronously
// instead of wrapping every call in a second IORequest layer.
package vfs

import (
	"strings"

	"kernelcore/kernel"
	"kernelcore/kernel/sync"
)

// OpenMode mirrors OpenFileMode's two bit flags.
type OpenMode struct {
	Enumeration bool
	Writable    bool
}

var (
	ErrNotSupported     = &kernel.Error{Module: "vfs", Code: -1, Message: "operation not supported by this file type"}
	ErrInvalidPath      = &kernel.Error{Module: "vfs", Code: -2, Message: "path is missing a \"prefix:\" component"}
	ErrNoSuchFileSystem = &kernel.Error{Module: "vfs", Code: -3, Message: "no file system registered for this prefix"}
	ErrPrefixExists     = &kernel.Error{Module: "vfs", Code: -4, Message: "a file system is already registered under this prefix"}
	ErrClosed           = &kernel.Error{Module: "vfs", Code: -5, Message: "file is closed"}
	ErrHandleNotFound   = &kernel.Error{Module: "vfs", Code: -6, Message: "no open file with this handle"}
)

// ParamCode identifies a file parameter accessed through GetParam/SetParam,
// mirroring lib/file.h's FILE_PARAM_* enum.
type ParamCode uintptr

const (
	// ParamSize is the file's current size, in bytes.
	ParamSize ParamCode = 0x10
	// ParamMaxWriteSize is the largest single write this file accepts.
	ParamMaxWriteSize ParamCode = 0x20
	// ParamMinReadSize is the smallest read this file ever completes with
	// a nonzero byte count.
	ParamMinReadSize ParamCode = 0x21
	// ParamSourceAddress is a network file's local address.
	ParamSourceAddress ParamCode = 0x30
	// ParamDestinationAddress is a network file's peer address.
	ParamDestinationAddress ParamCode = 0x31
	// ParamSourcePort is a network file's local port.
	ParamSourcePort ParamCode = 0x32
	// ParamDestinationPort is a network file's peer port.
	ParamDestinationPort ParamCode = 0x33
	// ParamTransmitEtherType is a network file's outgoing EtherType.
	ParamTransmitEtherType ParamCode = 0x36
	// ParamFileInstance returns the driver-owned instance pointer backing
	// this file, mirroring getFIFOFileParam's FILE_PARAM_FILE_INSTANCE.
	ParamFileInstance ParamCode = 0x50
)

func notSupportedRW(interface{}, []byte) (int, *kernel.Error)            { return 0, ErrNotSupported }
func notSupportedSeek(interface{}, uint64) *kernel.Error                 { return ErrNotSupported }
func notSupportedSeekRW(interface{}, []byte, uint64) (int, *kernel.Error) { return 0, ErrNotSupported }
func notSupportedSize(interface{}) (uint64, *kernel.Error)               { return 0, ErrNotSupported }
func notSupportedGetParam(interface{}, ParamCode) (uint64, *kernel.Error) { return 0, ErrNotSupported }
func notSupportedSetParam(interface{}, ParamCode, uint64) *kernel.Error   { return ErrNotSupported }
func notSupportedClose(interface{}) *kernel.Error                       { return nil }

// FileFunctions is one open file type's operation vtable. A zero-valued
// field is a nil function and panics when dispatched; DefaultFileFunctions
// fills every field with a "not supported" operation, matching
// INITIAL_FILE_FUNCTIONS's dummy operations, so use it as a base and
// override what the type actually implements.
type FileFunctions struct {
	Read      func(instance interface{}, buffer []byte) (int, *kernel.Error)
	Write     func(instance interface{}, buffer []byte) (int, *kernel.Error)
	Seek      func(instance interface{}, position uint64) *kernel.Error
	SeekRead  func(instance interface{}, buffer []byte, position uint64) (int, *kernel.Error)
	SeekWrite func(instance interface{}, buffer []byte, position uint64) (int, *kernel.Error)
	Size      func(instance interface{}) (uint64, *kernel.Error)
	GetParam  func(instance interface{}, code ParamCode) (uint64, *kernel.Error)
	SetParam  func(instance interface{}, code ParamCode, value uint64) *kernel.Error
	Close     func(instance interface{}) *kernel.Error
}

// DefaultFileFunctions returns a vtable where every operation reports
// ErrNotSupported (Close succeeds trivially, since every file type can at
// least be closed).
func DefaultFileFunctions() FileFunctions {
	return FileFunctions{
		Read: notSupportedRW, Write: notSupportedRW,
		Seek: notSupportedSeek, SeekRead: notSupportedSeekRW, SeekWrite: notSupportedSeekRW,
		Size: notSupportedSize, GetParam: notSupportedGetParam, SetParam: notSupportedSetParam,
		Close: notSupportedClose,
	}
}

// OpenFunc opens subpath (the part of the path after "prefix:") under mode,
// returning a driver-owned instance handle and the vtable to dispatch its
// operations through.
type OpenFunc func(subpath string, mode OpenMode) (instance interface{}, funcs *FileFunctions, err *kernel.Error)

// ParsePath splits "prefix:subpath" into its two components, matching the
// original's flat file-name-with-prefix convention (e.g. "fifo:",
// "disk0:readme.txt").
func ParsePath(name string) (prefix, subpath string, ok bool) {
	idx := strings.IndexByte(name, ':')
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// Registry maps a path prefix to the OpenFunc that handles it, mirroring
// addFileSystem/FileNameFunctions.
type Registry struct {
	lock     sync.Spinlock
	byPrefix map[string]OpenFunc
}

// NewRegistry creates an empty file-system registry.
func NewRegistry() *Registry {
	return &Registry{byPrefix: make(map[string]OpenFunc)}
}

// Add registers open under prefix. It reports false if prefix is already
// taken, matching addFileSystem's "already exists" failure.
func (r *Registry) Add(prefix string, open OpenFunc) bool {
	r.lock.Acquire()
	defer r.lock.Release()
	if _, exists := r.byPrefix[prefix]; exists {
		return false
	}
	r.byPrefix[prefix] = open
	return true
}

// Open parses name, dispatches to the matching prefix's OpenFunc, and wraps
// the result in an OpenedFile.
func (r *Registry) Open(name string, mode OpenMode) (*OpenedFile, *kernel.Error) {
	prefix, subpath, ok := ParsePath(name)
	if !ok {
		return nil, ErrInvalidPath
	}
	r.lock.Acquire()
	open, ok := r.byPrefix[prefix]
	r.lock.Release()
	if !ok {
		return nil, ErrNoSuchFileSystem
	}
	instance, funcs, err := open(subpath, mode)
	if err != nil {
		return nil, err
	}
	return &OpenedFile{instance: instance, funcs: funcs}, nil
}

// OpenedFile is one file instance dispatched through its type's vtable.
// ioCount mirrors OpenedFile.ioCount: Close refuses to run while an
// operation is still in flight.
type OpenedFile struct {
	lock     sync.Spinlock
	instance interface{}
	funcs    *FileFunctions
	handle   uintptr
	ioCount  int
	closed   bool
}

func (of *OpenedFile) beginIO() *kernel.Error {
	of.lock.Acquire()
	defer of.lock.Release()
	if of.closed {
		return ErrClosed
	}
	of.ioCount++
	return nil
}

func (of *OpenedFile) endIO() {
	of.lock.Acquire()
	of.ioCount--
	of.lock.Release()
}

// Read reads into buffer, returning the number of bytes actually read.
func (of *OpenedFile) Read(buffer []byte) (int, *kernel.Error) {
	if err := of.beginIO(); err != nil {
		return 0, err
	}
	defer of.endIO()
	return of.funcs.Read(of.instance, buffer)
}

// Write writes buffer, returning the number of bytes actually written.
func (of *OpenedFile) Write(buffer []byte) (int, *kernel.Error) {
	if err := of.beginIO(); err != nil {
		return 0, err
	}
	defer of.endIO()
	return of.funcs.Write(of.instance, buffer)
}

// Seek repositions the file to position.
func (of *OpenedFile) Seek(position uint64) *kernel.Error {
	if err := of.beginIO(); err != nil {
		return err
	}
	defer of.endIO()
	return of.funcs.Seek(of.instance, position)
}

// SeekRead reads from position without disturbing the file's current
// position.
func (of *OpenedFile) SeekRead(buffer []byte, position uint64) (int, *kernel.Error) {
	if err := of.beginIO(); err != nil {
		return 0, err
	}
	defer of.endIO()
	return of.funcs.SeekRead(of.instance, buffer, position)
}

// SeekWrite writes at position without disturbing the file's current
// position.
func (of *OpenedFile) SeekWrite(buffer []byte, position uint64) (int, *kernel.Error) {
	if err := of.beginIO(); err != nil {
		return 0, err
	}
	defer of.endIO()
	return of.funcs.SeekWrite(of.instance, buffer, position)
}

// Size returns the file's current size.
func (of *OpenedFile) Size() (uint64, *kernel.Error) {
	if err := of.beginIO(); err != nil {
		return 0, err
	}
	defer of.endIO()
	return of.funcs.Size(of.instance)
}

// GetParam reads the file parameter identified by code, mirroring
// getParameter/FileFunctions.getParameter.
func (of *OpenedFile) GetParam(code ParamCode) (uint64, *kernel.Error) {
	if err := of.beginIO(); err != nil {
		return 0, err
	}
	defer of.endIO()
	return of.funcs.GetParam(of.instance, code)
}

// SetParam sets the file parameter identified by code to value, mirroring
// setParameter/FileFunctions.setParameter.
func (of *OpenedFile) SetParam(code ParamCode, value uint64) *kernel.Error {
	if err := of.beginIO(); err != nil {
		return err
	}
	defer of.endIO()
	return of.funcs.SetParam(of.instance, code, value)
}

// Close closes the file. It assumes no operation is still in flight
// (mirroring closeAllOpenFileRequest's "assume no pending IO requests"
// contract) and panics otherwise, rather than silently racing Close
// against a concurrent Read/Write.
func (of *OpenedFile) Close() *kernel.Error {
	of.lock.Acquire()
	if of.closed {
		of.lock.Release()
		return ErrClosed
	}
	if of.ioCount > 0 {
		of.lock.Release()
		panic("vfs: Close called with an operation still in flight")
	}
	of.closed = true
	of.lock.Release()
	return of.funcs.Close(of.instance)
}

// Table is one task's open-file handle table, mirroring OpenFileManager.
type Table struct {
	lock       sync.Spinlock
	files      map[uintptr]*OpenedFile
	nextHandle uintptr
	refCount   int
}

// NewTable creates an empty open-file table.
func NewTable() *Table {
	return &Table{files: make(map[uintptr]*OpenedFile), nextHandle: 1}
}

// AddReference mirrors addOpenFileManagerReference: tables are shared
// across tasks created with a shared memory space, so they are
// refcounted rather than owned by a single task.
func (t *Table) AddReference(delta int) int {
	t.lock.Acquire()
	defer t.lock.Release()
	t.refCount += delta
	return t.refCount
}

// Add assigns of a fresh handle and tracks it, returning the handle.
func (t *Table) Add(of *OpenedFile) uintptr {
	t.lock.Acquire()
	defer t.lock.Release()
	h := t.nextHandle
	t.nextHandle++
	of.handle = h
	t.files[h] = of
	return h
}

// Get returns the open file registered under handle, if any.
func (t *Table) Get(handle uintptr) (*OpenedFile, bool) {
	t.lock.Acquire()
	defer t.lock.Release()
	of, ok := t.files[handle]
	return of, ok
}

// Remove stops tracking handle without closing it (the caller is
// responsible for having already closed the file).
func (t *Table) Remove(handle uintptr) {
	t.lock.Acquire()
	defer t.lock.Release()
	delete(t.files, handle)
}

// CloseHandle closes and untracks the file registered under handle.
func (t *Table) CloseHandle(handle uintptr) *kernel.Error {
	of, ok := t.Get(handle)
	if !ok {
		return ErrHandleNotFound
	}
	err := of.Close()
	t.Remove(handle)
	return err
}

// CloseAll closes every tracked file, mirroring closeAllOpenFileRequest.
func (t *Table) CloseAll() {
	t.lock.Acquire()
	files := make([]*OpenedFile, 0, len(t.files))
	for _, of := range t.files {
		files = append(files, of)
	}
	t.files = make(map[uintptr]*OpenedFile)
	t.lock.Release()
	for _, of := range files {
		of.Close()
	}
}
