//go:build linux && amd64

// Package exec is C7, the executable-memory publisher (spec.md §4.8): it
// copies a finished codegen byte buffer into one page of memory, flips that
// page's protection from writable to executable, and hands back a handle
// the host can call through under the C calling convention. This is
// deliberately the only part of the system tied to a specific OS and ISA —
// spec.md's Non-goals rule out any other virtual-memory API or instruction
// set, so there is exactly one build-tagged implementation, not a
// plugin-per-platform layer.
package exec

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// pageSize is the only allocation granularity this single-page publisher
// supports (§4.8: "No mechanism for... growing past one page is
// provided").
var pageSize = unix.Getpagesize()

// Page is one published, executable code page.
type Page struct {
	mem   []byte
	entry uintptr
	freed bool
}

// Publish allocates one page, copies code into it, and transitions it from
// writable to executable (§4.8). len(code) must not exceed one page; on
// allocation failure Publish returns a nil Page and a non-nil error (§7
// class 3); on a protection-change failure it unmaps the page and likewise
// returns a nil Page and a non-nil error.
func Publish(code []byte, log logrus.FieldLogger) (*Page, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("exec: refusing to publish an empty code buffer")
	}
	if len(code) > pageSize {
		return nil, fmt.Errorf("exec: code buffer of %d bytes exceeds the %d-byte page limit", len(code), pageSize)
	}

	mem, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		log.WithFields(logrus.Fields{"component": "exec", "error": err}).Error("page allocation failed")
		return nil, fmt.Errorf("exec: mmap failed: %w", err)
	}

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		log.WithFields(logrus.Fields{"component": "exec", "error": err}).Error("mprotect to executable failed")
		return nil, fmt.Errorf("exec: mprotect failed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"component": "exec", "bytes": len(code), "page_size": pageSize,
	}).Debug("page published")

	return &Page{
		mem:   mem,
		entry: uintptr(unsafe.Pointer(&mem[0])),
	}, nil
}

// Entry returns the callable base address of the published code.
func (p *Page) Entry() uintptr { return p.entry }

// Code returns the raw bytes backing the page, for disassembly/dump
// tooling (cmd/doublefnc's dump mode). The slice aliases the executable
// page itself; callers must not write through it.
func (p *Page) Code() []byte { return p.mem }

// Close releases the page's virtual memory. The core publisher's contract
// never requires this — spec.md §4.8 provides no deallocator at all — but
// a host that compiles many short-lived functions needs some way to give
// pages back, per §9 Design Notes' "owning handle... freeing the page on
// drop". Closing a page whose literal-pool entries are still referenced by
// other live pages is safe; only this page's mapping is affected.
func (p *Page) Close() error {
	if p.freed {
		return nil
	}
	p.freed = true
	return unix.Munmap(p.mem)
}
