// Package memscan lists the memory-reading instructions inside loop blocks.
package memscan

import (
	"errors"
	"fmt"

	"loopdepth/internal/cfg"
	"loopdepth/internal/disasm"
)

var (
	// ErrZeroSize means the decoder returned an instruction of no bytes.
	ErrZeroSize = errors.New("memscan: decoder made no progress")
	// ErrOvershoot means a decoded instruction ends past its block.
	ErrOvershoot = errors.New("memscan: instruction crosses block end")
)

// Memory reads the loaded image by virtual address.
type Memory interface {
	ReadAt(va uint64, n int) ([]byte, error)
}

// Access is one memory-reading instruction.
type Access struct {
	Addr uint64
	Text string
}

// DecodeError reports where a block scan stopped.
type DecodeError struct {
	Addr uint64
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("memscan: decode at 0x%x: %v", e.Addr, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Scanner decodes blocks linearly from their start address.
type Scanner struct {
	Mem Memory
	Dec disasm.Decoder
}

// ScanBlocks returns the memory-reading instructions of blocks, block by
// block in the given order and by address inside each block. Blocks with
// Start == End are skipped without decoding.
func (s *Scanner) ScanBlocks(blocks []cfg.Block) ([]Access, error) {
	var out []Access
	for _, b := range blocks {
		if b.Empty() {
			continue
		}
		acc, err := s.scanBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, acc...)
	}
	return out, nil
}

func (s *Scanner) scanBlock(b cfg.Block) ([]Access, error) {
	var out []Access
	maxLen := s.Dec.MaxLen
	if maxLen <= 0 {
		maxLen = s.Dec.Arch.MaxInstLen()
	}

	for addr := b.Start; addr < b.End; {
		// Never hand the decoder bytes past the block end.
		n := maxLen
		if rem := b.End - addr; rem < uint64(n) {
			n = int(rem)
		}
		code, err := s.Mem.ReadAt(addr, n)
		if err != nil {
			return nil, &DecodeError{Addr: addr, Err: err}
		}
		inst, err := s.Dec.Decode(code, addr)
		if err != nil {
			return nil, &DecodeError{Addr: addr, Err: err}
		}
		if inst.Size <= 0 {
			return nil, &DecodeError{Addr: addr, Err: ErrZeroSize}
		}
		if addr+uint64(inst.Size) > b.End {
			return nil, &DecodeError{Addr: addr, Err: ErrOvershoot}
		}
		if inst.ReadsMem {
			out = append(out, Access{Addr: addr, Text: inst.Text})
		}
		addr += uint64(inst.Size)
	}
	return out, nil
}
