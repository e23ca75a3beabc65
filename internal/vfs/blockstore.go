// Copyright 2024 memvfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
)

const (
	// MaxBlocks is the number of block slots per file.
	MaxBlocks = 64
	// BlockSize is the size of one storage block in bytes.
	BlockSize = 8192
	// MaxFileSize is the per-file capacity.
	MaxFileSize = MaxBlocks * BlockSize
)

// BlockPool accounts resident blocks across every file that shares it.
// A zero limit means unlimited. A nil *BlockPool is valid and unlimited.
type BlockPool struct {
	limit    int64
	resident atomic.Int64
}

// NewBlockPool creates a pool that admits at most limit resident blocks.
func NewBlockPool(limit int64) *BlockPool {
	return &BlockPool{limit: limit}
}

// alloc returns a zeroed block, or nil when the pool is exhausted.
func (p *BlockPool) alloc() []byte {
	if p != nil {
		if n := p.resident.Add(1); p.limit > 0 && n > p.limit {
			p.resident.Add(-1)
			return nil
		}
	}
	return make([]byte, BlockSize)
}

func (p *BlockPool) free(n int) {
	if p != nil && n > 0 {
		p.resident.Add(int64(-n))
	}
}

// Resident returns the number of blocks currently allocated from the pool.
func (p *BlockPool) Resident() int64 {
	if p == nil {
		return 0
	}
	return p.resident.Load()
}

// Limit returns the resident block limit, 0 if unlimited.
func (p *BlockPool) Limit() int64 {
	if p == nil {
		return 0
	}
	return p.limit
}

// BlockStore is the sparse byte storage behind a file vnode. Slots that were
// never written are holes and read back as zeros.
type BlockStore struct {
	datalen int64
	blocks  [MaxBlocks][]byte
	pool    *BlockPool
}

func newBlockStore(pool *BlockPool) *BlockStore {
	return &BlockStore{pool: pool}
}

// Size returns the logical length of the file.
func (b *BlockStore) Size() int64 {
	return b.datalen
}

// Allocated returns the number of resident (non-hole) blocks.
func (b *BlockStore) Allocated() int {
	n := 0
	for _, blk := range b.blocks {
		if blk != nil {
			n++
		}
	}
	return n
}

// ReadAt copies bytes in [off, datalen) into p and returns the count.
// Reading never allocates.
func (b *BlockStore) ReadAt(p []byte, off int64) int {
	if off < 0 || off >= b.datalen {
		return 0
	}
	n := int64(len(p))
	if n > b.datalen-off {
		n = b.datalen - off
	}

	count := 0
	bno := off / BlockSize
	boff := off % BlockSize
	for n > 0 {
		xfer := BlockSize - boff
		if n < xfer {
			xfer = n
		}
		dst := p[count : count+int(xfer)]
		if blk := b.blocks[bno]; blk == nil {
			clear(dst)
		} else {
			copy(dst, blk[boff:boff+xfer])
		}
		n -= xfer
		count += int(xfer)
		bno++
		boff = 0
	}
	return count
}

// WriteAt overlays p at off, allocating zeroed blocks for any holes it
// touches. When the block cap or the pool is exhausted part way through, the
// bytes already committed are reported with a nil error; an error is returned
// only when nothing was written.
func (b *BlockStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, common.ErrInvalidArgs
	}

	count := 0
	bno := off / BlockSize
	boff := off % BlockSize
	for count < len(p) {
		xfer := int(BlockSize - boff)
		if rem := len(p) - count; rem < xfer {
			xfer = rem
		}
		if bno >= MaxBlocks {
			return partial(count, common.ErrNoSpace)
		}
		if b.blocks[bno] == nil {
			log.Tracef("[VFS] blockstore: alloc block %d", bno)
			blk := b.pool.alloc()
			if blk == nil {
				return partial(count, common.ErrNoMemory)
			}
			b.blocks[bno] = blk
		}
		copy(b.blocks[bno][boff:], p[count:count+xfer])

		if pos := bno*BlockSize + boff + int64(xfer); pos > b.datalen {
			b.datalen = pos
		}
		count += xfer
		bno++
		boff = 0
	}
	return count, nil
}

func partial(count int, err error) (int, error) {
	if count > 0 {
		return count, nil
	}
	return 0, err
}

// Truncate sets the logical length. Blocks wholly past the new end are freed
// and the tail of the last kept block is zeroed so a later extension reads
// zeros.
func (b *BlockStore) Truncate(size int64) error {
	if size < 0 {
		return common.ErrInvalidArgs
	}
	if size > MaxFileSize {
		return common.ErrNoSpace
	}
	if size < b.datalen {
		keep := (size + BlockSize - 1) / BlockSize
		freed := 0
		for i := keep; i < MaxBlocks; i++ {
			if b.blocks[i] != nil {
				b.blocks[i] = nil
				freed++
			}
		}
		b.pool.free(freed)
		if tail := size % BlockSize; tail != 0 && b.blocks[size/BlockSize] != nil {
			clear(b.blocks[size/BlockSize][tail:])
		}
	}
	b.datalen = size
	return nil
}

// Release drops every block. The store is empty afterwards.
func (b *BlockStore) Release() {
	freed := 0
	for i := range b.blocks {
		if b.blocks[i] != nil {
			b.blocks[i] = nil
			freed++
		}
	}
	b.pool.free(freed)
	b.datalen = 0
}
