package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SegmentSize is the leaf size of the file Merkle tree.
const SegmentSize = 256

// MerkleRoot computes the content root of data: keccak256 leaves over
// 256-byte segments, paired bottom-up. An odd node is carried to the next
// level unchanged. Empty data hashes to keccak256 of nothing.
func MerkleRoot(data []byte) common.Hash {
	if len(data) == 0 {
		return crypto.Keccak256Hash(nil)
	}

	level := make([]common.Hash, 0, (len(data)+SegmentSize-1)/SegmentSize)
	for off := 0; off < len(data); off += SegmentSize {
		end := min(off+SegmentSize, len(data))
		level = append(level, crypto.Keccak256Hash(data[off:end]))
	}

	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, crypto.Keccak256Hash(level[i].Bytes(), level[i+1].Bytes()))
		}
		level = next
	}
	return level[0]
}
