package pixelpipe

import (
	"encoding/binary"
	"hash/maphash"
)

// fingerprintSeed is shared by every pipeline in the process so that two
// pipelines processing the same image and the same upstream chain agree on
// fingerprints for shared nodes.
var fingerprintSeed = maphash.MakeSeed()

// fingerprint derives a stable 64-bit hash from the image identity, the
// requested ROI, the pipeline kind, the node's position in the chain, and
// the folded committed_hash of every node from the source up to and
// including this one. Quantizing the ROI's scale before hashing
// drops floating-point reformatting noise that would otherwise cause
// false cache misses.
func fingerprint(imageID uint64, roi ROI, kind Kind, position int, chainHash uint64) uint64 {
	q := roi.quantized()

	var h maphash.Hash
	h.SetSeed(fingerprintSeed)

	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeInt := func(v int) { writeU64(uint64(v)) }

	writeU64(imageID)
	writeInt(q.X)
	writeInt(q.Y)
	writeInt(q.Width)
	writeInt(q.Height)
	writeU64(uint64(q.Scale * (1 << 16)))
	writeInt(int(kind))
	writeInt(position)
	writeU64(chainHash)

	return h.Sum64()
}

// foldCommittedHash combines a node's own committed_hash with the folded
// hash of its predecessor, so any change to parameters, blend parameters,
// or the enabled flag anywhere upstream changes every downstream
// fingerprint.
func foldCommittedHash(predecessorChain uint64, nodeCommittedHash uint64) uint64 {
	// FNV-1a style mix, chosen for stability across runs rather than
	// cryptographic strength.
	const prime = 1099511628211
	h := predecessorChain ^ nodeCommittedHash
	h *= prime
	return h
}

// committedHash derives a node's own committed_hash from its parameter
// blobs and enabled flag.
func committedHash(paramsBlob, blendParamsBlob []byte, enabled bool) uint64 {
	var h maphash.Hash
	h.SetSeed(fingerprintSeed)
	h.Write(paramsBlob)
	h.Write(blendParamsBlob)
	if enabled {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return h.Sum64()
}
