// Package cache provides the pipeline's buffer cache primitive.
//
// BufferCache[D] is a fixed-capacity map from a 64-bit fingerprint to a
// pixel buffer plus a caller-defined descriptor D. Unlike a plain LRU, the
// eviction candidate is chosen by (important flag ascending, last-use
// counter ascending, oldest insertion order), so a pinned "important"
// entry (the pipeline's final gamma output) is evicted only when nothing
// else is available.
//
//	type desc struct{ Width, Height int }
//	bc := cache.New[desc](4)
//	entry, hit := bc.Reserve(fingerprint, requiredBytes, desc{64, 64})
//	if hit {
//	    // entry.Buffer already holds the computed result
//	}
//
// Thread safety: BufferCache is safe for concurrent use; it should not be
// copied after creation.
package cache
