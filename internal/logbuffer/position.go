package logbuffer

// Position math. A stream position is a monotonic byte offset from the
// start of the session. The term ring has PartitionCount terms, so the
// term holding a position and the offset within it are pure bit
// arithmetic when the term length is a power of two.

// PartitionCount is the number of terms in the rotation ring. Three
// partitions let the writer fill one term while readers drain the
// previous one and the conductor readies the next.
const PartitionCount = 3

// IndexByPosition returns the ring index of the term containing position.
func IndexByPosition(position int64, termLength int32) int {
	return int((position / int64(termLength)) % PartitionCount)
}

// OffsetByPosition returns the byte offset within the term for position.
func OffsetByPosition(position int64, termLength int32) int32 {
	return int32(position & int64(termLength-1))
}

// TermBasePosition returns the position of the first byte of the term
// containing position.
func TermBasePosition(position int64, termLength int32) int64 {
	return position &^ int64(termLength-1)
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v int32) bool {
	return v > 0 && v&(v-1) == 0
}
