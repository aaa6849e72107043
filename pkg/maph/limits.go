package maph

const (
	// headerSize is the fixed size, in bytes, of the file header at
	// offset 0.
	headerSize = 512

	// slotSize is the fixed size, in bytes, of every slot.
	slotSize = 512

	// slotDataSize is the number of raw payload bytes available per
	// slot: slotSize minus the 8-byte hash_version, 4-byte size and
	// 4-byte reserved fields.
	slotDataSize = 496

	// maxValueSize is the maximum byte length of a value passed to Set.
	maxValueSize = slotDataSize

	// maxProbeLength (K) bounds standard-mode linear probing.
	maxProbeLength = 10

	// magic identifies a maph file and MPHF payload: ASCII "MAPH".
	magic uint32 = 0x4D415048

	// formatVersion is the current on-disk header format version.
	formatVersion uint32 = 1

	// mphfFormatVersion is the current MPHF payload format version.
	mphfFormatVersion uint32 = 1
)
