package mphf

// wireMagic is the magic value stamped at the start of every serialized
// MPHF payload: ASCII "MAPH", shared with the enclosing file's header
// magic per the common on-disk framing.
const wireMagic uint32 = 0x4D415048

// mphfFormatVersion is the current MPHF payload format version.
const mphfFormatVersion uint32 = 1

// RecSplit tuning constants from the split-seed search.
const (
	recSplitC1           uint64 = 0x9e3779b97f4a7c15
	recSplitC2           uint64 = 0xbf58476d1ce4e5b9
	recSplitSeedBound           = 10000
	recSplitDefaultLeaf         = 8
	recSplitMaxBucket           = 3 // multiplied by leaf size
)

const (
	chdDefaultLambda = 5.0

	bbhashDefaultLevels = 3
	bbhashDefaultGamma  = 2.0
	bbhashMaxLevels     = 10

	pthashDefaultAlpha = 0.98
	pthashPilotBound    = 16384

	fchDefaultBucketSize = 4.0
)
