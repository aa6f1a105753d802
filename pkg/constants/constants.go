// Package constants provides shared constants used throughout the quorum codebase.
// This includes timeouts, limits, file permissions, and the vote policy
// thresholds that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for a single fetch or probe request
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultRoundSleep is the pause between two scheduler rounds
	DefaultRoundSleep = 10 * time.Second

	// RetryBackoff is the pause between two attempts of a retried fetch
	RetryBackoff = 10 * time.Second

	// ShutdownTimeout bounds graceful shutdown after a failed command
	ShutdownTimeout = 5 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// MaxRetries is the number of guarded attempts of a retried call
	MaxRetries = 3

	// DefaultConcurrency is the default number of jobs dispatched at once,
	// and the size of the shared connection pool
	DefaultConcurrency = 10

	// DefaultMaxRounds is the default round budget of a batch
	DefaultMaxRounds = 10

	// DefaultTolerance is the default number of unresolved jobs a batch accepts
	DefaultTolerance = 5

	// DefaultGridStep is the spacing in pixels between two verification probes
	DefaultGridStep = 15

	// MaxProbes bounds the probe points of one verification; larger
	// descriptors are probed on a coarser grid
	MaxProbes = 64

	// MaxDescriptorPixels bounds the width and height a parsed descriptor
	// may declare
	MaxDescriptorPixels = 1 << 20
)

// Vote policy constants. These thresholds are empirical; a sample wins when
// any count is strictly greater than its threshold.
const (
	// MinFullVotes is the verified-observation threshold
	MinFullVotes = 1

	// MinBasicVotes is the raw-observation threshold
	MinBasicVotes = 2

	// MinSimilarVotes is the near-duplicate threshold
	MinSimilarVotes = 3

	// DiversityCap is the number of distinct samples above which a job
	// stops waiting for agreement
	DiversityCap = 4
)

// Cache constants
const (
	// CacheMaxAge is how long a committed record stays fresh
	CacheMaxAge = 5 * 24 * time.Hour

	// MemoryCleanupInterval is how often expired in-memory entries are purged
	MemoryCleanupInterval = 5 * time.Minute

	// DefaultCacheDir is where committed records live by default
	DefaultCacheDir = "data/records"

	// MaxKeySegment is the longest readable key segment; longer target IDs
	// are hashed so their file names stay within filesystem limits
	MaxKeySegment = 200
)

// Format constants
const (
	// TimeFormatFilename is the format used in generated filenames
	TimeFormatFilename = "20060102-150405"
)
