package consts

import "time"

// Account limits
const (
	// MinUsernameLength is the shortest accepted username
	MinUsernameLength = 5
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 8
	// MaxCredentialLength bounds usernames and passwords
	MaxCredentialLength = 128
)

// Document limits
const (
	// DefaultMaxSections is the default upper bound on sections per document
	DefaultMaxSections = 1000
	// DefaultMaxDocumentNameLength is the default upper bound on document names
	DefaultMaxDocumentNameLength = 64
)

// Buffer sizes for various operations
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte
	BufferSize1MB = 1024 * 1024
)

// Chat limits
const (
	// ChatDatagramSize is the largest chat datagram a receiver accepts
	ChatDatagramSize = 512
	// DefaultChatPort is the UDP port chat groups are joined on
	DefaultChatPort = 2000
)

// Server defaults
const (
	// DefaultListenAddr is the default TCP address for the request protocol
	DefaultListenAddr = ":2000"
	// DefaultHTTPListenAddr is the default address of the registration/metrics side server
	DefaultHTTPListenAddr = ":3000"
	// DefaultMaxWorkers is the number of connections served in parallel
	DefaultMaxWorkers = 16
	// DefaultMaxConnections is the number of accepted connections (serving + waiting)
	DefaultMaxConnections = 256
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
)
