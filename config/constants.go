package config

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultListen is the address the HTTP API binds to
	DefaultListen = "127.0.0.1:8090"

	// DefaultStatePath is where the tree snapshot is persisted
	DefaultStatePath = "deskfs-state.json"

	// DefaultSaveDebounceMS coalesces snapshot saves after a mutation burst
	DefaultSaveDebounceMS = 1500

	// DefaultPrimaryUser is the default desktop account; it is protected
	// from deletion alongside root
	DefaultPrimaryUser = "user"

	// StorageKey identifies the snapshot in the backing store
	StorageKey = "deskfs:filesystem"
)
