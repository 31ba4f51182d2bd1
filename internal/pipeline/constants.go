package pipeline

// Defaults applied when a run leaves the corresponding option unset.
const (
	// DefaultAsset is the asset label loaded when none is configured.
	DefaultAsset = "BTC"

	// DefaultWorkers is the number of join shards.
	DefaultWorkers = 1
)
