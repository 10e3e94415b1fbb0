package ports

import "time"

const (
	TransferTrackerBatchSize = 100             // Pending transfers checked per tracker tick
	ChainCallTimeout         = 15 * time.Second // Upper bound for a single RPC call made by background workers
)
