package app

import "freeda-support/src/config"

// Mode selects how live ticket events travel between processes.
type Mode int

const (
	// LocalMode keeps events in process. Viewers must be attached to the
	// process that handles the ticket's requests.
	LocalMode Mode = iota
	// DistributedMode mirrors every event to Redpanda and relays events
	// published by other replicas to local viewers.
	DistributedMode
)

func (m Mode) String() string {
	if m == DistributedMode {
		return "distributed"
	}
	return "local"
}

// DetectMode picks DistributedMode when brokers are configured.
func DetectMode(cfg *config.Config) Mode {
	if len(cfg.RedpandaBrokers) > 0 {
		return DistributedMode
	}
	return LocalMode
}
