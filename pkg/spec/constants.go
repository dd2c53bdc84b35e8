package spec

const (
	IntervalsPerSlot = 3

	// aggregator selection
	TargetAggregatorsPerCommittee        = 16
	TargetAggregatorsPerSyncSubcommittee = 16
	SyncCommitteeSubnetCount             = 4
)

type ForkName string

const (
	ForkPhase0    ForkName = "phase0"
	ForkAltair    ForkName = "altair"
	ForkBellatrix ForkName = "bellatrix"
	ForkCapella   ForkName = "capella"
	ForkDeneb     ForkName = "deneb"
)
