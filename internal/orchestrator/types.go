package orchestrator

import (
	"real-estate-portal/internal/parser"
)

// Phase names the orchestrator's two-phase pipeline state.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
)

// Stats accumulates the per-kind counters the progress callback reports.
type Stats struct {
	PropertiesFound      int
	PropertiesProcessed  int
	PropertiesAttempted  int
	New                  int
	PriceUpdated         int
	OtherUpdates         int
	RefetchedUnchanged   int
	DetailFetched        int
	DetailSkipped        int
	Errors               int
	PriceMissing         int
	BuildingInfoMissing  int
	PriceMismatch        int
	HTMLStructureErrors  int
	ConflictingAddress   int
	Delisted             int
}

// Snapshot is the value delivered to the progress callback after every page
// and every processed listing.
type Snapshot struct {
	Phase Phase
	Stats
}

// ResumeState is the phase re-entry payload. A pause persists this before
// blocking so that even a process restart can resume with loss of at most
// one listing.
type ResumeState struct {
	Phase          Phase
	CurrentPage    int
	CollectedRows  []parser.ListRow
	ProcessedCount int
	Stats          Stats
}
