package pipeline

import "github.com/raphaelgruber/sheetcast/internal/models"

// Stage names.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageAnalyze   = "analyze"
	StageRefine    = "refine"
	StageExport    = "export"
	StageDocument  = "document"
)

// Descriptor declares a stage's phase and how its failures are handled.
type Descriptor struct {
	Name   string
	Status models.JobStatus
	Kind   Kind // failure class
}

// Progress is the percentage reported while the stage runs.
func (d Descriptor) Progress() int {
	return d.Status.Progress()
}

// Fatal reports whether a failure of this stage fails the job.
func (d Descriptor) Fatal() bool {
	return d.Kind != KindDegradable && d.Kind != KindBestEffort
}

// Descriptors lists the stages in execution order.
var Descriptors = []Descriptor{
	{Name: StageFetch, Status: models.StatusDownloading, Kind: KindRetrieval},
	{Name: StageNormalize, Status: models.StatusProcessing, Kind: KindProcessing},
	{Name: StageAnalyze, Status: models.StatusTranscribing, Kind: KindProcessing},
	{Name: StageRefine, Status: models.StatusTranscribing, Kind: KindDegradable},
	{Name: StageExport, Status: models.StatusConverting, Kind: KindProcessing},
	{Name: StageDocument, Status: models.StatusConverting, Kind: KindBestEffort},
}
