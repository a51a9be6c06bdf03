package domain

// Stage names one step of the article pipeline.
type Stage string

const (
	StagePlan    Stage = "plan"
	StageImages  Stage = "images"
	StageBody    Stage = "body"
	StageCompose Stage = "compose"
	StagePublish Stage = "publish"
	StageSource  Stage = "source"
)

// RunState is the coordinator's position in the pipeline.
type RunState string

const (
	StateStarted        RunState = "started"
	StatePlanned        RunState = "planned"
	StateImagesResolved RunState = "images_resolved"
	StateBodyGenerated  RunState = "body_generated"
	StatePublished      RunState = "published"
	StateCompleted      RunState = "completed"
	StateFailed         RunState = "failed"
)

// ProcessStatus is the outcome written back to the worklist.
type ProcessStatus string

const (
	StatusSuccess ProcessStatus = "success"
	StatusError   ProcessStatus = "error"
)
