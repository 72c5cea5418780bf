package pluginapi

import "encoding/json"

// RunnerRequestKind tags a RunnerRequest, carried as a GilbertRequest's
// Inner-equivalent once IntoRunnerProtocol has switched the wire protocol.
// Supplements the dropped runner_proto.rs specialization.
type RunnerRequestKind string

const (
	RunnerRequestRunTask RunnerRequestKind = "run_task"
)

// RunnerRequest asks a runner plugin to execute one job.
type RunnerRequest struct {
	Kind   RunnerRequestKind `json:"kind"`
	Job    string            `json:"job"`
	Params json.RawMessage   `json:"params,omitempty"`
}

// RunnerResponseKind tags a RunnerResponse.
type RunnerResponseKind string

const (
	RunnerResponseStartingJob   RunnerResponseKind = "starting_job"
	RunnerResponseStartingStage RunnerResponseKind = "starting_stage"
	RunnerResponseFinishedStage RunnerResponseKind = "finished_stage"
	RunnerResponseJobStdout     RunnerResponseKind = "job_stdout"
	RunnerResponseJobStderr     RunnerResponseKind = "job_stderr"
	RunnerResponseFinishedJob   RunnerResponseKind = "finished_job"
)

// RunnerResponse reports the progress and outcome of a RunnerRequest.
type RunnerResponse struct {
	Kind  RunnerResponseKind `json:"kind"`
	Stage string             `json:"stage,omitempty"`
	Text  string             `json:"text,omitempty"`
	// Result carries the job's return value on RunnerResponseFinishedJob,
	// or an error message if the job failed.
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
