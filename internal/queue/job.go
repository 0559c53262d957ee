package queue

import "encoding/json"

// Job is the transport envelope for a Run between submission and worker
// (spec §3 "Job"): `{run_id, execution_options, label}`. The Job's own
// retry policy is fixed at attempts=1 (§4.10 "the Job's own retry policy is
// disabled... to avoid re-executing a semantically-completed run on a
// transient post-completion crash") — retrying a *step* inside a Run is a
// wholly separate concern handled by internal/step/internal/flow.
type Job struct {
	RunID           string         `json:"run_id"`
	SuiteRef        string         `json:"suite_ref"`
	VersionRef      string         `json:"version_ref"`
	Label           string         `json:"label,omitempty"`
	SkipValidation  bool           `json:"skip_validation,omitempty"`
	Variables       map[string]any `json:"variables,omitempty"`
	InputPayload    map[string]any `json:"input_payload,omitempty"`
}

// Marshal/Unmarshal round-trip a Job through the queue transport (a redis
// list entry) as JSON.
func (j Job) Marshal() ([]byte, error) { return json.Marshal(j) }

func UnmarshalJob(data []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(data, &j)
	return j, err
}
