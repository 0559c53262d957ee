package flow

import "encoding/json"

// structToMap round-trips a JSON-tagged struct (httpengine's RequestSnapshot
// / ResponseSnapshot) into the map[string]any shape runmodel.StepRun stores,
// keeping internal/flow and internal/runmodel free of a hard dependency on
// internal/httpengine's concrete types.
func structToMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
