package model

// Record is one structured item returned by extraction, keyed by field name.
type Record map[string]any

// ErrorRecord builds the explicit {error, reason} record used when nothing
// could be extracted.
func ErrorRecord(msg, reason string) Record {
	return Record{"error": msg, "reason": reason}
}

// ErrorOnly reports whether records carry no data, only error records.
// It returns the first error message and reason when that is the case.
func ErrorOnly(records []Record) (msg, reason string, ok bool) {
	if len(records) == 0 {
		return "", "", false
	}
	for _, r := range records {
		if _, has := r["error"]; !has {
			return "", "", false
		}
	}
	msg, _ = records[0]["error"].(string)
	reason, _ = records[0]["reason"].(string)
	return msg, reason, true
}

// Status is the terminal state of one URL.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the per-URL result appended to a batch.
type Outcome struct {
	URL     string   `json:"url"`
	Status  Status   `json:"status"`
	Data    []Record `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details string   `json:"details,omitempty"`
}

// Succeeded reports whether the outcome carries data.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// BatchMetadata describes how a batch ran.
type BatchMetadata struct {
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	TimestampUTC          string   `json:"timestamp_utc"`
	RequiredFields        []string `json:"required_fields"`
	BatchID               string   `json:"batch_id,omitempty"`
	OptimizationMode      string   `json:"optimization_mode,omitempty"`
}

// BatchOutcome is the aggregated result of a batch run.
type BatchOutcome struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Results    []Outcome     `json:"results"`
	Metadata   BatchMetadata `json:"metadata"`
}
