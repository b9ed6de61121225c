package log

// Common field names for structured logging
const (
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldAssetID     = "asset_id"
	FieldEventID     = "event_id"
	FieldHiddenCents = "hidden_cost_cents"
	FieldTotalCents  = "total_cost_cents"
	FieldPartial     = "partial"
	FieldAsOf        = "as_of"
)

// Components defines standard component names
const (
	ComponentApp    = "beni"
	ComponentWorker = "beni-worker"
)
