package esign

// Provider submission statuses as returned by the API.
const (
	StatusPending   = "pending"
	StatusViewed    = "viewed"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
)

// Webhook event types emitted by the provider.
const (
	EventSubmissionViewed    = "submission.viewed"
	EventSubmissionCompleted = "submission.completed"
	EventSubmissionDeclined  = "submission.declined"
)
