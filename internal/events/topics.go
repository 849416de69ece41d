package events

const (
	TopicJobStarted     = "job.started"
	TopicStatusFrame    = "job.status"
	TopicMalformedFrame = "job.malformed"
	TopicJobOutcome     = "job.outcome"
)
