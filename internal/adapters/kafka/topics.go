package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicRecords carries every persisted MVRV record (hourly and daily)
	TopicRecords = "mvrv.records"

	// TopicCycles carries estimation cycle summaries
	TopicCycles = "mvrv.cycles"
)
