package kafkaconfig

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"

	DefaultNotificationsTopic = "spacebook.notifications"
	DefaultCascadeRetryTopic  = "spacebook.cascade-retry"
	DefaultCascadeDLQTopic    = "spacebook.cascade-retry.dlq"
	DefaultCascadeWorkerGroup = "spacebook-cascade-worker"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // all replicas
	DefaultProducerCompression  = "snappy"

	DefaultConsumerStartOffset       = -2 // oldest; retries must not be skipped on first start
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 10 * 1024 * 1024 // 10MB
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = 1 * time.Second
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerRebalanceTimeout  = 60 * time.Second
	DefaultConsumerMaxRetries        = 5
	DefaultConsumerRetryBackoff      = 2 * time.Second

	DefaultEnableMiddleware = true
)
