package config

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultDatabaseURL is empty; must be provided via flag or environment.
	DefaultDatabaseURL = ""

	// DefaultStore is the task store backend: "postgres" or "memory".
	DefaultStore = "postgres"

	// DefaultLogFormat is the log output format: "json" or "text".
	DefaultLogFormat = "json"

	// DefaultKafkaTopic receives task lifecycle events.
	DefaultKafkaTopic = "humantask.events"

	// DefaultAWSRegion is used for SES when no region is configured.
	DefaultAWSRegion = "us-east-1"

	// DefaultTemporalNamespace is the namespace linked workflows run in.
	DefaultTemporalNamespace = "default"

	// DefaultAssignmentStrategy leaves group tasks for members to claim.
	DefaultAssignmentStrategy = "none"

	// DefaultMaxConns and DefaultMinConns size the database pool.
	DefaultMaxConns = 10
	DefaultMinConns = 2
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)
