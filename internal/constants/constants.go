package constants

// AppName names the config directory and the binary.
const AppName = "dynips"

// Defaults applied when the config file leaves a field unset.
const (
	DefaultIP                = "127.0.0.1" // DNS placeholder for a host with no address
	DefaultTTL               = 60
	DefaultMaxAge            = 3600
	DefaultMaxErrors         = 5
	DefaultListen            = ":8080"
	DefaultExpireInterval    = 300
	DefaultReconcileInterval = 600
	DefaultRefreshInterval   = 15
	MinRefreshInterval       = 5
	DefaultSQLitePath        = "dynips.db"
)

// Store backends.
const (
	StoreS3     = "s3"
	StoreSQLite = "sqlite"
)

// Scheduler job names.
const (
	JobExpire    = "expire"
	JobReconcile = "reconcile"
)
