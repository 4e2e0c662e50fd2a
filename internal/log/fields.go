package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldBudget      = "budget"
	FieldAccount     = "account"
	FieldTransaction = "transaction"
	FieldUser        = "user"
	FieldAmount      = "amount"
	FieldDate        = "date"
	FieldPeriodStart = "period_start"
	FieldPoolIdle    = "pool_idle"
	FieldPoolInUse   = "pool_in_use"
	FieldBatchSize   = "batch_size"
	FieldDuration    = "duration_ms"
	FieldBackend     = "backend"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentPool     = "pool"
	ComponentGraph    = "graph"
	ComponentEntity   = "entity"
	ComponentBalance  = "balance"
	ComponentImporter = "importer"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSchema   = "schema"
)

// Operations defines standard operation names
const (
	OpAcquire  = "acquire"
	OpRelease  = "release"
	OpResolve  = "resolve"
	OpCreate   = "create"
	OpLoad     = "load"
	OpImport   = "import"
	OpDrain    = "drain"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
