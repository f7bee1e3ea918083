package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonCatalogLoad ReasonCode = "catalog_load"

	ReasonOrderIntegrity ReasonCode = "order_integrity"
	ReasonLedgerRead     ReasonCode = "ledger_read"
	ReasonLedgerWrite    ReasonCode = "ledger_write"
	ReasonLedgerMigrate  ReasonCode = "ledger_migrate"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonToolFailed  ReasonCode = "tool_failed"
	ReasonToolTimeout ReasonCode = "tool_timeout"
	ReasonToolArgs    ReasonCode = "tool_args"

	ReasonNotifySend ReasonCode = "notify_send"

	ReasonGatewayProtocol ReasonCode = "gateway_protocol"
	ReasonGatewaySend     ReasonCode = "gateway_send"
)
