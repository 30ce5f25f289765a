package logkey

// Shared structured-log attribute keys.
const (
	TraceID   = "trace_id"
	ERROR     = "error"
	EventID   = "event_id"
	EventType = "event_type"
	SellerID  = "seller_id"
	AccountID = "account_id"
	OrderID   = "order_id"
	SessionID = "session_id"
)
