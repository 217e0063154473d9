package errs

// Error code ranges: 1xxx client input, 2xxx storage, 3xxx delivery, 4xxx transport.
const (
	ValidationErrorCode  = 1001
	StoreUnavailableCode = 2001
	DeliveryErrorCode    = 3001
	ConnectionGoneCode   = 4001

	ServerInternalError = 5000
)

var (
	ErrValidation       = NewCodeError(ValidationErrorCode, "invalid event payload")
	ErrStoreUnavailable = NewCodeError(StoreUnavailableCode, "message store unavailable")
	ErrDelivery         = NewCodeError(DeliveryErrorCode, "push delivery failed")
	ErrConnectionGone   = NewCodeError(ConnectionGoneCode, "connection no longer reachable")
)
