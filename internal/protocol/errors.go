package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Road geometry edits.
	ErrInvalidGeometry = "E_INVALID_GEOMETRY"
	ErrNotFound        = "E_NOT_FOUND"

	// Routing queries.
	ErrUnreachable     = "E_UNREACHABLE"
	ErrInvalidEndpoint = "E_INVALID_ENDPOINT"

	// Generic.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrRateLimit  = "E_RATE_LIMIT"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrInvalidGeometry: {},
	ErrNotFound:        {},
	ErrUnreachable:     {},
	ErrInvalidEndpoint: {},
	ErrBadRequest:      {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
