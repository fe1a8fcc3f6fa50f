package constant

import "errors"

// Business error sentinels for the sync core. Each carries a stable numeric
// code; common.ValidateBusinessError maps them onto typed, HTTP-dispatchable
// errors. This package only declares the sentinels - it must not import
// common or common/net/http, since both import this package for the codes.
var (
	ErrInternalServer       = errors.New("0001")
	ErrBadRequest            = errors.New("0002")
	ErrInvalidPathParameter = errors.New("0003")
	ErrMissingFieldsInRequest        = errors.New("0004")
	ErrUnexpectedFieldsInTheRequest  = errors.New("0005")

	ErrStationNotFound    = errors.New("0010")
	ErrDuplicateAPIKey    = errors.New("0011")
	ErrCredentialNotFound = errors.New("0012")
	ErrTokenMissing       = errors.New("0013")
	ErrInvalidToken       = errors.New("0014")
	ErrCredentialRevoked  = errors.New("0015")

	ErrUnknownEntityType    = errors.New("0020")
	ErrInvalidAction        = errors.New("0021")
	ErrInvalidObjectIDKind  = errors.New("0022")
	ErrMalformedDataPayload = errors.New("0023")
	ErrAmbiguousUniqueMatch = errors.New("0024")

	ErrEventNotFound = errors.New("0030")
)
