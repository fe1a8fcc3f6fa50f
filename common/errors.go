package common

import (
	"errors"
	"fmt"
	"strings"

	cn "github.com/lerianstudio/midaz-sync/common/constant"
)

// EntityNotFoundError records an error indicating an entity was not found in any case that caused it.
// You can use it to representing a Database not found, cache not found or any other repository.
type EntityNotFoundError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

// NewEntityNotFoundError creates an instance of EntityNotFoundError.
func NewEntityNotFoundError(entityType string) EntityNotFoundError {
	return EntityNotFoundError{
		EntityType: entityType,
		Code:       "",
		Title:      "",
		Message:    "",
		Err:        nil,
	}
}

// WrapEntityNotFoundError creates an instance of EntityNotFoundError.
func WrapEntityNotFoundError(entityType string, err error) EntityNotFoundError {
	return EntityNotFoundError{
		EntityType: entityType,
		Code:       "",
		Title:      "",
		Message:    "",
		Err:        err,
	}
}

// Error implements the error interface.
func (e EntityNotFoundError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		if strings.TrimSpace(e.EntityType) != "" {
			return fmt.Sprintf("Entity %s not found", e.EntityType)
		}

		if e.Err != nil && strings.TrimSpace(e.Message) == "" {
			return e.Err.Error()
		}

		return "entity not found"
	}

	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e EntityNotFoundError) Unwrap() error {
	return e.Err
}

// ValidationError records an error indicating that request input failed validation.
// WithError renders it as a 400 response.
type ValidationError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("%s - %s", e.Code, e.Message)
	}

	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// EntityConflictError records an error indicating an entity already exists in some repository
// You can use it to representing a Database conflict, cache or any other repository.
type EntityConflictError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

// Error implements the error interface.
func (e EntityConflictError) Error() string {
	if e.Err != nil && strings.TrimSpace(e.Message) == "" {
		return e.Err.Error()
	}

	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e EntityConflictError) Unwrap() error {
	return e.Err
}

// UnauthorizedError indicates an operation that couldn't be performant because there's no user authenticated.
type UnauthorizedError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e UnauthorizedError) Error() string {
	return e.Message
}

// ForbiddenError indicates an operation that couldn't be performant because the authenticated user has no sufficient privileges.
type ForbiddenError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e ForbiddenError) Error() string {
	return e.Message
}

// UnprocessableOperationError indicates an operation that couldn't be performant because it's invalid.
type UnprocessableOperationError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

func (e UnprocessableOperationError) Error() string {
	return e.Message
}

// HTTPError indicates a http error raised in a http client.
type HTTPError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

func (e HTTPError) Error() string {
	return e.Message
}

// FailedPreconditionError indicates a precondition failed during an operation.
type FailedPreconditionError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e FailedPreconditionError) Error() string {
	return e.Message
}

// InternalServerError indicates an unexpected server-side failure during an operation.
type InternalServerError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e InternalServerError) Error() string {
	return e.Message
}

// ResponseError is a struct used to return errors to the client.
type ResponseError struct {
	Code    int    `json:"code,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error returns the message of the ResponseError.
//
// No parameters.
// Returns a string.
func (r ResponseError) Error() string {
	return r.Message
}

// ValidationKnownFieldsError records an error that occurred during a validation of known fields.
type ValidationKnownFieldsError struct {
	EntityType string           `json:"entityType,omitempty"`
	Title      string           `json:"title,omitempty"`
	Code       string           `json:"code,omitempty"`
	Message    string           `json:"message,omitempty"`
	Fields     FieldValidations `json:"fields,omitempty"`
}

// Error returns the error message for a ValidationKnownFieldsError.
//
// No parameters.
// Returns a string.
func (r ValidationKnownFieldsError) Error() string {
	return r.Message
}

// FieldValidations is a map of known fields and their validation errors.
type FieldValidations map[string]string

// ValidationUnknownFieldsError records an error that occurred during a validation of known fields.
type ValidationUnknownFieldsError struct {
	EntityType string        `json:"entityType,omitempty"`
	Title      string        `json:"title,omitempty"`
	Code       string        `json:"code,omitempty"`
	Message    string        `json:"message,omitempty"`
	Fields     UnknownFields `json:"fields,omitempty"`
}

// Error returns the error message for a ValidationUnknownFieldsError.
//
// No parameters.
// Returns a string.
func (r ValidationUnknownFieldsError) Error() string {
	return r.Message
}

// UnknownFields is a map of unknown fields and their error messages.
type UnknownFields map[string]any

// Methods to create errors for different scenarios:

// ValidateInternalError validates the error and returns an appropriate InternalServerError.
//
// Parameters:
// - err: The error to be validated.
// - entityType: The type of the entity associated with the error.
//
// Returns:
// - An InternalServerError with the appropriate code, title, message.
func ValidateInternalError(err error, entityType string) error {
	return InternalServerError{
		EntityType: entityType,
		Code:       cn.ErrInternalServer.Error(),
		Title:      "Internal Server Error",
		Message:    "The server encountered an unexpected error. Please try again later or contact support.",
		Err:        err,
	}
}

// ValidateBadRequestFieldsError merges the set of fields that failed a
// "required" validation with the full set of invalid fields and returns a
// single ValidationKnownFieldsError describing both.
func ValidateBadRequestFieldsError(requiredFields, invalidFields FieldValidations) error {
	if len(requiredFields) == 0 && len(invalidFields) == 0 {
		return errors.New("expected requiredFields and invalidFields to be non-empty")
	}

	fields := make(FieldValidations, len(requiredFields)+len(invalidFields))

	for k, v := range invalidFields {
		fields[k] = v
	}

	for k, v := range requiredFields {
		fields[k] = v
	}

	return ValidationKnownFieldsError{
		Code:    cn.ErrBadRequest.Error(),
		Title:   "Bad Request",
		Message: "The server could not understand the request due to malformed syntax. Please check the listed fields and try again.",
		Fields:  fields,
	}
}

// ValidateUnexpectedFieldsError reports top-level fields present in a request
// body that the target struct does not declare.
func ValidateUnexpectedFieldsError(entityType string, unknownFields UnknownFields) error {
	return ValidationUnknownFieldsError{
		EntityType: entityType,
		Code:       cn.ErrUnexpectedFieldsInTheRequest.Error(),
		Title:      "Unexpected Fields in the Request",
		Message:    "The request body contains more fields than expected. Please send only the allowed fields as per the documentation. The unexpected fields are listed in the fields object.",
		Fields:     unknownFields,
	}
}

// ValidateBusinessError validates the error and returns the appropriate business error code, title, and message.
//
// Parameters:
//   - err: The error to be validated (ref: https://github.com/lerianstudio/midaz-sync/common/constant/errors.go).
//   - entityType: The type of the entity related to the error.
//   - args: Additional arguments for formatting error messages.
//
// Returns:
//   - error: The appropriate business error with code, title, and message.
//
//nolint:gocyclo
func ValidateBusinessError(err error, entityType string, args ...any) error {
	switch {
	case errors.Is(err, cn.ErrStationNotFound):
		return EntityNotFoundError{
			EntityType: entityType,
			Code:       cn.ErrStationNotFound.Error(),
			Title:      "Station Not Found",
			Message:    "No station was found for the given ID. Please make sure to use the correct station ID.",
		}
	case errors.Is(err, cn.ErrDuplicateAPIKey):
		return EntityConflictError{
			EntityType: entityType,
			Code:       cn.ErrDuplicateAPIKey.Error(),
			Title:      "Duplicate API Key",
			Message:    "The generated API key already exists. Please retry the credential issuance.",
		}
	case errors.Is(err, cn.ErrCredentialNotFound):
		return EntityNotFoundError{
			EntityType: entityType,
			Code:       cn.ErrCredentialNotFound.Error(),
			Title:      "Credential Not Found",
			Message:    "No station credential was found for the given API key.",
		}
	case errors.Is(err, cn.ErrTokenMissing):
		return UnauthorizedError{
			EntityType: entityType,
			Code:       cn.ErrTokenMissing.Error(),
			Title:      "Token Missing",
			Message:    "An Authorization header with an Api-Key token must be provided.",
		}
	case errors.Is(err, cn.ErrInvalidToken):
		return UnauthorizedError{
			EntityType: entityType,
			Code:       cn.ErrInvalidToken.Error(),
			Title:      "Invalid Token",
			Message:    "The provided API key is unknown or has been revoked.",
		}
	case errors.Is(err, cn.ErrCredentialRevoked):
		return ForbiddenError{
			EntityType: entityType,
			Code:       cn.ErrCredentialRevoked.Error(),
			Title:      "Credential Revoked",
			Message:    "This station's credential has been revoked and can no longer push or pull changes.",
		}
	case errors.Is(err, cn.ErrUnknownEntityType):
		return ValidationError{
			EntityType: entityType,
			Code:       cn.ErrUnknownEntityType.Error(),
			Title:      "Unknown Entity Type",
			Message:    fmt.Sprintf("The model tag %s is not registered in the entity registry. Please check the sync configuration for the accepted entity types.", args...),
		}
	case errors.Is(err, cn.ErrInvalidAction):
		return ValidationError{
			EntityType: entityType,
			Code:       cn.ErrInvalidAction.Error(),
			Title:      "Invalid Action",
			Message:    "The action field must be one of C, U or D.",
		}
	case errors.Is(err, cn.ErrInvalidObjectIDKind):
		return ValidationError{
			EntityType: entityType,
			Code:       cn.ErrInvalidObjectIDKind.Error(),
			Title:      "Invalid Object ID",
			Message:    fmt.Sprintf("The object_id %s does not match the primary key kind declared for this entity.", args...),
		}
	case errors.Is(err, cn.ErrMalformedDataPayload):
		return ValidationError{
			EntityType: entityType,
			Code:       cn.ErrMalformedDataPayload.Error(),
			Title:      "Malformed Data Payload",
			Message:    "The data_payload field must be a JSON object matching the registered entity's schema.",
		}
	case errors.Is(err, cn.ErrAmbiguousUniqueMatch):
		return EntityConflictError{
			EntityType: entityType,
			Code:       cn.ErrAmbiguousUniqueMatch.Error(),
			Title:      "Ambiguous Unique Match",
			Message:    fmt.Sprintf("More than one existing row matched the unique fields of the incoming change for %s. The change cannot be applied unambiguously.", args...),
		}
	case errors.Is(err, cn.ErrEventNotFound):
		return EntityNotFoundError{
			EntityType: entityType,
			Code:       cn.ErrEventNotFound.Error(),
			Title:      "Event Not Found",
			Message:    "No event was found for the given ID.",
		}
	case errors.Is(err, cn.ErrInvalidPathParameter):
		return ValidationError{
			EntityType: entityType,
			Code:       cn.ErrInvalidPathParameter.Error(),
			Title:      "Invalid Path Parameter",
			Message:    fmt.Sprintf("One or more path parameters are invalid: %s", args...),
		}
	case errors.Is(err, cn.ErrMissingFieldsInRequest):
		return ValidationError{
			EntityType: entityType,
			Code:       cn.ErrMissingFieldsInRequest.Error(),
			Title:      "Missing Fields in Request",
			Message:    "Your request is missing one or more required fields.",
		}
	default:
		return err
	}
}
