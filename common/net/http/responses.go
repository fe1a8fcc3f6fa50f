package http

import "github.com/gofiber/fiber/v2"

// NotFound returns a standardized 404 response.
func NotFound(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(ResponseError{Code: 404, Title: title, Message: message})
}

// Conflict returns a standardized 409 response.
func Conflict(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusConflict).JSON(ResponseError{Code: 409, Title: title, Message: message})
}

// BadRequest returns a standardized 400 response. err is typically a
// ValidationKnownFieldsError or ValidationUnknownFieldsError carrying
// per-field detail, but any error value is accepted.
func BadRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(err)
}

// UnprocessableEntity returns a standardized 422 response.
func UnprocessableEntity(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ResponseError{Code: 422, Title: title, Message: message})
}

// Unauthorized returns a standardized 401 response.
func Unauthorized(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ResponseError{Code: 401, Title: title, Message: message})
}

// Forbidden returns a standardized 403 response.
func Forbidden(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusForbidden).JSON(ResponseError{Code: 403, Title: title, Message: message})
}

// InternalServerError returns a standardized 500 response.
func InternalServerError(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ResponseError{Code: 500, Title: title, Message: message})
}

// JSONResponseError writes a ResponseError using its own Code as the HTTP status.
func JSONResponseError(c *fiber.Ctx, err ResponseError) error {
	status := err.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(err)
}
