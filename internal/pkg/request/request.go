package request

import (
	"strings"

	"shard-exchange/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Body decodes the JSON body into dst. Malformed bodies become domain.ErrInvalidInput.
func Body(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "request body is required")
	}
	if err := c.BodyParser(dst); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, "invalid request body")
	}
	return nil
}

// ParamUUID parses a required path parameter.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return parseUUID(c.Params(name), name)
}

// QueryUUID parses a required query parameter.
func QueryUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return parseUUID(c.Query(name), name)
}

// OptionalQueryUUID returns nil when the parameter is absent.
func OptionalQueryUUID(c *fiber.Ctx, name string) (*uuid.UUID, error) {
	if strings.TrimSpace(c.Query(name)) == "" {
		return nil, nil
	}
	id, err := QueryUUID(c, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Required rejects a zero uuid decoded from a body field.
func Required(id uuid.UUID, name string) error {
	if id == uuid.Nil {
		return errors.Wrapf(domain.ErrInvalidInput, "%s is required", name)
	}
	return nil
}

func parseUUID(raw, name string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, errors.Wrapf(domain.ErrInvalidInput, "%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrapf(domain.ErrInvalidInput, "invalid %s format", name)
	}
	return id, nil
}
