package grader

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
)

func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := parseJSON(c, dst); err != nil {
		return err
	}
	return grading.ValidateStruct(dst)
}

func parseJSON(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return apperr.ErrEmptyBody
	}
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "malformed JSON body")
	}
	return nil
}

func sessionID(c *fiber.Ctx) string {
	return gateway.SessionIDFromCtx(c)
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	v, err := strconv.Atoi(c.Params(name))
	if err != nil || v < 0 {
		return 0, apperr.WithMessage(apperr.ErrBadRequest, fmt.Sprintf("invalid %s %q", name, c.Params(name)))
	}
	return v, nil
}

func itemParam(c *fiber.Ctx) (int64, error) {
	v, err := strconv.ParseInt(c.Params("item"), 10, 64)
	if err != nil || v < 1 {
		return 0, apperr.WithMessage(apperr.ErrBadRequest, fmt.Sprintf("invalid item %q", c.Params("item")))
	}
	return v, nil
}

func sendPDF(c *fiber.Ctx, name string, body []byte, download bool) error {
	disposition := "inline"
	if download {
		disposition = "attachment"
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, name))
	return c.Status(fiber.StatusOK).Send(body)
}
