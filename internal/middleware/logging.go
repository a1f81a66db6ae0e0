package middleware

import (
	"errors"
	"time"

	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

const requestIDKey = "requestID"

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Locals(requestIDKey, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)

		err := c.Next()
		if err != nil {
			// Render the error now so the logged status matches the response.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		statusCode := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":        c.Method(),
			"path":          c.Path(),
			"status_code":   statusCode,
			"latency_ms":    time.Since(start).Milliseconds(),
			"user_agent":    c.Get(fiber.HeaderUserAgent),
			"ip":            c.IP(),
			"request_body":  logger.GetRequestBodySummary(c),
			"response_body": logger.GetResponseSizeSummary(c),
			"request_id":    requestID,
		}

		userID := logger.GetUserIDFromContext(c)
		switch {
		case statusCode >= 500 && userID != nil:
			logger.ErrorWithUser(*userID, "http_request", err, details)
		case statusCode >= 500:
			logger.Error("http_request", err, details)
		case statusCode >= 400 && userID != nil:
			logger.WarnWithUser(*userID, "http_request", details)
		case statusCode >= 400:
			logger.Warn("http_request", details)
		case userID != nil:
			logger.InfoWithUser(*userID, "http_request", details)
		default:
			logger.Info("http_request", details)
		}

		return nil
	}
}

// SecurityLogger records denied and not-found requests, which is where
// probing for other users' IDs shows up.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		statusCode := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			statusCode = fiberErr.Code
		}
		if statusCode != fiber.StatusForbidden && statusCode != fiber.StatusNotFound {
			return err
		}

		reason := "not_found"
		if statusCode == fiber.StatusForbidden {
			reason = "access_denied"
		}

		userID := logger.GetUserIDFromContext(c)
		details := map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"reason": reason,
		}
		if userID != nil {
			logger.WarnWithUser(*userID, reason, details)
		} else {
			logger.Warn(reason+"_unauthenticated", details)
		}

		return err
	}
}

// GetRequestID returns the ID assigned by RequestLogger.
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}
