package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"quickedit/internal/apperr"
	"quickedit/internal/models"
)

func successResponse(c echo.Context, resp models.SyncResponse) error {
	resp.Success = true
	return c.JSON(http.StatusOK, resp)
}

func errorResponse(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.SyncResponse{
		Success: false,
		Error:   msg,
	})
}

// failure maps an error to a response. Invalid input is a 400; scheduler
// bookkeeping and run failures are reported in the body.
func failure(c echo.Context, err error) error {
	if errors.Is(err, apperr.ErrValidation) {
		return c.JSON(http.StatusBadRequest, models.SyncResponse{
			Success: false,
			Error:   err.Error(),
		})
	}
	return errorResponse(c, err.Error())
}

// parseBodyAction extracts the "actions" field from request body.
// All sync API requests carry one.
func parseBodyAction(c echo.Context) (string, map[string]interface{}, error) {
	body := make(map[string]interface{})
	if err := c.Bind(&body); err != nil {
		return "", nil, err
	}
	action, _ := body["actions"].(string)
	c.Set("api_actions", action) // for logging middleware
	return action, body, nil
}

// getStringField gets a string field from the body map.
func getStringField(body map[string]interface{}, key string) string {
	if v, ok := body[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		// Handle numbers that should be strings
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.0f", f)
		}
	}
	return ""
}

// getIntField gets an int field from the body map.
func getIntField(body map[string]interface{}, key string, defaultVal int) int {
	if v, ok := body[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			if i, err := strconv.Atoi(t); err == nil {
				return i
			}
		}
	}
	return defaultVal
}

func intPtr(n int) *int {
	return &n
}

func errorResponseWithRun(c echo.Context, msg string, run *models.RunSummary) error {
	return c.JSON(http.StatusOK, models.SyncResponse{
		Success:              false,
		Error:                msg,
		UpdatedProductsCount: intPtr(run.Updated),
		Run:                  run,
	})
}
