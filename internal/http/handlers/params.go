package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkform/inkform-backend/internal/platform/apierr"
)

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierr.New(http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid %s %q", name, raw))
	}
	return id, nil
}
