package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkform/inkform-backend/internal/http/response"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/services"
)

type StorageConnectionHandler struct {
	log         *logger.Logger
	connections services.StorageConnectionService
}

func NewStorageConnectionHandler(log *logger.Logger, connections services.StorageConnectionService) *StorageConnectionHandler {
	return &StorageConnectionHandler{
		log:         log.With("handler", "StorageConnectionHandler"),
		connections: connections,
	}
}

func (sch *StorageConnectionHandler) Connect(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.ConnectStorageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := sch.connections.Connect(dbctx.New(c.Request.Context()), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

func (sch *StorageConnectionHandler) Get(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	view, err := sch.connections.Get(dbctx.New(c.Request.Context()), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

func (sch *StorageConnectionHandler) Disconnect(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := sch.connections.Disconnect(dbctx.New(c.Request.Context()), userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
