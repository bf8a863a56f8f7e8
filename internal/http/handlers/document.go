package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkform/inkform-backend/internal/http/response"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/services"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	log       *logger.Logger
	documents services.DocumentService
}

func NewDocumentHandler(log *logger.Logger, documents services.DocumentService) *DocumentHandler {
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), documents: documents}
}

// Create accepts a multipart form: a "pdf" file part plus a "payload" part
// holding the JSON document description.
func (dh *DocumentHandler) Create(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}

	var in services.CreateDocumentInput
	if payload := c.Request.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), &in); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_payload", err)
			return
		}
	}

	file, _, err := c.Request.FormFile("pdf")
	if err == nil {
		defer file.Close()
		in.PDF, err = io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "unreadable_pdf", err)
			return
		}
	}

	doc, err := dh.documents.CreateOneOff(dbctx.New(c.Request.Context()), &userID, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (dh *DocumentHandler) Send(c *gin.Context) {
	userID, docID, err := documentRequest(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	doc, err := dh.documents.Send(dbctx.New(c.Request.Context()), userID, docID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (dh *DocumentHandler) Get(c *gin.Context) {
	userID, docID, err := documentRequest(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	doc, err := dh.documents.Get(dbctx.New(c.Request.Context()), userID, docID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (dh *DocumentHandler) List(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	includeArchived, _ := strconv.ParseBool(c.Query("include_archived"))
	docs, err := dh.documents.List(dbctx.New(c.Request.Context()), userID, includeArchived)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

func (dh *DocumentHandler) Archive(c *gin.Context) {
	dh.setArchived(c, true)
}

func (dh *DocumentHandler) Unarchive(c *gin.Context) {
	dh.setArchived(c, false)
}

func (dh *DocumentHandler) setArchived(c *gin.Context, archived bool) {
	userID, docID, err := documentRequest(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := dh.documents.SetArchived(dbctx.New(c.Request.Context()), userID, docID, archived); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (dh *DocumentHandler) AuditTrail(c *gin.Context) {
	userID, docID, err := documentRequest(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	events, err := dh.documents.AuditTrail(dbctx.New(c.Request.Context()), userID, docID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}

func (dh *DocumentHandler) SignedPdfURL(c *gin.Context) {
	userID, docID, err := documentRequest(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	url, err := dh.documents.SignedPdfURL(dbctx.New(c.Request.Context()), userID, docID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}

func documentRequest(c *gin.Context) (uuid.UUID, uuid.UUID, error) {
	userID, err := requestUserID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	docID, err := pathUUID(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, docID, nil
}
