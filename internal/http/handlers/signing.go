package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkform/inkform-backend/internal/http/middleware"
	"github.com/inkform/inkform-backend/internal/http/response"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/services"
	"github.com/inkform/inkform-backend/internal/signing"
)

// SigningHandler serves the public signing surface. Callers authenticate with
// a signing token, not a user account, so every endpoint resolves the token
// into a session before touching the document.
type SigningHandler struct {
	log     *logger.Logger
	signing services.SigningService
}

func NewSigningHandler(log *logger.Logger, signingService services.SigningService) *SigningHandler {
	return &SigningHandler{log: log.With("handler", "SigningHandler"), signing: signingService}
}

func (sh *SigningHandler) session(c *gin.Context) (dbctx.Context, *signing.Session, error) {
	dbc := dbctx.New(c.Request.Context())
	docID, err := pathUUID(c, "documentID")
	if err != nil {
		return dbc, nil, err
	}
	token := middleware.ExtractToken(c)
	if token == "" {
		return dbc, nil, apierr.Unauthorized(errors.New("missing signing token"))
	}
	sess, err := sh.signing.ResolveSession(dbc, docID, token)
	if err != nil {
		return dbc, nil, err
	}
	return dbc, sess, nil
}

func (sh *SigningHandler) Meta(c *gin.Context) {
	dbc, sess, err := sh.session(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	meta, err := sh.signing.Meta(dbc, sess)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, meta)
}

// SubmitSignature accepts the rendered signature image either as a multipart
// "image" part or as the raw request body with an image content type.
func (sh *SigningHandler) SubmitSignature(c *gin.Context) {
	dbc, sess, err := sh.session(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	spotKey := c.Param("spotKey")

	image, mimeType, err := readSignatureImage(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_image", err)
		return
	}
	if err := sh.signing.SubmitSignature(dbc, sess, spotKey, image, mimeType); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func readSignatureImage(c *gin.Context) ([]byte, string, error) {
	file, header, err := c.Request.FormFile("image")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, "", err
		}
		return data, header.Header.Get("Content-Type"), nil
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		return nil, "", err
	}
	return data, c.ContentType(), nil
}

func (sh *SigningHandler) SubmitValue(c *gin.Context) {
	dbc, sess, err := sh.session(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	spotKey := c.Param("spotKey")

	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := sh.signing.SubmitValue(dbc, sess, spotKey, req.Value); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (sh *SigningHandler) Complete(c *gin.Context) {
	dbc, sess, err := sh.session(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	outcome, err := sh.signing.Complete(dbc, sess)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, outcome)
}
