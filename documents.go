package main

import (
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/ingestion"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

const defaultMaxUploadBytes = 50 << 20 // 50 MB

func maxUploadBytes() int64 {
	v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES"))
	if v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultMaxUploadBytes
}

type uploadDocumentRequest struct {
	FileName    string         `json:"filename" binding:"required"`
	Type        string         `json:"type" binding:"required,doctype"`
	ContentType string         `json:"contentType"`
	Content     string         `json:"content" binding:"required"`
	Metadata    models.JSONMap `json:"metadata"`
}

func uploadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uploadDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content must be base64"})
			return
		}
		if int64(len(content)) > maxUploadBytes() {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		document, err := newOrchestrator().UploadDocument(c.Request.Context(), ingestion.UploadInput{
			Type:        models.DocumentType(req.Type),
			FileName:    req.FileName,
			ContentType: req.ContentType,
			Content:     content,
			Metadata:    req.Metadata,
		})
		if err != nil {
			if errors.Is(err, ingestion.ErrInvalidDocumentType) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, document)
	}
}

func listDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		offset := 0
		if v := c.Query("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		documents, total, err := models.ListDocuments(
			c.Request.Context(),
			config.GetDB(),
			models.DocumentStatus(c.Query("status")),
			models.DocumentType(c.Query("type")),
			limit,
			offset,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"documents": documents, "total": total})
	}
}

func getDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		document, err := models.GetDocumentById(c.Request.Context(), config.GetDB(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, document)
	}
}

func deleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := newOrchestrator().DeleteDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type ingestDocumentRequest struct {
	DocumentId string `json:"documentId" binding:"required"`
}

func ingestDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		result, err := newOrchestrator().ProcessDocument(c.Request.Context(), req.DocumentId)
		if err != nil {
			writeProcessError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reprocessDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := newOrchestrator().ReprocessDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeProcessError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func writeProcessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, ingestion.ErrDocumentNotPending),
		errors.Is(err, ingestion.ErrReprocessNotFailed),
		errors.Is(err, ingestion.ErrReprocessLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
