package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/parsers"
	"github.com/contabilhub/contabil_backend/reports"
	"github.com/contabilhub/contabil_backend/utils"
)

type payrollParseRequest struct {
	DocumentId     string `json:"documentId"`
	FileName       string `json:"fileName" binding:"required"`
	FileContent    string `json:"fileContent" binding:"required"`
	ReferenceMonth int    `json:"referenceMonth" binding:"required"`
	ReferenceYear  int    `json:"referenceYear" binding:"required"`
	Config         *struct {
		InssEmployerEnabled *bool `json:"inssEmployerEnabled"`
		FgtsEnabled         *bool `json:"fgtsEnabled"`
	} `json:"config"`
}

// payrollParseHandler parses an uploaded payroll file synchronously and
// persists the summary with its per-employee entries. The tenant membership
// check already ran in TenantMiddleware.
func payrollParseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payrollParseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		if err := models.ValidatePayrollReference(req.ReferenceMonth, req.ReferenceYear); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		content, err := base64.StdEncoding.DecodeString(req.FileContent)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileContent must be base64"})
			return
		}

		payrollConfig := parsers.DefaultPayrollConfig()
		if req.Config != nil {
			if req.Config.InssEmployerEnabled != nil {
				payrollConfig.InssEmployerEnabled = *req.Config.InssEmployerEnabled
			}
			if req.Config.FgtsEnabled != nil {
				payrollConfig.FgtsEnabled = *req.Config.FgtsEnabled
			}
		}

		parsed, err := parsers.ParsePayroll(req.FileName, content, payrollConfig)
		if err != nil {
			if errors.Is(err, parsers.ErrExcelNotImplemented) || errors.Is(err, parsers.ErrUnsupportedPayrollFmt) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		clientId, _ := utils.GetClientIdFromContext(ctx)
		userId, _ := utils.GetUserIdFromContext(ctx)

		summary := models.PayrollSummary{
			ClientId:            clientId,
			UserId:              userId,
			DocumentId:          req.DocumentId,
			ReferenceMonth:      req.ReferenceMonth,
			ReferenceYear:       req.ReferenceYear,
			TotalEmployees:      parsed.Totals.TotalEmployees,
			TotalGrossSalary:    parsed.Totals.TotalGrossSalary,
			TotalNetSalary:      parsed.Totals.TotalNetSalary,
			TotalInssEmployee:   parsed.Totals.TotalInssEmployee,
			TotalInssEmployer:   parsed.Totals.TotalInssEmployer,
			TotalFgts:           parsed.Totals.TotalFgts,
			TotalIrrf:           parsed.Totals.TotalIrrf,
			TotalOtherDiscounts: parsed.Totals.TotalOtherDiscounts,
			InssEmployerEnabled: payrollConfig.InssEmployerEnabled,
			FgtsEnabled:         payrollConfig.FgtsEnabled,
		}

		if err := models.CreatePayrollSummaryWithEntries(ctx, config.GetDB(), &summary, parsed.Entries); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to save payroll data: %v", err)})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"payrollSummaryId": summary.ID,
			"referenceMonth":   summary.ReferenceMonth,
			"referenceYear":    summary.ReferenceYear,
			"totals":           parsed.Totals,
		})
	}
}

// payrollExportHandler streams an xlsx workbook of the tenant's payroll
// summaries, optionally filtered by month/year query params.
func payrollExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, _ := strconv.Atoi(c.Query("month"))
		year, _ := strconv.Atoi(c.Query("year"))

		fileName := fmt.Sprintf("folha_%s.xlsx", time.Now().Format("20060102"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

		if err := reports.ExportPayrollExcel(c.Request.Context(), config.GetDB(), c.Writer, month, year); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
}
