package reports

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

// PayrollExportRow is one sheet line of the payroll summary export.
type PayrollExportRow struct {
	ReferenceMonth int
	ReferenceYear  int
	TotalEmployees int
	GrossSalary    string
	InssEmployee   string
	InssEmployer   string
	Fgts           string
	Irrf           string
	NetSalary      string
}

func getPayrollExportRows(ctx context.Context, db *gorm.DB, month int, year int) ([]PayrollExportRow, error) {
	clientId, ok := utils.GetClientIdFromContext(ctx)
	if !ok || clientId == "" {
		return nil, errors.New("client id is required")
	}

	summaries, err := models.ListPayrollSummaries(ctx, db, month, year, 100)
	if err != nil {
		return nil, err
	}

	rows := make([]PayrollExportRow, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, PayrollExportRow{
			ReferenceMonth: summary.ReferenceMonth,
			ReferenceYear:  summary.ReferenceYear,
			TotalEmployees: summary.TotalEmployees,
			GrossSalary:    summary.TotalGrossSalary.StringFixed(2),
			InssEmployee:   summary.TotalInssEmployee.StringFixed(2),
			InssEmployer:   summary.TotalInssEmployer.StringFixed(2),
			Fgts:           summary.TotalFgts.StringFixed(2),
			Irrf:           summary.TotalIrrf.StringFixed(2),
			NetSalary:      summary.TotalNetSalary.StringFixed(2),
		})
	}
	return rows, nil
}

// ExportPayrollExcel writes an xlsx workbook of the tenant's payroll
// summaries to w.
func ExportPayrollExcel(ctx context.Context, db *gorm.DB, w io.Writer, month int, year int) error {
	rows, err := getPayrollExportRows(ctx, db, month, year)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheetName := "Folha"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Add headers
	f.SetCellValue(sheetName, "A1", "Competencia")
	f.SetCellValue(sheetName, "B1", "Funcionarios")
	f.SetCellValue(sheetName, "C1", "SalarioBruto")
	f.SetCellValue(sheetName, "D1", "INSSFuncionario")
	f.SetCellValue(sheetName, "E1", "INSSPatronal")
	f.SetCellValue(sheetName, "F1", "FGTS")
	f.SetCellValue(sheetName, "G1", "IRRF")
	f.SetCellValue(sheetName, "H1", "SalarioLiquido")

	// Add data
	for i, row := range rows {
		line := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+line, fmt.Sprintf("%02d/%d", row.ReferenceMonth, row.ReferenceYear))
		f.SetCellValue(sheetName, "B"+line, row.TotalEmployees)
		f.SetCellValue(sheetName, "C"+line, row.GrossSalary)
		f.SetCellValue(sheetName, "D"+line, row.InssEmployee)
		f.SetCellValue(sheetName, "E"+line, row.InssEmployer)
		f.SetCellValue(sheetName, "F"+line, row.Fgts)
		f.SetCellValue(sheetName, "G"+line, row.Irrf)
		f.SetCellValue(sheetName, "H"+line, row.NetSalary)
	}

	return f.Write(w)
}
