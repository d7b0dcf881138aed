package parsers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/contabilhub/contabil_backend/models"
)

var (
	ErrEmptyPayrollFile      = errors.New("CSV file is empty or invalid")
	ErrExcelNotImplemented   = errors.New("Excel parsing not yet implemented. Please use CSV format.")
	ErrUnsupportedPayrollFmt = errors.New("Unsupported file format. Please use CSV or Excel.")
)

// Employer-side charges are computed from the gross salary, not read from
// the file.
var (
	inssEmployerRate = decimal.NewFromFloat(0.20)
	fgtsRate         = decimal.NewFromFloat(0.08)
)

// PayrollConfig gates the computed employer-side charges. Both default to
// enabled; when disabled, the charge is 0 for every employee.
type PayrollConfig struct {
	InssEmployerEnabled bool
	FgtsEnabled         bool
}

func DefaultPayrollConfig() PayrollConfig {
	return PayrollConfig{InssEmployerEnabled: true, FgtsEnabled: true}
}

// PayrollTotals are the summary-level aggregates, rounded to 2 decimal
// places. Per-entry values keep raw parsed precision.
type PayrollTotals struct {
	TotalEmployees      int             `json:"total_employees"`
	TotalGrossSalary    decimal.Decimal `json:"total_gross_salary"`
	TotalInssEmployee   decimal.Decimal `json:"total_inss_employee"`
	TotalInssEmployer   decimal.Decimal `json:"total_inss_employer"`
	TotalFgts           decimal.Decimal `json:"total_fgts"`
	TotalIrrf           decimal.Decimal `json:"total_irrf"`
	TotalOtherDiscounts decimal.Decimal `json:"total_other_discounts"`
	TotalNetSalary      decimal.Decimal `json:"total_net_salary"`
}

// ParsedPayroll is the output of one payroll parse.
type ParsedPayroll struct {
	Totals  PayrollTotals
	Entries []models.PayrollEntry
}

// ParsePayroll routes by file extension. Excel is declared at the upload
// boundary but the parser rejects it.
func ParsePayroll(fileName string, content []byte, config PayrollConfig) (*ParsedPayroll, error) {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return ParsePayrollCSV(content, config)
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		return nil, ErrExcelNotImplemented
	default:
		return nil, ErrUnsupportedPayrollFmt
	}
}

// ParsePayrollCSV expects the header row
// employee_code,employee_name,gross_salary,inss_employee,irrf,other_discounts,net_salary.
// Non-numeric monetary fields default to 0 per row, consistent with the
// tolerant XML extraction.
func ParsePayrollCSV(content []byte, config PayrollConfig) (*ParsedPayroll, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := readAllRows(reader)
	if err != nil {
		return nil, ErrEmptyPayrollFile
	}
	// First row is the header.
	if len(rows) <= 1 {
		return nil, ErrEmptyPayrollFile
	}
	rows = rows[1:]

	parsed := &ParsedPayroll{}
	totals := &parsed.Totals

	for _, row := range rows {
		grossSalary := fieldDecimal(row, 2)
		inssEmployee := fieldDecimal(row, 3)
		irrf := fieldDecimal(row, 4)
		otherDiscounts := fieldDecimal(row, 5)
		netSalary := fieldDecimal(row, 6)

		inssEmployer := decimal.Zero
		if config.InssEmployerEnabled {
			inssEmployer = grossSalary.Mul(inssEmployerRate)
		}
		fgts := decimal.Zero
		if config.FgtsEnabled {
			fgts = grossSalary.Mul(fgtsRate)
		}

		parsed.Entries = append(parsed.Entries, models.PayrollEntry{
			EmployeeCode:   fieldString(row, 0),
			EmployeeName:   fieldString(row, 1),
			GrossSalary:    grossSalary,
			InssEmployee:   inssEmployee,
			InssEmployer:   inssEmployer,
			Fgts:           fgts,
			Irrf:           irrf,
			OtherDiscounts: otherDiscounts,
			NetSalary:      netSalary,
		})

		totals.TotalEmployees++
		totals.TotalGrossSalary = totals.TotalGrossSalary.Add(grossSalary)
		totals.TotalInssEmployee = totals.TotalInssEmployee.Add(inssEmployee)
		totals.TotalInssEmployer = totals.TotalInssEmployer.Add(inssEmployer)
		totals.TotalFgts = totals.TotalFgts.Add(fgts)
		totals.TotalIrrf = totals.TotalIrrf.Add(irrf)
		totals.TotalOtherDiscounts = totals.TotalOtherDiscounts.Add(otherDiscounts)
		totals.TotalNetSalary = totals.TotalNetSalary.Add(netSalary)
	}

	// Rounding happens at the summary level only.
	totals.TotalGrossSalary = totals.TotalGrossSalary.Round(2)
	totals.TotalInssEmployee = totals.TotalInssEmployee.Round(2)
	totals.TotalInssEmployer = totals.TotalInssEmployer.Round(2)
	totals.TotalFgts = totals.TotalFgts.Round(2)
	totals.TotalIrrf = totals.TotalIrrf.Round(2)
	totals.TotalOtherDiscounts = totals.TotalOtherDiscounts.Round(2)
	totals.TotalNetSalary = totals.TotalNetSalary.Round(2)

	return parsed, nil
}

func readAllRows(reader *csv.Reader) ([][]string, error) {
	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func fieldString(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func fieldDecimal(row []string, idx int) decimal.Decimal {
	value, err := decimal.NewFromString(fieldString(row, idx))
	if err != nil {
		return decimal.Zero
	}
	return value
}
