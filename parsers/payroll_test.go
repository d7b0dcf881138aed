package parsers

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const samplePayrollCsv = `employee_code,employee_name,gross_salary,inss_employee,irrf,other_discounts,net_salary
001,Joao Silva,3000.00,330.00,0.00,0.00,2670.00
002,Maria Santos,4500.00,495.00,112.50,0.00,3892.50
003,Pedro Oliveira,2500.00,275.00,0.00,50.00,2175.00
`

func TestParsePayrollCSVTotals(t *testing.T) {
	parsed, err := ParsePayrollCSV([]byte(samplePayrollCsv), DefaultPayrollConfig())
	if err != nil {
		t.Fatalf("ParsePayrollCSV failed: %v", err)
	}

	totals := parsed.Totals
	if totals.TotalEmployees != 3 {
		t.Errorf("total employees: got %d, want 3", totals.TotalEmployees)
	}
	if !totals.TotalGrossSalary.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("total gross: got %s, want 10000.00", totals.TotalGrossSalary)
	}
	if !totals.TotalInssEmployee.Equal(decimal.RequireFromString("1100.00")) {
		t.Errorf("total inss employee: got %s, want 1100.00", totals.TotalInssEmployee)
	}
	// Computed: 20% of gross.
	if !totals.TotalInssEmployer.Equal(decimal.RequireFromString("2000.00")) {
		t.Errorf("total inss employer: got %s, want 2000.00", totals.TotalInssEmployer)
	}
	// Computed: 8% of gross.
	if !totals.TotalFgts.Equal(decimal.RequireFromString("800.00")) {
		t.Errorf("total fgts: got %s, want 800.00", totals.TotalFgts)
	}
	if !totals.TotalNetSalary.Equal(decimal.RequireFromString("8737.50")) {
		t.Errorf("total net: got %s, want 8737.50", totals.TotalNetSalary)
	}
}

func TestParsePayrollCSVEntries(t *testing.T) {
	parsed, err := ParsePayrollCSV([]byte(samplePayrollCsv), DefaultPayrollConfig())
	if err != nil {
		t.Fatalf("ParsePayrollCSV failed: %v", err)
	}
	if len(parsed.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(parsed.Entries))
	}

	first := parsed.Entries[0]
	if first.EmployeeCode != "001" || first.EmployeeName != "Joao Silva" {
		t.Errorf("first entry identity: got %q %q", first.EmployeeCode, first.EmployeeName)
	}
	if !first.InssEmployer.Equal(decimal.RequireFromString("600.00").Round(2)) {
		t.Errorf("first entry inss employer: got %s, want 600", first.InssEmployer)
	}
	if !first.Fgts.Equal(decimal.RequireFromString("240.00").Round(2)) {
		t.Errorf("first entry fgts: got %s, want 240", first.Fgts)
	}
}

func TestParsePayrollCSVDisabledCharges(t *testing.T) {
	config := PayrollConfig{InssEmployerEnabled: false, FgtsEnabled: false}
	parsed, err := ParsePayrollCSV([]byte(samplePayrollCsv), config)
	if err != nil {
		t.Fatalf("ParsePayrollCSV failed: %v", err)
	}
	if !parsed.Totals.TotalInssEmployer.IsZero() {
		t.Errorf("disabled inss employer must be zero, got %s", parsed.Totals.TotalInssEmployer)
	}
	if !parsed.Totals.TotalFgts.IsZero() {
		t.Errorf("disabled fgts must be zero, got %s", parsed.Totals.TotalFgts)
	}
	for _, entry := range parsed.Entries {
		if !entry.InssEmployer.IsZero() || !entry.Fgts.IsZero() {
			t.Errorf("disabled charges must be zero per entry: %s %s", entry.InssEmployer, entry.Fgts)
		}
	}
}

func TestParsePayrollCSVNonNumericDefaultsToZero(t *testing.T) {
	csv := `employee_code,employee_name,gross_salary,inss_employee,irrf,other_discounts,net_salary
001,Jose,abc,330.00,,0.00,2670.00
`
	parsed, err := ParsePayrollCSV([]byte(csv), DefaultPayrollConfig())
	if err != nil {
		t.Fatalf("ParsePayrollCSV failed: %v", err)
	}
	if !parsed.Entries[0].GrossSalary.IsZero() {
		t.Errorf("non-numeric gross must default to 0, got %s", parsed.Entries[0].GrossSalary)
	}
	if !parsed.Entries[0].Irrf.IsZero() {
		t.Errorf("empty irrf must default to 0, got %s", parsed.Entries[0].Irrf)
	}
}

func TestParsePayrollCSVEmpty(t *testing.T) {
	if _, err := ParsePayrollCSV([]byte(""), DefaultPayrollConfig()); err == nil {
		t.Fatal("empty CSV must fail")
	}
	headerOnly := "employee_code,employee_name,gross_salary,inss_employee,irrf,other_discounts,net_salary\n"
	if _, err := ParsePayrollCSV([]byte(headerOnly), DefaultPayrollConfig()); err == nil {
		t.Fatal("header-only CSV must fail")
	}
}

func TestParsePayrollExtensionRouting(t *testing.T) {
	if _, err := ParsePayroll("folha.xlsx", []byte("x"), DefaultPayrollConfig()); err != ErrExcelNotImplemented {
		t.Errorf("xlsx: got %v, want ErrExcelNotImplemented", err)
	}
	if _, err := ParsePayroll("folha.pdf", []byte("x"), DefaultPayrollConfig()); err != ErrUnsupportedPayrollFmt {
		t.Errorf("pdf: got %v, want ErrUnsupportedPayrollFmt", err)
	}
	if _, err := ParsePayroll(strings.ToUpper("folha.csv"), []byte(samplePayrollCsv), DefaultPayrollConfig()); err != nil {
		t.Errorf("csv (case-insensitive): got %v", err)
	}
}
