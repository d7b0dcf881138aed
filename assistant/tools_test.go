package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

func TestFindTool(t *testing.T) {
	for _, name := range []string{"query_invoices", "query_bank_transactions", "query_payroll", "query_financial_summary"} {
		if _, found := FindTool(name); !found {
			t.Errorf("tool %s not registered", name)
		}
	}
	if _, found := FindTool("drop_tables"); found {
		t.Error("unknown tool must not resolve")
	}
}

func TestToolsRejectTenantMismatch(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	for _, tool := range Tools() {
		args := fmt.Sprintf(`{"clientId": %q, "startDate": "2024-01-01", "endDate": "2024-12-31"}`, otherClient)
		if _, err := tool.Execute(ctx, db, json.RawMessage(args)); err != errToolTenantMismatch {
			t.Errorf("%s with foreign clientId: got %v, want tenant mismatch", tool.Name, err)
		}

		if _, err := tool.Execute(ctx, db, json.RawMessage(`{"clientId": ""}`)); err != errToolTenantMismatch {
			t.Errorf("%s with empty clientId: got %v, want tenant mismatch", tool.Name, err)
		}
	}
}

func TestQueryInvoicesTool(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-10", "1000.00")
	seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-20", "3000.00")
	seedInvoice(t, db, testClientId, models.InvoiceDirectionIncoming, "2024-03-15", "500.00")
	seedInvoice(t, db, otherClient, models.InvoiceDirectionOutgoing, "2024-03-12", "9999.00")

	tool, _ := FindTool("query_invoices")
	raw, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(`{"clientId": %q, "type": "outgoing"}`, testClientId)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := raw.(map[string]interface{})
	if result["count"] != 2 {
		t.Fatalf("count: got %v, want 2", result["count"])
	}
	summary := result["summary"].(map[string]interface{})
	if summary["totalAmount"] != 4000.0 {
		t.Errorf("totalAmount: got %v, want 4000", summary["totalAmount"])
	}
	if summary["avgAmount"] != 2000.0 {
		t.Errorf("avgAmount: got %v, want 2000", summary["avgAmount"])
	}
}

func TestQueryInvoicesToolDateWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-01-10", "100.00")
	seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-02-10", "200.00")
	seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-10", "300.00")

	tool, _ := FindTool("query_invoices")
	raw, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(
		`{"clientId": %q, "startDate": "2024-02-01", "endDate": "2024-02-28"}`, testClientId)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := raw.(map[string]interface{})
	if result["count"] != 1 {
		t.Errorf("count: got %v, want 1", result["count"])
	}
}

func TestQueryBankTransactionsTool(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedTransaction(t, db, testClientId, models.TransactionCredit, "2024-03-05", "1500.00")
	seedTransaction(t, db, testClientId, models.TransactionDebit, "2024-03-06", "400.00")
	seedTransaction(t, db, testClientId, models.TransactionDebit, "2024-03-07", "100.00")

	tool, _ := FindTool("query_bank_transactions")
	raw, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(`{"clientId": %q}`, testClientId)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := raw.(map[string]interface{})
	summary := result["summary"].(map[string]interface{})
	if summary["totalCredits"] != 1500.0 {
		t.Errorf("totalCredits: got %v", summary["totalCredits"])
	}
	if summary["totalDebits"] != 500.0 {
		t.Errorf("totalDebits: got %v", summary["totalDebits"])
	}
	if summary["netAmount"] != 1000.0 {
		t.Errorf("netAmount: got %v", summary["netAmount"])
	}
}

func TestQueryPayrollTool(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedPayroll(t, db, testClientId, 2, 2024, "10000.00", "8000.00")
	seedPayroll(t, db, testClientId, 3, 2024, "12000.00", "9500.00")

	tool, _ := FindTool("query_payroll")
	raw, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(`{"clientId": %q}`, testClientId)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := raw.(map[string]interface{})
	if result["count"] != 2 {
		t.Fatalf("count: got %v", result["count"])
	}
	summary := result["summary"].(map[string]interface{})
	if summary["totalGrossSalary"] != 22000.0 {
		t.Errorf("totalGrossSalary: got %v", summary["totalGrossSalary"])
	}
	if summary["totalNetSalary"] != 17500.0 {
		t.Errorf("totalNetSalary: got %v", summary["totalNetSalary"])
	}
	if summary["avgEmployees"] != 5 {
		t.Errorf("avgEmployees: got %v", summary["avgEmployees"])
	}

	// Filter by reference.
	raw, err = tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(
		`{"clientId": %q, "referenceMonth": 3, "referenceYear": 2024}`, testClientId)))
	if err != nil {
		t.Fatalf("execute filtered: %v", err)
	}
	if raw.(map[string]interface{})["count"] != 1 {
		t.Errorf("filtered count: got %v", raw.(map[string]interface{})["count"])
	}
}

func TestQueryFinancialSummaryTool(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-10", "50000.00")
	seedInvoice(t, db, testClientId, models.InvoiceDirectionIncoming, "2024-03-12", "20000.00")
	seedPayroll(t, db, testClientId, 3, 2024, "10000.00", "8000.00")
	seedTransaction(t, db, testClientId, models.TransactionCredit, "2024-03-05", "45000.00")
	seedTransaction(t, db, testClientId, models.TransactionDebit, "2024-03-06", "30000.00")

	tool, _ := FindTool("query_financial_summary")
	raw, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(
		`{"clientId": %q, "startDate": "2024-03-01", "endDate": "2024-03-31"}`, testClientId)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := raw.(map[string]interface{})

	revenue := result["revenue"].(map[string]interface{})
	if revenue["total"] != 50000.0 || revenue["invoiceCount"] != 1 {
		t.Errorf("revenue: got %v", revenue)
	}

	// Payroll cost = gross + employer INSS (20%) + FGTS (8%).
	costs := result["costs"].(map[string]interface{})
	if costs["purchases"] != 20000.0 {
		t.Errorf("purchases: got %v", costs["purchases"])
	}
	if costs["payroll"] != 12800.0 {
		t.Errorf("payroll cost: got %v, want 12800", costs["payroll"])
	}

	grossProfit := result["grossProfit"].(float64)
	if grossProfit != 50000.0-20000.0-12800.0 {
		t.Errorf("grossProfit: got %v", grossProfit)
	}
	grossMargin := result["grossMargin"].(float64)
	if grossMargin != grossProfit/50000.0*100 {
		t.Errorf("grossMargin: got %v", grossMargin)
	}

	banking := result["banking"].(map[string]interface{})
	if banking["net"] != 15000.0 {
		t.Errorf("banking net: got %v", banking["net"])
	}
}

func TestQueryFinancialSummaryRequiresDates(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	tool, _ := FindTool("query_financial_summary")
	if _, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(`{"clientId": %q}`, testClientId))); err == nil {
		t.Error("missing dates must be rejected")
	}
}

func TestToolsRequireAuthenticatedContext(t *testing.T) {
	db := newTestDB(t)
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)

	tool, _ := FindTool("query_invoices")
	if _, err := tool.Execute(ctx, db, json.RawMessage(fmt.Sprintf(`{"clientId": %q}`, testClientId))); err != errToolTenantMismatch {
		t.Errorf("no authenticated tenant in context: got %v, want mismatch", err)
	}
}
