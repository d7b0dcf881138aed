package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/contabilhub/contabil_backend/models"
)

func goodOutput(response string) *AssistantResponse {
	return &AssistantResponse{
		Response:   response,
		Confidence: 0.9,
		Sources:    []Source{{Type: models.SourceTypeSummary, Id: "resumo", Relevance: 1}},
	}
}

func TestDataLeakCheck(t *testing.T) {
	cases := []struct {
		name     string
		response string
		tripped  bool
	}{
		{"cpf", "O CPF do funcionário é 123.456.789-01.", true},
		{"cnpj", "Fornecedor com CNPJ 12.345.678/0001-95 emitiu a nota.", true},
		{"credit card", "Cartão 1234 5678 9012 3456 foi usado no pagamento.", true},
		{"bank account", "Agência: 1234 Conta: 56789-0 do cliente.", true},
		{"clean response", "O faturamento de março foi de R$ 10.000,00 no período.", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tripped, _ := dataLeakCheck(context.Background(), nil, goodOutput(tc.response))
			if tripped != tc.tripped {
				t.Errorf("dataLeakCheck(%q): got %v, want %v", tc.response, tripped, tc.tripped)
			}
		})
	}
}

func TestParseBrazilianNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"1.234,56", 1234.56},
		{"1000", 1000},
		{"10.000,00", 10000},
		{"0,50", 0.5},
	}
	for _, tc := range cases {
		got, err := parseBrazilianNumber(tc.raw)
		if err != nil {
			t.Fatalf("parseBrazilianNumber(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("parseBrazilianNumber(%q): got %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestFinancialAccuracyCheck(t *testing.T) {
	db := newTestDB(t)
	invoice := seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-15", "1005.50")
	ctx := testContext()

	output := func(response string) *AssistantResponse {
		return &AssistantResponse{
			Response:   response,
			Confidence: 0.9,
			Sources:    []Source{{Type: models.SourceTypeInvoice, Id: invoice.ID, Relevance: 1}},
		}
	}

	// 1000 against 1005.50 is a 0.55% deviation, above the 0.5% tolerance.
	tripped, info := financialAccuracyCheck(ctx, db, output("A nota foi de R$ 1.000,00 no período."))
	if !tripped {
		t.Errorf("0.55%% deviation must trip: info=%v", info)
	}

	// 1003 against 1005.50 is 0.25%, inside the tolerance.
	tripped, info = financialAccuracyCheck(ctx, db, output("A nota foi de R$ 1.003,00 no período."))
	if tripped {
		t.Errorf("0.25%% deviation must pass: info=%v", info)
	}

	// Exact value.
	tripped, _ = financialAccuracyCheck(ctx, db, output("A nota foi de R$ 1.005,50 no período."))
	if tripped {
		t.Error("exact value must pass")
	}

	// No monetary mention means nothing to validate.
	tripped, info = financialAccuracyCheck(ctx, db, output("A nota foi emitida em março pelo fornecedor."))
	if tripped {
		t.Error("response without R$ mentions must pass")
	}
	if info["checked"] != false {
		t.Errorf("checked: got %v, want false", info["checked"])
	}
}

func TestFinancialAccuracyPicksClosestMention(t *testing.T) {
	db := newTestDB(t)
	invoice := seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-15", "500.00")
	ctx := testContext()

	// The response also mentions an unrelated bigger figure; the value
	// closest in magnitude to the stored 500.00 is the one validated.
	response := "A nota foi de R$ 500,00 de um total movimentado de R$ 80.000,00."
	tripped, info := financialAccuracyCheck(ctx, db, &AssistantResponse{
		Response:   response,
		Confidence: 0.9,
		Sources:    []Source{{Type: models.SourceTypeInvoice, Id: invoice.ID, Relevance: 1}},
	})
	if tripped {
		t.Errorf("closest mention matches exactly, must pass: info=%v", info)
	}
}

func TestFinancialAccuracySkipsSummarySources(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	tripped, info := financialAccuracyCheck(ctx, db, &AssistantResponse{
		Response:   "O total do período foi de R$ 123.456,78 aproximadamente.",
		Confidence: 0.9,
		Sources:    []Source{{Type: models.SourceTypeSummary, Id: "resumo", Relevance: 1}},
	})
	if tripped {
		t.Errorf("summary sources carry no comparable figure: info=%v", info)
	}
	if info["sourcesValidated"] != 0 {
		t.Errorf("sourcesValidated: got %v, want 0", info["sourcesValidated"])
	}
}

func TestAuthoritativeValuePerSourceType(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	invoice := seedInvoice(t, db, testClientId, models.InvoiceDirectionOutgoing, "2024-03-15", "250.00")
	transaction := seedTransaction(t, db, testClientId, models.TransactionDebit, "2024-03-10", "99.90")
	payroll := seedPayroll(t, db, testClientId, 3, 2024, "10000.00", "8500.00")

	value, _, ok := authoritativeValue(ctx, db, Source{Type: models.SourceTypeInvoice, Id: invoice.ID})
	if !ok || value != 250 {
		t.Errorf("invoice: got %v/%v", value, ok)
	}
	value, _, ok = authoritativeValue(ctx, db, Source{Type: models.SourceTypeTransaction, Id: transaction.ID})
	if !ok || value != 99.9 {
		t.Errorf("transaction: got %v/%v", value, ok)
	}
	value, _, ok = authoritativeValue(ctx, db, Source{Type: models.SourceTypePayroll, Id: payroll.ID})
	if !ok || value != 8500 {
		t.Errorf("payroll: got %v/%v", value, ok)
	}
	_, _, ok = authoritativeValue(ctx, db, Source{Type: models.SourceTypeInvoice, Id: "nonexistent"})
	if ok {
		t.Error("missing record must not produce a value")
	}
}

func TestResponseQualityCheck(t *testing.T) {
	longPortuguese := "O faturamento do período analisado foi positivo, com aumento de vendas em relação ao mês anterior."

	cases := []struct {
		name    string
		output  *AssistantResponse
		tripped bool
	}{
		{"good response", goodOutput(longPortuguese), false},
		{"too short", goodOutput("Sim, é válido."), true},
		{"too long", goodOutput(strings.Repeat("análise detalhada ", 150)), true},
		{"low confidence", &AssistantResponse{Response: longPortuguese, Confidence: 0.3, Sources: goodOutput("").Sources}, true},
		{"no sources", &AssistantResponse{Response: longPortuguese, Confidence: 0.9}, true},
		{"placeholder", goodOutput("O total foi de [VALOR] conforme as notas fiscais emitidas então."), true},
		{"wrong language", goodOutput("The revenue for the analyzed period increased compared to last month."), true},
		{"short without accents ok", goodOutput("Total: R$ 100,00 em marco."), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tripped, info := responseQualityCheck(context.Background(), nil, tc.output)
			if tripped != tc.tripped {
				t.Errorf("got %v, want %v (info=%v)", tripped, tc.tripped, info)
			}
		})
	}
}

func TestRunOutputGuardrailsOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	// A response that both leaks a CPF and is too short reports the leak,
	// which runs first.
	trip := RunOutputGuardrails(ctx, db, goodOutput("CPF 123.456.789-01."))
	if trip == nil || trip.Guardrail != "Data Leak Prevention" {
		t.Fatalf("got %v, want Data Leak Prevention", trip)
	}

	trip = RunOutputGuardrails(ctx, db, goodOutput("O faturamento de março foi de R$ 10.000,00 no período."))
	if trip != nil {
		t.Fatalf("clean output must pass: %v", trip)
	}
}
