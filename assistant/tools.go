package assistant

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

var errToolTenantMismatch = errors.New("tool clientId does not match the authenticated tenant")

// Tool is one read-only, tenant-scoped function the agent may call. The
// Parameters field is the JSON schema advertised to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     func(ctx context.Context, db *gorm.DB, arguments json.RawMessage) (interface{}, error)
}

// Tools returns the four read-only tools. Every tool requires clientId and
// cross-checks it against the authenticated tenant before touching data.
func Tools() []Tool {
	return []Tool{
		queryInvoicesTool(),
		queryBankTransactionsTool(),
		queryPayrollTool(),
		queryFinancialSummaryTool(),
	}
}

func FindTool(name string) (Tool, bool) {
	for _, tool := range Tools() {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// requireTenant rejects tool calls whose clientId argument does not match
// the request's authenticated tenant. The tenant guard would scope the
// query anyway; this makes the impersonation attempt visible.
func requireTenant(ctx context.Context, clientId string) error {
	authenticated, ok := utils.GetClientIdFromContext(ctx)
	if !ok || clientId == "" || clientId != authenticated {
		return errToolTenantMismatch
	}
	return nil
}

func schemaObject(properties map[string]interface{}, required []string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func decimalSum(values []decimal.Decimal) float64 {
	total := decimal.Zero
	for _, value := range values {
		total = total.Add(value)
	}
	result, _ := total.Float64()
	return result
}

type queryInvoicesArgs struct {
	ClientId  string `json:"clientId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Type      string `json:"type"`
	Limit     int    `json:"limit"`
}

func queryInvoicesTool() Tool {
	return Tool{
		Name:        "query_invoices",
		Description: "Busca notas fiscais (NF-e, NFSe, NFC-e) de um cliente específico. Use para responder perguntas sobre faturamento, fornecedores, produtos vendidos, etc.",
		Parameters: schemaObject(map[string]interface{}{
			"clientId":  map[string]interface{}{"type": "string", "description": "ID do cliente (obrigatório)"},
			"startDate": map[string]interface{}{"type": "string", "description": "Data inicial no formato YYYY-MM-DD"},
			"endDate":   map[string]interface{}{"type": "string", "description": "Data final no formato YYYY-MM-DD"},
			"type":      map[string]interface{}{"type": "string", "enum": []string{"incoming", "outgoing"}, "description": "Tipo: incoming (compras) ou outgoing (vendas)"},
			"limit":     map[string]interface{}{"type": "integer", "description": "Número máximo de resultados (padrão: 10)"},
		}, []string{"clientId"}),
		Execute: func(ctx context.Context, db *gorm.DB, arguments json.RawMessage) (interface{}, error) {
			var args queryInvoicesArgs
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, err
			}
			if err := requireTenant(ctx, args.ClientId); err != nil {
				return nil, err
			}
			if args.Limit <= 0 {
				args.Limit = config.SearchLimit
			}

			query := db.WithContext(ctx).Model(&models.Invoice{}).
				Where("client_id = ?", args.ClientId).
				Order("issue_date DESC").
				Limit(args.Limit)
			if args.StartDate != "" {
				query = query.Where("issue_date >= ?", args.StartDate)
			}
			if args.EndDate != "" {
				query = query.Where("issue_date <= ?", args.EndDate)
			}
			if args.Type != "" {
				query = query.Where("type = ?", args.Type)
			}

			var invoices []models.Invoice
			if err := query.Find(&invoices).Error; err != nil {
				return nil, err
			}

			amounts := make([]decimal.Decimal, len(invoices))
			for idx, invoice := range invoices {
				amounts[idx] = invoice.TotalAmount
			}
			totalAmount := decimalSum(amounts)
			avgAmount := 0.0
			if len(invoices) > 0 {
				avgAmount = totalAmount / float64(len(invoices))
			}

			return map[string]interface{}{
				"count": len(invoices),
				"data":  invoices,
				"summary": map[string]interface{}{
					"totalAmount": totalAmount,
					"avgAmount":   avgAmount,
				},
			}, nil
		},
	}
}

type queryBankTransactionsArgs struct {
	ClientId  string `json:"clientId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Type      string `json:"type"`
	Limit     int    `json:"limit"`
}

func queryBankTransactionsTool() Tool {
	return Tool{
		Name:        "query_bank_transactions",
		Description: "Busca transações bancárias (OFX) de um cliente específico. Use para responder perguntas sobre movimentação bancária, saldo, pagamentos, recebimentos, etc.",
		Parameters: schemaObject(map[string]interface{}{
			"clientId":  map[string]interface{}{"type": "string", "description": "ID do cliente (obrigatório)"},
			"startDate": map[string]interface{}{"type": "string", "description": "Data inicial no formato YYYY-MM-DD"},
			"endDate":   map[string]interface{}{"type": "string", "description": "Data final no formato YYYY-MM-DD"},
			"type":      map[string]interface{}{"type": "string", "enum": []string{"debit", "credit"}, "description": "Tipo: debit (saída) ou credit (entrada)"},
			"limit":     map[string]interface{}{"type": "integer", "description": "Número máximo de resultados (padrão: 10)"},
		}, []string{"clientId"}),
		Execute: func(ctx context.Context, db *gorm.DB, arguments json.RawMessage) (interface{}, error) {
			var args queryBankTransactionsArgs
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, err
			}
			if err := requireTenant(ctx, args.ClientId); err != nil {
				return nil, err
			}
			if args.Limit <= 0 {
				args.Limit = config.SearchLimit
			}

			query := db.WithContext(ctx).Model(&models.BankTransaction{}).
				Where("client_id = ?", args.ClientId).
				Order("transaction_date DESC").
				Limit(args.Limit)
			if args.StartDate != "" {
				query = query.Where("transaction_date >= ?", args.StartDate)
			}
			if args.EndDate != "" {
				query = query.Where("transaction_date <= ?", args.EndDate)
			}
			if args.Type != "" {
				query = query.Where("type = ?", args.Type)
			}

			var transactions []models.BankTransaction
			if err := query.Find(&transactions).Error; err != nil {
				return nil, err
			}

			totalDebits := decimal.Zero
			totalCredits := decimal.Zero
			for _, transaction := range transactions {
				if transaction.Type == models.TransactionDebit {
					totalDebits = totalDebits.Add(transaction.Amount)
				} else {
					totalCredits = totalCredits.Add(transaction.Amount)
				}
			}
			debits, _ := totalDebits.Float64()
			credits, _ := totalCredits.Float64()

			return map[string]interface{}{
				"count": len(transactions),
				"data":  transactions,
				"summary": map[string]interface{}{
					"totalDebits":  debits,
					"totalCredits": credits,
					"netAmount":    credits - debits,
				},
			}, nil
		},
	}
}

type queryPayrollArgs struct {
	ClientId       string `json:"clientId"`
	ReferenceMonth int    `json:"referenceMonth"`
	ReferenceYear  int    `json:"referenceYear"`
	Limit          int    `json:"limit"`
}

func queryPayrollTool() Tool {
	return Tool{
		Name:        "query_payroll",
		Description: "Busca dados de folha de pagamento de um cliente específico. Use para responder perguntas sobre salários, encargos, INSS, FGTS, IRRF, etc.",
		Parameters: schemaObject(map[string]interface{}{
			"clientId":       map[string]interface{}{"type": "string", "description": "ID do cliente (obrigatório)"},
			"referenceMonth": map[string]interface{}{"type": "integer", "description": "Mês de referência (1-13, onde 13 é 13º salário)"},
			"referenceYear":  map[string]interface{}{"type": "integer", "description": "Ano de referência"},
			"limit":          map[string]interface{}{"type": "integer", "description": "Número máximo de resultados (padrão: 12)"},
		}, []string{"clientId"}),
		Execute: func(ctx context.Context, db *gorm.DB, arguments json.RawMessage) (interface{}, error) {
			var args queryPayrollArgs
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, err
			}
			if err := requireTenant(ctx, args.ClientId); err != nil {
				return nil, err
			}
			if args.Limit <= 0 {
				args.Limit = 12
			}

			query := db.WithContext(ctx).Model(&models.PayrollSummary{}).
				Where("client_id = ?", args.ClientId).
				Order("reference_year DESC, reference_month DESC").
				Limit(args.Limit)
			if args.ReferenceMonth > 0 {
				query = query.Where("reference_month = ?", args.ReferenceMonth)
			}
			if args.ReferenceYear > 0 {
				query = query.Where("reference_year = ?", args.ReferenceYear)
			}

			var summaries []models.PayrollSummary
			if err := query.Find(&summaries).Error; err != nil {
				return nil, err
			}

			gross := decimal.Zero
			net := decimal.Zero
			inssEmployee := decimal.Zero
			inssEmployer := decimal.Zero
			fgts := decimal.Zero
			irrf := decimal.Zero
			employees := 0
			for _, summary := range summaries {
				gross = gross.Add(summary.TotalGrossSalary)
				net = net.Add(summary.TotalNetSalary)
				inssEmployee = inssEmployee.Add(summary.TotalInssEmployee)
				inssEmployer = inssEmployer.Add(summary.TotalInssEmployer)
				fgts = fgts.Add(summary.TotalFgts)
				irrf = irrf.Add(summary.TotalIrrf)
				employees += summary.TotalEmployees
			}
			avgEmployees := 0
			if len(summaries) > 0 {
				avgEmployees = (employees + len(summaries)/2) / len(summaries)
			}

			grossF, _ := gross.Float64()
			netF, _ := net.Float64()
			inssEmployeeF, _ := inssEmployee.Float64()
			inssEmployerF, _ := inssEmployer.Float64()
			fgtsF, _ := fgts.Float64()
			irrfF, _ := irrf.Float64()

			return map[string]interface{}{
				"count": len(summaries),
				"data":  summaries,
				"summary": map[string]interface{}{
					"totalGrossSalary":  grossF,
					"totalNetSalary":    netF,
					"totalINSSEmployee": inssEmployeeF,
					"totalINSSEmployer": inssEmployerF,
					"totalFGTS":         fgtsF,
					"totalIRRF":         irrfF,
					"avgEmployees":      avgEmployees,
				},
			}, nil
		},
	}
}

type queryFinancialSummaryArgs struct {
	ClientId  string `json:"clientId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func queryFinancialSummaryTool() Tool {
	return Tool{
		Name:        "query_financial_summary",
		Description: "Obtém um resumo financeiro consolidado de um cliente para um período específico. Use para responder perguntas sobre visão geral financeira, DRE simplificada, etc.",
		Parameters: schemaObject(map[string]interface{}{
			"clientId":  map[string]interface{}{"type": "string", "description": "ID do cliente (obrigatório)"},
			"startDate": map[string]interface{}{"type": "string", "description": "Data inicial no formato YYYY-MM-DD"},
			"endDate":   map[string]interface{}{"type": "string", "description": "Data final no formato YYYY-MM-DD"},
		}, []string{"clientId", "startDate", "endDate"}),
		Execute: func(ctx context.Context, db *gorm.DB, arguments json.RawMessage) (interface{}, error) {
			var args queryFinancialSummaryArgs
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, err
			}
			if err := requireTenant(ctx, args.ClientId); err != nil {
				return nil, err
			}
			if args.StartDate == "" || args.EndDate == "" {
				return nil, errors.New("startDate and endDate are required")
			}

			var outgoing []models.Invoice
			if err := db.WithContext(ctx).
				Where("client_id = ? AND type = ? AND issue_date >= ? AND issue_date <= ?", args.ClientId, models.InvoiceDirectionOutgoing, args.StartDate, args.EndDate).
				Find(&outgoing).Error; err != nil {
				return nil, err
			}
			var incoming []models.Invoice
			if err := db.WithContext(ctx).
				Where("client_id = ? AND type = ? AND issue_date >= ? AND issue_date <= ?", args.ClientId, models.InvoiceDirectionIncoming, args.StartDate, args.EndDate).
				Find(&incoming).Error; err != nil {
				return nil, err
			}
			var payroll []models.PayrollSummary
			if err := db.WithContext(ctx).
				Where("client_id = ?", args.ClientId).
				Find(&payroll).Error; err != nil {
				return nil, err
			}
			var transactions []models.BankTransaction
			if err := db.WithContext(ctx).
				Where("client_id = ? AND transaction_date >= ? AND transaction_date <= ?", args.ClientId, args.StartDate, args.EndDate).
				Find(&transactions).Error; err != nil {
				return nil, err
			}

			revenue := decimal.Zero
			for _, invoice := range outgoing {
				revenue = revenue.Add(invoice.TotalAmount)
			}
			costs := decimal.Zero
			for _, invoice := range incoming {
				costs = costs.Add(invoice.TotalAmount)
			}
			payrollTotal := decimal.Zero
			for _, summary := range payroll {
				payrollTotal = payrollTotal.Add(summary.TotalGrossSalary).Add(summary.TotalInssEmployer).Add(summary.TotalFgts)
			}
			debits := decimal.Zero
			credits := decimal.Zero
			for _, transaction := range transactions {
				if transaction.Type == models.TransactionDebit {
					debits = debits.Add(transaction.Amount)
				} else {
					credits = credits.Add(transaction.Amount)
				}
			}

			revenueF, _ := revenue.Float64()
			costsF, _ := costs.Float64()
			payrollF, _ := payrollTotal.Float64()
			debitsF, _ := debits.Float64()
			creditsF, _ := credits.Float64()
			grossProfit := revenueF - costsF - payrollF
			grossMargin := 0.0
			if revenueF > 0 {
				grossMargin = grossProfit / revenueF * 100
			}

			return map[string]interface{}{
				"period": map[string]interface{}{"startDate": args.StartDate, "endDate": args.EndDate},
				"revenue": map[string]interface{}{
					"total":        revenueF,
					"invoiceCount": len(outgoing),
				},
				"costs": map[string]interface{}{
					"purchases": costsF,
					"payroll":   payrollF,
					"total":     costsF + payrollF,
				},
				"grossProfit": grossProfit,
				"grossMargin": grossMargin,
				"banking": map[string]interface{}{
					"credits": creditsF,
					"debits":  debitsF,
					"net":     creditsF - debitsF,
				},
			}, nil
		},
	}
}
