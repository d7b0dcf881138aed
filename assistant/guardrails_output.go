package assistant

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
)

// OutputGuardrail runs after the model produced a structured response. A
// trip suppresses the response (tokens already streamed are an accepted
// limitation; the trip gates the final done event).
type OutputGuardrail struct {
	Name    string
	Execute func(ctx context.Context, db *gorm.DB, output *AssistantResponse) (tripped bool, info map[string]interface{})
}

func OutputGuardrails() []OutputGuardrail {
	return []OutputGuardrail{
		{Name: "Data Leak Prevention", Execute: dataLeakCheck},
		{Name: "Financial Accuracy Check", Execute: financialAccuracyCheck},
		{Name: "Response Quality Check", Execute: responseQualityCheck},
	}
}

func RunOutputGuardrails(ctx context.Context, db *gorm.DB, output *AssistantResponse) *GuardrailTrip {
	for _, guardrail := range OutputGuardrails() {
		tripped, info := guardrail.Execute(ctx, db, output)
		if tripped {
			return &GuardrailTrip{Guardrail: guardrail.Name, Info: info}
		}
	}
	return nil
}

// The model must never echo raw identifiers, even when they appear in tool
// results.
var sensitiveOutputPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"CPF", cpfPattern},
	{"CNPJ", cnpjPattern},
	{"Credit Card", creditCardPattern},
	{"Bank Account", regexp.MustCompile(`(?i)ag[êe]ncia[:\s]*\d{4}.*conta[:\s]*\d+`)},
}

func dataLeakCheck(ctx context.Context, db *gorm.DB, output *AssistantResponse) (bool, map[string]interface{}) {
	var leaks []map[string]interface{}
	for _, sensitive := range sensitiveOutputPatterns {
		matches := sensitive.pattern.FindAllString(output.Response, -1)
		if len(matches) > 0 {
			leaks = append(leaks, map[string]interface{}{"type": sensitive.name, "count": len(matches)})
		}
	}

	if len(leaks) > 0 {
		config.GetLogger().WithFields(logrus.Fields{
			"module":          "assistant",
			"guardrail":       "data_leak",
			"leaks":           leaks,
			"responsePreview": SafePreview(output.Response, 100),
		}).Error("data leak detected in output")
	}

	return len(leaks) > 0, map[string]interface{}{"leaks": leaks, "checked": true}
}

// monetaryMentionPattern captures R$ values in Brazilian formatting
// (1.234,56).
var monetaryMentionPattern = regexp.MustCompile(`R\$\s*([\d.,]+)`)

const financialTolerance = 0.005

// parseBrazilianNumber drops thousands dots and converts the decimal comma.
func parseBrazilianNumber(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(raw, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return strconv.ParseFloat(cleaned, 64)
}

type financialValidation struct {
	Mentioned float64 `json:"mentioned"`
	Actual    float64 `json:"actual"`
	DiffPct   float64 `json:"diff"`
	Source    string  `json:"source"`
	Valid     bool    `json:"valid"`
}

// financialAccuracyCheck cross-checks every R$ mention against the
// authoritative stored value of each cited source, matching the mention
// closest in magnitude, with a 0.5% relative tolerance.
func financialAccuracyCheck(ctx context.Context, db *gorm.DB, output *AssistantResponse) (bool, map[string]interface{}) {
	matches := monetaryMentionPattern.FindAllStringSubmatch(output.Response, -1)
	if len(matches) == 0 {
		return false, map[string]interface{}{"checked": false}
	}

	var mentioned []float64
	for _, match := range matches {
		value, err := parseBrazilianNumber(match[1])
		if err != nil {
			continue
		}
		mentioned = append(mentioned, value)
	}

	hasInaccuracy := false
	var validations []financialValidation

	for _, source := range output.Sources {
		actual, label, ok := authoritativeValue(ctx, db, source)
		if !ok || len(mentioned) == 0 || actual == 0 {
			continue
		}

		closest := mentioned[0]
		for _, value := range mentioned[1:] {
			if math.Abs(value-actual) < math.Abs(closest-actual) {
				closest = value
			}
		}

		diff := math.Abs(closest-actual) / actual
		valid := diff <= financialTolerance
		validations = append(validations, financialValidation{
			Mentioned: closest,
			Actual:    actual,
			DiffPct:   diff * 100,
			Source:    label,
			Valid:     valid,
		})
		if !valid {
			hasInaccuracy = true
		}
	}

	if hasInaccuracy {
		config.GetLogger().WithFields(logrus.Fields{
			"module":      "assistant",
			"guardrail":   "financial_accuracy",
			"validations": validations,
		}).Error("financial inaccuracy detected")
	}

	return hasInaccuracy, map[string]interface{}{
		"valuesChecked":    len(mentioned),
		"sourcesValidated": len(validations),
		"validations":      validations,
	}
}

// authoritativeValue loads the stored figure a citation refers to. Summary
// sources carry no single comparable figure and are skipped.
func authoritativeValue(ctx context.Context, db *gorm.DB, source Source) (float64, string, bool) {
	switch source.Type {
	case models.SourceTypeInvoice:
		var invoice models.Invoice
		if err := db.WithContext(ctx).Where("id = ?", source.Id).First(&invoice).Error; err != nil {
			return 0, "", false
		}
		value, _ := invoice.TotalAmount.Float64()
		return value, "NF-e " + invoice.InvoiceNumber, true
	case models.SourceTypeTransaction:
		var transaction models.BankTransaction
		if err := db.WithContext(ctx).Where("id = ?", source.Id).First(&transaction).Error; err != nil {
			return 0, "", false
		}
		value, _ := transaction.Amount.Abs().Float64()
		return value, "Transação " + transaction.Description, true
	case models.SourceTypePayroll:
		var summary models.PayrollSummary
		if err := db.WithContext(ctx).Where("id = ?", source.Id).First(&summary).Error; err != nil {
			return 0, "", false
		}
		value, _ := summary.TotalNetSalary.Float64()
		return value, fmt.Sprintf("Folha %d/%d", summary.ReferenceMonth, summary.ReferenceYear), true
	default:
		return 0, "", false
	}
}

var placeholderPattern = regexp.MustCompile(`(?i)\[.*?\]|\{.*?\}|TODO|FIXME`)
var portugueseAccentPattern = regexp.MustCompile(`(?i)[áàâãéêíóôõúç]`)

func responseQualityCheck(ctx context.Context, db *gorm.DB, output *AssistantResponse) (bool, map[string]interface{}) {
	responseLen := len([]rune(output.Response))
	checks := map[string]bool{
		"tooShort":        responseLen < 20,
		"tooLong":         responseLen > 2000,
		"lowConfidence":   output.Confidence < 0.5,
		"noSources":       len(output.Sources) == 0,
		"hasPlaceholders": placeholderPattern.MatchString(output.Response),
		"wrongLanguage":   !portugueseAccentPattern.MatchString(output.Response) && responseLen > 50,
	}

	hasIssue := false
	for _, failed := range checks {
		if failed {
			hasIssue = true
			break
		}
	}

	if hasIssue {
		config.GetLogger().WithFields(logrus.Fields{
			"module":         "assistant",
			"guardrail":      "response_quality",
			"checks":         checks,
			"confidence":     output.Confidence,
			"responseLength": responseLen,
		}).Warn("response quality issue detected")
	}

	return hasIssue, map[string]interface{}{"checks": checks, "confidence": output.Confidence}
}
