package assistant

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

// InputGuardrail runs before any model call. A tripped guardrail rejects
// the whole request with a typed reason.
type InputGuardrail struct {
	Name    string
	Execute func(ctx context.Context, db *gorm.DB, question string) (tripped bool, info map[string]interface{})
}

// InputGuardrails in execution order: each must pass before the next runs.
func InputGuardrails() []InputGuardrail {
	return []InputGuardrail{
		{Name: "Security Check", Execute: securityCheck},
		{Name: "Date Validation", Execute: dateValidation},
		{Name: "Client Access Validation", Execute: clientAccessValidation},
	}
}

// RunInputGuardrails returns a *GuardrailTrip naming the first guardrail
// that fired, or nil when all pass.
func RunInputGuardrails(ctx context.Context, db *gorm.DB, question string) *GuardrailTrip {
	for _, guardrail := range InputGuardrails() {
		tripped, info := guardrail.Execute(ctx, db, question)
		if tripped {
			return &GuardrailTrip{Guardrail: guardrail.Name, Info: info}
		}
	}
	return nil
}

// Composite patterns keep false positives down: a bare "select" in a
// question about invoices must not trip.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)SELECT\s+.+\s+FROM`),
	regexp.MustCompile(`(?i)UNION\s+SELECT`),
	regexp.MustCompile(`(?i)DROP\s+TABLE`),
	regexp.MustCompile(`(?i)DELETE\s+FROM`),
	regexp.MustCompile(`(?i)INSERT\s+INTO`),
	regexp.MustCompile(`(?i)UPDATE\s+.+\s+SET`),
	regexp.MustCompile(`(?i);\s*DROP`),
	regexp.MustCompile(`(?i)'\s*OR\s+'1'\s*=\s*'1`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:\s*[^;]+`),
	regexp.MustCompile(`(?i)on\w+\s*=\s*["'][^"']*["']`),
}

var bypassPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`(?i)system\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)eval\s*\(`),
}

// Embedded client UUIDs in a question suggest an attempt to pivot into
// another tenant.
var clientIdBypassPattern = regexp.MustCompile(`(?i)client[_\s]?id[:\s]*[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func securityCheck(ctx context.Context, db *gorm.DB, question string) (bool, map[string]interface{}) {
	var allPatterns []*regexp.Regexp
	allPatterns = append(allPatterns, sqlInjectionPatterns...)
	allPatterns = append(allPatterns, xssPatterns...)
	allPatterns = append(allPatterns, bypassPatterns...)
	allPatterns = append(allPatterns, clientIdBypassPattern)

	matched := 0
	for _, pattern := range allPatterns {
		if pattern.MatchString(question) {
			matched++
		}
	}

	if matched > 0 {
		clientId, _ := utils.GetClientIdFromContext(ctx)
		userId, _ := utils.GetUserIdFromContext(ctx)
		config.GetLogger().WithFields(logrus.Fields{
			"module":          "assistant",
			"guardrail":       "security",
			"inputPreview":    SafePreview(question, 100),
			"userId":          userId,
			"clientId":        clientId,
			"matchedPatterns": matched,
		}).Warn("security guardrail triggered")
	}

	return matched > 0, map[string]interface{}{
		"checked":         true,
		"suspicious":      matched > 0,
		"patternsMatched": matched,
	}
}

// Date extraction for competência validation: numeric MM/YYYY, full month
// names (accents already stripped by normalization), and 3-letter
// abbreviations.
var (
	numericDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{4})`)
	textualDatePattern = regexp.MustCompile(`(?i)(janeiro|fevereiro|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro|13o)\s*(?:de\s*)?(\d{4})`)
	abbrevDatePattern  = regexp.MustCompile(`(?i)(jan|fev|mar|abr|mai|jun|jul|ago|set|out|nov|dez)/(\d{2,4})`)
)

var monthNames = map[string]int{
	"janeiro": 1, "jan": 1,
	"fevereiro": 2, "fev": 2,
	"marco": 3, "mar": 3,
	"abril": 4, "abr": 4,
	"maio": 5, "mai": 5,
	"junho": 6, "jun": 6,
	"julho": 7, "jul": 7,
	"agosto": 8, "ago": 8,
	"setembro": 9, "set": 9,
	"outubro": 10, "out": 10,
	"novembro": 11, "nov": 11,
	"dezembro": 12, "dez": 12,
	"13o": 13,
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u",
	"ç", "c",
	"º", "o",
)

type extractedDate struct {
	Month int    `json:"month"`
	Year  int    `json:"year"`
	Valid bool   `json:"valid"`
	Raw   string `json:"raw"`
}

func dateValidation(ctx context.Context, db *gorm.DB, question string) (bool, map[string]interface{}) {
	normalized := accentReplacer.Replace(strings.ToLower(question))

	var dates []extractedDate
	hasInvalid := false

	record := func(month int, year int, raw string) {
		valid := month >= 1 && month <= 13 && year >= 2020 && year <= 2030
		dates = append(dates, extractedDate{Month: month, Year: year, Valid: valid, Raw: raw})
		if !valid {
			hasInvalid = true
		}
	}

	for _, match := range numericDatePattern.FindAllStringSubmatch(normalized, -1) {
		month, _ := strconv.Atoi(match[1])
		year, _ := strconv.Atoi(match[2])
		record(month, year, match[0])
	}
	for _, match := range textualDatePattern.FindAllStringSubmatch(normalized, -1) {
		year, _ := strconv.Atoi(match[2])
		record(monthNames[strings.ToLower(match[1])], year, match[0])
	}
	for _, match := range abbrevDatePattern.FindAllStringSubmatch(normalized, -1) {
		year, _ := strconv.Atoi(match[2])
		if year < 100 {
			year += 2000
		}
		record(monthNames[strings.ToLower(match[1])], year, match[0])
	}

	if hasInvalid {
		config.GetLogger().WithFields(logrus.Fields{
			"module":    "assistant",
			"guardrail": "date_validation",
			"dates":     dates,
		}).Warn("invalid date detected")
	}

	return hasInvalid, map[string]interface{}{
		"dates":   dates,
		"checked": len(dates) > 0,
	}
}

// clientAccessValidation checks the membership table directly. The tenant
// guard already scopes queries, but the assistant must fail closed before
// any tool touches data.
func clientAccessValidation(ctx context.Context, db *gorm.DB, question string) (bool, map[string]interface{}) {
	clientId, hasClient := utils.GetClientIdFromContext(ctx)
	userId, hasUser := utils.GetUserIdFromContext(ctx)
	if !hasClient || !hasUser || db == nil {
		return true, map[string]interface{}{"error": "Missing required context"}
	}

	hasAccess, err := models.HasClientAccess(ctx, db, userId, clientId)
	if err != nil || !hasAccess {
		config.GetLogger().WithFields(logrus.Fields{
			"module":    "assistant",
			"guardrail": "client_access",
			"userId":    userId,
			"clientId":  clientId,
		}).Warn("unauthorized client access attempt")
		return true, map[string]interface{}{"hasAccess": false, "clientId": clientId, "userId": userId}
	}

	return false, map[string]interface{}{"hasAccess": true, "clientId": clientId, "userId": userId}
}
