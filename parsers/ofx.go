package parsers

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contabilhub/contabil_backend/models"
)

// OFX is SGML with unclosed tags, so a generic XML DOM parser cannot read
// it. Values are extracted per tag with a scoped regex; only <STMTTRN>
// blocks are properly closed and can be isolated as spans.
var stmtTrnRegex = regexp.MustCompile(`(?is)<STMTTRN>([\s\S]*?)</STMTTRN>`)

func getOfxValue(content string, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `>([^<\r\n]+)`)
	match := re.FindStringSubmatch(content)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// parseOfxDate accepts YYYYMMDD[HHMMSS][timezone-bracket] and keeps the
// date prefix; the trailing [...] annotation is stripped first.
func parseOfxDate(dateStr string) string {
	if dateStr == "" {
		return time.Now().Format("2006-01-02")
	}
	cleanDate := dateStr
	if idx := strings.Index(cleanDate, "["); idx >= 0 {
		cleanDate = cleanDate[:idx]
	}
	if len(cleanDate) < 8 {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s", cleanDate[0:4], cleanDate[4:6], cleanDate[6:8])
}

func parseOfxAmount(amountStr string) decimal.Decimal {
	if amountStr == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(strings.Replace(amountStr, ",", ".", 1))
	if err != nil {
		return decimal.Zero
	}
	return value
}

func mapAccountType(ofxType string) models.BankAccountType {
	switch strings.ToLower(ofxType) {
	case "savings":
		return models.BankAccountSavings
	case "creditline":
		return models.BankAccountInvestment
	default:
		return models.BankAccountChecking
	}
}

// OfxStatement is the parsed account metadata plus its transactions.
type OfxStatement struct {
	BankCode    string
	BranchCode  string
	AccountId   string
	AccountType models.BankAccountType

	Transactions []models.BankTransaction
}

// ParseOFX converts OFX/SGML bytes into normalized bank transactions.
// Malformed STMTTRN blocks (no FITID or no parseable date) are skipped
// silently so one bad block cannot block the rest of the statement.
func ParseOFX(data []byte) (*OfxStatement, error) {
	content := string(data)

	statement := &OfxStatement{
		BankCode:    getOfxValue(content, "BANKID"),
		BranchCode:  getOfxValue(content, "BRANCHID"),
		AccountId:   getOfxValue(content, "ACCTID"),
		AccountType: mapAccountType(getOfxValue(content, "ACCTTYPE")),
	}

	for _, match := range stmtTrnRegex.FindAllStringSubmatch(content, -1) {
		block := match[1]

		trnType := getOfxValue(block, "TRNTYPE")
		dtPosted := getOfxValue(block, "DTPOSTED")
		trnAmt := getOfxValue(block, "TRNAMT")
		fitId := getOfxValue(block, "FITID")
		checkNum := getOfxValue(block, "CHECKNUM")
		memo := getOfxValue(block, "MEMO")
		name := getOfxValue(block, "NAME")

		if fitId == "" {
			continue
		}
		transactionDate := parseOfxDate(dtPosted)
		if transactionDate == "" {
			continue
		}

		amount := parseOfxAmount(trnAmt)
		direction := models.TransactionCredit
		if amount.IsNegative() {
			direction = models.TransactionDebit
		}

		description := memo
		if description == "" {
			description = name
		}
		if description == "" {
			description = trnType
		}

		statement.Transactions = append(statement.Transactions, models.BankTransaction{
			TransactionId:   fitId,
			FitId:           fitId,
			AccountId:       statement.AccountId,
			AccountType:     statement.AccountType,
			BankCode:        statement.BankCode,
			BranchCode:      statement.BranchCode,
			TransactionDate: transactionDate,
			PostDate:        transactionDate,
			Amount:          amount.Abs(),
			Type:            direction,
			Description:     description,
			Memo:            memo,
			Payee:           name,
			CheckNumber:     checkNum,
			Reconciled:      false,
		})
	}

	return statement, nil
}
