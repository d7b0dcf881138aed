package models

// DocumentType is the declared type of an uploaded artifact.
type DocumentType string

const (
	DocumentTypeNFe     DocumentType = "nfe"
	DocumentTypeNFSe    DocumentType = "nfse"
	DocumentTypeNFCe    DocumentType = "nfce"
	DocumentTypeOFX     DocumentType = "ofx"
	DocumentTypePayroll DocumentType = "payroll"
)

func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeNFe, DocumentTypeNFSe, DocumentTypeNFCe, DocumentTypeOFX, DocumentTypePayroll:
		return true
	}
	return false
}

// IsFiscalXml reports whether the document routes to the NF-e XML parser.
func (t DocumentType) IsFiscalXml() bool {
	return t == DocumentTypeNFe || t == DocumentTypeNFSe || t == DocumentTypeNFCe
}

// DocumentStatus is the ingestion lifecycle state.
// pending -> processing -> {completed | failed};
// failed -> pending only via an explicit user-triggered reprocess.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// InvoiceDirection is relative to the tenant: incoming = purchase, outgoing = sale.
type InvoiceDirection string

const (
	InvoiceDirectionIncoming InvoiceDirection = "incoming"
	InvoiceDirectionOutgoing InvoiceDirection = "outgoing"
)

// TransactionDirection carries the sign of a bank transaction; amounts are
// stored unsigned.
type TransactionDirection string

const (
	TransactionDebit  TransactionDirection = "debit"
	TransactionCredit TransactionDirection = "credit"
)

// BankAccountType is a closed three-way enum. OFX SAVINGS maps to savings,
// CREDITLINE to investment, anything else falls back to checking.
type BankAccountType string

const (
	BankAccountChecking   BankAccountType = "checking"
	BankAccountSavings    BankAccountType = "savings"
	BankAccountInvestment BankAccountType = "investment"
)

// SourceType labels a citation in an assistant response.
type SourceType string

const (
	SourceTypeInvoice     SourceType = "invoice"
	SourceTypeTransaction SourceType = "transaction"
	SourceTypePayroll     SourceType = "payroll"
	SourceTypeSummary     SourceType = "summary"
)

func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypeInvoice, SourceTypeTransaction, SourceTypePayroll, SourceTypeSummary:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleAccountant UserRole = "accountant"
	UserRoleViewer     UserRole = "viewer"
)
