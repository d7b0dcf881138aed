package parsers

import (
	"errors"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/contabilhub/contabil_backend/models"
)

var ErrMalformedXml = errors.New("malformed XML: could not parse document")

// ParsedInvoice is the output of one NF-e parse: the header record plus its
// item lines, not yet persisted.
type ParsedInvoice struct {
	Invoice models.Invoice
	Items   []models.InvoiceItem
}

// ParseNFe converts NF-e (and NFSe/NFC-e variant) XML bytes into a
// normalized invoice. Extraction is tolerant: missing nodes yield
// empty-string/zero values, never an error. Only a DOM-level parse failure
// is fatal.
func ParseNFe(data []byte) (*ParsedInvoice, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ErrMalformedXml
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrMalformedXml
	}

	infNFe := findElement(root, "infNFe")
	ide := findElement(root, "ide")
	emit := findElement(root, "emit")
	dest := findElement(root, "dest")
	icmsTot := findElement(root, "ICMSTot")

	invoice := models.Invoice{
		InvoiceNumber: elementText(ide, "nNF"),
		Series:        elementText(ide, "serie"),
		XmlKey:        fiscalKey(infNFe),
		// Direction should be derived by comparing supplier/customer CNPJ
		// against the tenant's registered CNPJ. Not implemented yet; every
		// parsed invoice is recorded as a purchase.
		Type:   models.InvoiceDirectionIncoming,
		Status: "active",

		IssueDate:     isoDateOnly(elementText(ide, "dhEmi")),
		OperationDate: isoDateOnly(elementText(ide, "dhSaiEnt")),

		SupplierName:  elementText(emit, "xNome"),
		SupplierCnpj:  elementText(emit, "CNPJ"),
		SupplierCpf:   elementText(emit, "CPF"),
		SupplierCity:  elementText(emit, "xMun"),
		SupplierState: elementText(emit, "UF"),
		CustomerName:  elementText(dest, "xNome"),
		CustomerCnpj:  elementText(dest, "CNPJ"),
		CustomerCpf:   elementText(dest, "CPF"),
		CustomerCity:  elementText(dest, "xMun"),
		CustomerState: elementText(dest, "UF"),

		TotalAmount:     elementDecimal(icmsTot, "vProd"),
		DiscountAmount:  elementDecimal(icmsTot, "vDesc"),
		FreightAmount:   elementDecimal(icmsTot, "vFrete"),
		InsuranceAmount: elementDecimal(icmsTot, "vSeg"),
		OtherExpenses:   elementDecimal(icmsTot, "vOutro"),
		NetAmount:       elementDecimal(icmsTot, "vNF"),

		IcmsBase:     elementDecimal(icmsTot, "vBC"),
		IcmsAmount:   elementDecimal(icmsTot, "vICMS"),
		IcmsStAmount: elementDecimal(icmsTot, "vST"),
		IpiAmount:    elementDecimal(icmsTot, "vIPI"),
		PisAmount:    elementDecimal(icmsTot, "vPIS"),
		CofinsAmount: elementDecimal(icmsTot, "vCOFINS"),
		IssAmount:    elementDecimal(findElement(root, "ISSQNtot"), "vISS"),

		OperationNature: elementText(ide, "natOp"),
		Notes:           elementText(findElement(root, "infAdic"), "infCpl"),
	}

	items := parseItems(root)
	if len(items) > 0 {
		invoice.Cfop = items[0].Cfop
	}

	return &ParsedInvoice{Invoice: invoice, Items: items}, nil
}

func parseItems(root *etree.Element) []models.InvoiceItem {
	var items []models.InvoiceItem
	for idx, det := range findElements(root, "det") {
		prod := det.SelectElement("prod")
		imposto := det.SelectElement("imposto")

		item := models.InvoiceItem{
			ItemNumber:         idx + 1,
			ProductCode:        elementText(prod, "cProd"),
			ProductDescription: elementText(prod, "xProd"),
			Ncm:                elementText(prod, "NCM"),
			Cest:               elementText(prod, "CEST"),
			Cfop:               elementText(prod, "CFOP"),
			Unit:               elementText(prod, "uCom"),
			Quantity:           elementDecimal(prod, "qCom"),
			UnitPrice:          elementDecimal(prod, "vUnCom"),
			TotalPrice:         elementDecimal(prod, "vProd"),
			Discount:           elementDecimal(prod, "vDesc"),
		}

		if imposto != nil {
			applyIcms(&item, imposto.SelectElement("ICMS"))
			if ipi := findElement(imposto, "IPITrib"); ipi != nil {
				item.IpiRate = elementDecimal(ipi, "pIPI")
				item.IpiAmount = elementDecimal(ipi, "vIPI")
			}
			if pis := findElement(imposto, "PISAliq"); pis != nil {
				item.PisRate = elementDecimal(pis, "pPIS")
				item.PisAmount = elementDecimal(pis, "vPIS")
			}
			if cofins := findElement(imposto, "COFINSAliq"); cofins != nil {
				item.CofinsRate = elementDecimal(cofins, "pCOFINS")
				item.CofinsAmount = elementDecimal(cofins, "vCOFINS")
			}
		}

		items = append(items, item)
	}
	return items
}

// applyIcms probes the ICMS CST variants (ICMS00, ICMS10, ICMS20, ...).
// The sub-schema differs per CST, so instead of a fixed tag name we pick
// whichever child node actually carries a vICMS field.
func applyIcms(item *models.InvoiceItem, icms *etree.Element) {
	if icms == nil {
		return
	}
	for _, variant := range icms.ChildElements() {
		if variant.SelectElement("vICMS") == nil {
			continue
		}
		item.IcmsBase = elementDecimal(variant, "vBC")
		item.IcmsRate = elementDecimal(variant, "pICMS")
		item.IcmsAmount = elementDecimal(variant, "vICMS")
		return
	}
}

// fiscalKey is the infNFe Id attribute without its "NFe" prefix.
func fiscalKey(infNFe *etree.Element) string {
	if infNFe == nil {
		return ""
	}
	return strings.TrimPrefix(infNFe.SelectAttrValue("Id", ""), "NFe")
}

// isoDateOnly keeps the date portion of an ISO-8601 timestamp.
func isoDateOnly(value string) string {
	if len(value) >= 10 {
		return value[:10]
	}
	return value
}

// findElement searches the subtree for the first element with the given tag,
// ignoring namespaces and depth.
func findElement(root *etree.Element, tag string) *etree.Element {
	if root == nil {
		return nil
	}
	if root.Tag == tag {
		return root
	}
	for _, child := range root.ChildElements() {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func findElements(root *etree.Element, tag string) []*etree.Element {
	if root == nil {
		return nil
	}
	var found []*etree.Element
	if root.Tag == tag {
		found = append(found, root)
	}
	for _, child := range root.ChildElements() {
		found = append(found, findElements(child, tag)...)
	}
	return found
}

func elementText(parent *etree.Element, tag string) string {
	el := findElement(parent, tag)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func elementDecimal(parent *etree.Element, tag string) decimal.Decimal {
	text := elementText(parent, tag)
	if text == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero
	}
	return value
}
