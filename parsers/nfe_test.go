package parsers

import (
	"testing"

	"github.com/shopspring/decimal"
)

const sampleNFe = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe">
  <NFe>
    <infNFe Id="NFe35240112345678000195550010000001231000001234">
      <ide>
        <nNF>123</nNF>
        <serie>1</serie>
        <dhEmi>2024-01-15T10:30:00-03:00</dhEmi>
        <natOp>VENDA DE MERCADORIA</natOp>
      </ide>
      <emit>
        <CNPJ>12345678000195</CNPJ>
        <xNome>Fornecedor Exemplo LTDA</xNome>
        <enderEmit>
          <xMun>Sao Paulo</xMun>
          <UF>SP</UF>
        </enderEmit>
      </emit>
      <dest>
        <CNPJ>98765432000188</CNPJ>
        <xNome>Cliente Exemplo SA</xNome>
        <enderDest>
          <xMun>Campinas</xMun>
          <UF>SP</UF>
        </enderDest>
      </dest>
      <det nItem="1">
        <prod>
          <cProd>PROD001</cProd>
          <xProd>Parafuso sextavado</xProd>
          <NCM>73181500</NCM>
          <CFOP>5102</CFOP>
          <uCom>UN</uCom>
          <qCom>100.0000</qCom>
          <vUnCom>15.0000</vUnCom>
          <vProd>1500.00</vProd>
        </prod>
        <imposto>
          <ICMS>
            <ICMS00>
              <CST>00</CST>
              <vBC>1500.00</vBC>
              <pICMS>18.00</pICMS>
              <vICMS>270.00</vICMS>
            </ICMS00>
          </ICMS>
          <PIS>
            <PISAliq>
              <pPIS>1.65</pPIS>
              <vPIS>24.75</vPIS>
            </PISAliq>
          </PIS>
        </imposto>
      </det>
      <total>
        <ICMSTot>
          <vBC>1500.00</vBC>
          <vICMS>270.00</vICMS>
          <vST>0.00</vST>
          <vProd>1500.00</vProd>
          <vFrete>0.00</vFrete>
          <vSeg>0.00</vSeg>
          <vDesc>0.00</vDesc>
          <vIPI>0.00</vIPI>
          <vPIS>24.75</vPIS>
          <vCOFINS>114.00</vCOFINS>
          <vOutro>0.00</vOutro>
          <vNF>1500.00</vNF>
        </ICMSTot>
      </total>
    </infNFe>
  </NFe>
</nfeProc>`

func TestParseNFeHeader(t *testing.T) {
	parsed, err := ParseNFe([]byte(sampleNFe))
	if err != nil {
		t.Fatalf("ParseNFe failed: %v", err)
	}

	inv := parsed.Invoice
	if inv.InvoiceNumber != "123" {
		t.Errorf("invoice number: got %q, want %q", inv.InvoiceNumber, "123")
	}
	if inv.Series != "1" {
		t.Errorf("series: got %q, want %q", inv.Series, "1")
	}
	if inv.XmlKey != "35240112345678000195550010000001231000001234" {
		t.Errorf("xml key: got %q", inv.XmlKey)
	}
	if inv.IssueDate != "2024-01-15" {
		t.Errorf("issue date: got %q, want date portion only", inv.IssueDate)
	}
	if inv.SupplierName != "Fornecedor Exemplo LTDA" {
		t.Errorf("supplier name: got %q", inv.SupplierName)
	}
	if inv.SupplierCnpj != "12345678000195" {
		t.Errorf("supplier cnpj: got %q", inv.SupplierCnpj)
	}
	if inv.CustomerCnpj != "98765432000188" {
		t.Errorf("customer cnpj: got %q", inv.CustomerCnpj)
	}
	if !inv.NetAmount.Equal(decimal.RequireFromString("1500.00")) {
		t.Errorf("net amount: got %s, want 1500.00", inv.NetAmount)
	}
	if !inv.IcmsAmount.Equal(decimal.RequireFromString("270.00")) {
		t.Errorf("icms amount: got %s, want 270.00", inv.IcmsAmount)
	}
	if inv.OperationNature != "VENDA DE MERCADORIA" {
		t.Errorf("operation nature: got %q", inv.OperationNature)
	}
}

func TestParseNFeItems(t *testing.T) {
	parsed, err := ParseNFe([]byte(sampleNFe))
	if err != nil {
		t.Fatalf("ParseNFe failed: %v", err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(parsed.Items))
	}

	item := parsed.Items[0]
	if item.ItemNumber != 1 {
		t.Errorf("item number: got %d, want 1", item.ItemNumber)
	}
	if item.ProductCode != "PROD001" {
		t.Errorf("product code: got %q", item.ProductCode)
	}
	if !item.Quantity.Equal(decimal.RequireFromString("100.0000")) {
		t.Errorf("quantity: got %s", item.Quantity)
	}
	if !item.IcmsAmount.Equal(decimal.RequireFromString("270.00")) {
		t.Errorf("item icms (ICMS00 variant): got %s, want 270.00", item.IcmsAmount)
	}
	if !item.IcmsRate.Equal(decimal.RequireFromString("18.00")) {
		t.Errorf("item icms rate: got %s, want 18.00", item.IcmsRate)
	}
	if !item.PisAmount.Equal(decimal.RequireFromString("24.75")) {
		t.Errorf("item pis: got %s, want 24.75", item.PisAmount)
	}
}

func TestParseNFeIcmsVariantProbing(t *testing.T) {
	// ICMS20 uses the same vICMS field name inside a different variant node.
	xml := `<NFe><infNFe Id="NFe111"><det><prod><vProd>100.00</vProd></prod><imposto><ICMS><ICMS20><vBC>80.00</vBC><pICMS>12.00</pICMS><vICMS>9.60</vICMS></ICMS20></ICMS></imposto></det></infNFe></NFe>`
	parsed, err := ParseNFe([]byte(xml))
	if err != nil {
		t.Fatalf("ParseNFe failed: %v", err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(parsed.Items))
	}
	if !parsed.Items[0].IcmsAmount.Equal(decimal.RequireFromString("9.60")) {
		t.Errorf("icms from ICMS20 variant: got %s, want 9.60", parsed.Items[0].IcmsAmount)
	}
}

func TestParseNFeTolerantMissingFields(t *testing.T) {
	xml := `<NFe><infNFe><ide><nNF>7</nNF></ide></infNFe></NFe>`
	parsed, err := ParseNFe([]byte(xml))
	if err != nil {
		t.Fatalf("missing optional fields must not fail parsing: %v", err)
	}
	if parsed.Invoice.InvoiceNumber != "7" {
		t.Errorf("invoice number: got %q", parsed.Invoice.InvoiceNumber)
	}
	if parsed.Invoice.SupplierName != "" {
		t.Errorf("supplier name should default to empty, got %q", parsed.Invoice.SupplierName)
	}
	if !parsed.Invoice.NetAmount.IsZero() {
		t.Errorf("net amount should default to zero, got %s", parsed.Invoice.NetAmount)
	}
	if len(parsed.Items) != 0 {
		t.Errorf("items: got %d, want 0", len(parsed.Items))
	}
}

func TestParseNFeMalformedXml(t *testing.T) {
	_, err := ParseNFe([]byte("this is not xml <<<"))
	if err == nil {
		t.Fatal("malformed XML must be a fatal parse error")
	}
}
