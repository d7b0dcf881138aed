package assistant

import (
	"strings"
	"testing"
)

func TestSanitizePII(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"cpf", "CPF 123.456.789-01 ok", "CPF ***.***.***-** ok"},
		{"cnpj", "CNPJ 12.345.678/0001-95 ok", "CNPJ **.***.***/****-** ok"},
		{"card", "cartão 1234 5678 9012 3456", "cartão **** **** **** ****"},
		{"email", "contato joao.silva@empresa.com.br aqui", "contato j***@e*** aqui"},
		{"phone", "ligue (11) 98765-4321", "ligue (11) *****-****"},
		{"clean", "faturamento de R$ 1.234,56", "faturamento de R$ 1.234,56"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizePII(tc.in)
			if got != tc.want {
				t.Errorf("SanitizePII(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSafePreview(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := SafePreview(long, 100)
	if len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Errorf("SafePreview length: got %d (%q)", len(got), got[90:])
	}

	got = SafePreview("mensagem com CPF 123.456.789-01", 100)
	if strings.Contains(got, "123.456.789-01") {
		t.Errorf("preview must mask PII: %q", got)
	}
}
