/**
 * Field Extraction Tests
 *
 * Validates the heuristic structured-data parsers against known text
 * for every document type, including degraded all-null outcomes.
 */

package processor

import (
	"strings"
	"testing"
)

func TestExtractFieldsProduct(t *testing.T) {
	testCases := []struct {
		name        string
		text        string
		wantName    string
		wantPrice   float64
		wantNoPrice bool
	}{
		{
			name:      "name and price on separate lines",
			text:      "Choco Bar\n$2.50\n",
			wantName:  "Choco Bar",
			wantPrice: 2.50,
		},
		{
			name:      "price embedded in the name line",
			text:      "Sparkling Water 1.99\nbest before 2027",
			wantName:  "Sparkling Water 1.99",
			wantPrice: 1.99,
		},
		{
			name:        "no monetary token",
			text:        "Organic Soap\nHandmade in small batches",
			wantName:    "Organic Soap",
			wantNoPrice: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fields := ExtractFields(tc.text, DocumentTypeProduct)

			if fields.Type != DocumentTypeProduct {
				t.Errorf("Type = %q, want %q", fields.Type, DocumentTypeProduct)
			}
			if fields.ProductName == nil || *fields.ProductName != tc.wantName {
				t.Errorf("ProductName = %v, want %q", fields.ProductName, tc.wantName)
			}

			if tc.wantNoPrice {
				if fields.Price != nil {
					t.Errorf("Price = %v, want nil", *fields.Price)
				}
				if fields.Currency != nil {
					t.Errorf("Currency = %v, want nil", *fields.Currency)
				}
				return
			}

			if fields.Price == nil || *fields.Price != tc.wantPrice {
				t.Errorf("Price = %v, want %v", fields.Price, tc.wantPrice)
			}
			if fields.Currency == nil || *fields.Currency != "USD" {
				t.Errorf("Currency = %v, want USD", fields.Currency)
			}
		})
	}
}

func TestExtractFieldsReceipt(t *testing.T) {
	fields := ExtractFields("Thanks!\nTotal: $15.00\n", DocumentTypeReceipt)

	if fields.TotalAmount == nil || *fields.TotalAmount != 15.00 {
		t.Errorf("TotalAmount = %v, want 15.00", fields.TotalAmount)
	}
	if fields.Currency == nil || *fields.Currency != "USD" {
		t.Errorf("Currency = %v, want USD", fields.Currency)
	}
	if fields.ItemCount == nil || *fields.ItemCount != 1 {
		t.Errorf("ItemCount = %v, want 1", fields.ItemCount)
	}
}

func TestExtractFieldsReceiptWithoutTotal(t *testing.T) {
	fields := ExtractFields("Corner Shop\nMilk 2.10\nBread 1.80\nHave a nice day", DocumentTypeReceipt)

	if fields.TotalAmount != nil {
		t.Errorf("TotalAmount = %v, want nil", *fields.TotalAmount)
	}
	// Item count is always populated, even without a total line.
	if fields.ItemCount == nil || *fields.ItemCount != 2 {
		t.Errorf("ItemCount = %v, want 2", fields.ItemCount)
	}
}

func TestExtractFieldsInvoice(t *testing.T) {
	text := "ACME Supplies Ltd\nInvoice No. 2024-00317\nTotal due: $420.50\n"
	fields := ExtractFields(text, DocumentTypeInvoice)

	if fields.SupplierName == nil || *fields.SupplierName != "ACME Supplies Ltd" {
		t.Errorf("SupplierName = %v, want ACME Supplies Ltd", fields.SupplierName)
	}
	// The trailing digit run of the invoice line wins.
	if fields.InvoiceNumber == nil || *fields.InvoiceNumber != "00317" {
		t.Errorf("InvoiceNumber = %v, want 00317", fields.InvoiceNumber)
	}
	if fields.TotalAmount == nil || *fields.TotalAmount != 420.50 {
		t.Errorf("TotalAmount = %v, want 420.50", fields.TotalAmount)
	}
}

func TestExtractFieldsNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"\n\n\n",
		strings.Repeat("$", 10000),
		"Total: $" + strings.Repeat("9", 400),
		"invoice \x00 �",
	}

	for _, docType := range []DocumentType{
		DocumentTypeProduct, DocumentTypeReceipt, DocumentTypeInvoice, DocumentTypeBarcode,
	} {
		for _, text := range inputs {
			fields := ExtractFields(text, docType)
			if fields.Type != docType {
				t.Errorf("Type = %q, want %q", fields.Type, docType)
			}
		}
	}
}

func TestExtractFieldsDegraded(t *testing.T) {
	fields := ExtractFields("", DocumentTypeReceipt)
	if !fields.Degraded() {
		t.Errorf("expected empty receipt extraction to be degraded")
	}

	fields = ExtractFields("Thanks!\nTotal: $15.00\n", DocumentTypeReceipt)
	if fields.Degraded() {
		t.Errorf("receipt with total should not be degraded")
	}
}
