/**
 * Field Extractor - heuristic structured-data parsing
 *
 * Turns recognized text into typed fields per document type with
 * single-pass, line-oriented regex rules. First qualifying match wins;
 * parsing trouble degrades to all-null fields, never an error.
 */

package processor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// A monetary-looking token: optional currency symbol, digits, an
	// optional decimal part.
	priceRe = regexp.MustCompile(`[$€£]?\s*(\d+\.?\d*)`)

	digitRunRe = regexp.MustCompile(`\d+`)
)

const defaultCurrency = "USD"

// ExtractFields parses recognized text into StructuredFields for the
// given document type. It never fails: unparseable input yields a
// fields object with all-null values.
func ExtractFields(text string, docType DocumentType) (fields StructuredFields) {
	fields = StructuredFields{Type: docType}

	defer func() {
		if recover() != nil {
			fields = StructuredFields{Type: docType}
		}
	}()

	lines := nonBlankLines(text)

	switch docType {
	case DocumentTypeProduct:
		parseProduct(lines, &fields)
	case DocumentTypeReceipt:
		parseReceipt(lines, &fields)
	case DocumentTypeInvoice:
		parseInvoice(lines, &fields)
	}

	return fields
}

// parseProduct reads a product label: first non-blank line is the name,
// the first monetary token anywhere is the price. Currency is set only
// when a price was found.
func parseProduct(lines []string, fields *StructuredFields) {
	if len(lines) > 0 {
		name := lines[0]
		fields.ProductName = &name
	}

	for _, line := range lines {
		if price, ok := findPrice(line); ok {
			fields.Price = &price
			currency := defaultCurrency
			fields.Currency = &currency
			break
		}
	}
}

// parseReceipt reads a receipt: the first "total" line carrying a
// monetary token sets the total, and items are counted as lines with a
// currency symbol or any digit.
func parseReceipt(lines []string, fields *StructuredFields) {
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "total") {
			continue
		}
		if total, ok := findPrice(line); ok {
			fields.TotalAmount = &total
			currency := defaultCurrency
			fields.Currency = &currency
			break
		}
	}

	count := 0
	for _, line := range lines {
		if strings.Contains(line, "$") || strings.ContainsAny(line, "0123456789") {
			count++
		}
	}
	fields.ItemCount = &count
}

// parseInvoice reads an invoice: the invoice number is the trailing
// digit run of the first "invoice"/"inv" line, the supplier is the
// first non-blank line, and the total delegates to the receipt rule.
func parseInvoice(lines []string, fields *StructuredFields) {
	if len(lines) > 0 {
		supplier := lines[0]
		fields.SupplierName = &supplier
	}

	for _, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "invoice") && !strings.Contains(lower, "inv") {
			continue
		}
		runs := digitRunRe.FindAllString(line, -1)
		if len(runs) > 0 {
			number := runs[len(runs)-1]
			fields.InvoiceNumber = &number
			break
		}
	}

	var receipt StructuredFields
	parseReceipt(lines, &receipt)
	fields.TotalAmount = receipt.TotalAmount
}

func findPrice(line string) (float64, bool) {
	match := priceRe.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func nonBlankLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
