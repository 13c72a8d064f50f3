package reinf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Spreadsheet column names of the 4020 withholding layout. Kept in the
// original regulatory (Portuguese) wording because they must match the
// headers of the uploaded files byte for byte.
const (
	ColumnPayer        = "Recolhedor"
	ColumnIncomeNature = "Natureza de Rendimento"
	ColumnPeriod       = "Período Apuração"
	ColumnBaseAmount   = "Base de Cálculo"
	ColumnRevenue      = "Valor Receita"
)

// RequiredFields lists the columns that must be non-empty for a row to become
// an event.
var RequiredFields = []string{
	ColumnPayer,
	ColumnIncomeNature,
	ColumnPeriod,
	ColumnBaseAmount,
	ColumnRevenue,
}

// EventPayload is one validated, normalized row ready for XML rendering. It
// only lives between transformation and rendering; it is never persisted.
type EventPayload struct {
	CnpjBenef    string
	NatRend      string
	DtFG         string
	VlrBruto     string
	VlrBaseAgreg string
	VlrAgreg     string
	PerApur      string
}

// ValidationError reports a required field that is blank or absent in a row.
// Row numbers are 1-based as shown to the person who filled the spreadsheet.
type ValidationError struct {
	Row   int
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q is empty at row %d", e.Field, e.Row)
}

// Diagnostic records a non-fatal fallback applied while normalizing a row
// (e.g. an unparsable amount rendered as "0,00"). Fallbacks keep the row
// alive but are surfaced instead of only logged.
type Diagnostic struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Transformer maps tabular rows onto event payloads. It is stateless and safe
// for concurrent use.
type Transformer struct{}

// NewTransformer creates a row transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// TransformRow validates and normalizes one row. rowIndex is 0-based; all
// reporting uses the 1-based row number. A ValidationError means the row
// produced no payload; diagnostics describe fallbacks applied to a payload
// that was still produced.
func (t *Transformer) TransformRow(row map[string]string, rowIndex int) (*EventPayload, []Diagnostic, error) {
	rowNum := rowIndex + 1

	for _, field := range RequiredFields {
		if strings.TrimSpace(row[field]) == "" {
			return nil, nil, &ValidationError{Row: rowNum, Field: field}
		}
	}

	var diags []Diagnostic
	note := func(field, message string) {
		diags = append(diags, Diagnostic{Row: rowNum, Field: field, Message: message})
	}

	payload := &EventPayload{
		CnpjBenef: formatTaxID(row[ColumnPayer]),
		NatRend:   formatIncomeNature(row[ColumnIncomeNature]),
	}

	period := row[ColumnPeriod]
	date, ok := formatDate(period)
	if !ok {
		note(ColumnPeriod, "date not recognized, rendered empty")
	}
	payload.DtFG = date

	perApur, ok := formatPeriod(period)
	if !ok {
		note(ColumnPeriod, `period not recognized, rendered as "00-0000"`)
	}
	payload.PerApur = perApur

	base, ok := formatMoney(row[ColumnBaseAmount])
	if !ok {
		note(ColumnBaseAmount, `amount not numeric, rendered as "0,00"`)
	}
	payload.VlrBruto = base
	payload.VlrBaseAgreg = base

	revenue, ok := formatMoney(row[ColumnRevenue])
	if !ok {
		note(ColumnRevenue, `amount not numeric, rendered as "0,00"`)
	}
	payload.VlrAgreg = revenue

	return payload, diags, nil
}

// formatTaxID left-pads a CNPJ to the mandatory 14 digits.
func formatTaxID(v string) string {
	v = strings.TrimSpace(v)
	for len(v) < 14 {
		v = "0" + v
	}
	return v
}

// formatIncomeNature strips trailing '.'/'0' characters from a nature code
// (xlsx readers render the numeric cell as e.g. "10001.0") and falls back to
// "00000" when nothing is left.
func formatIncomeNature(v string) string {
	v = strings.TrimRight(strings.TrimSpace(v), ".0")
	if v == "" {
		return "00000"
	}
	return v
}

// formatMoney renders an amount with two decimals and a comma separator.
// Returns false together with "0,00" when the input is not numeric.
func formatMoney(v string) (string, bool) {
	s := strings.TrimSpace(v)
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "0,00", false
	}
	return strings.Replace(fmt.Sprintf("%.2f", f), ".", ",", 1), true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// formatDate normalizes a date-ish cell to YYYY-MM-DD. Returns false and an
// empty string when no layout matches.
func formatDate(v string) (string, bool) {
	s := strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format("2006-01-02"), true
		}
	}
	return "", false
}

// formatPeriod normalizes an accrual period to YYYY-MM. A string of at least
// 7 characters contributes its first 7; otherwise the value is parsed as a
// date. Unrecognized input falls back to "00-0000".
func formatPeriod(v string) (string, bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return "00-0000", false
	}
	if len(s) >= 7 {
		return s[:7], true
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format("2006-01"), true
		}
	}
	return "00-0000", false
}
