package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// MaxCSVBytes caps an uploaded CSV body at 5MB.
const MaxCSVBytes = 5 << 20

// fallbackCategory receives rows with no usable category column.
const fallbackCategory = "Uncategorized"

// Mapping binds logical transaction fields to CSV header names.
type Mapping map[string]string

// Logical field names used in mappings.
const (
	FieldAmount      = "amount"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldType        = "type"
	FieldCategory    = "category"
	FieldMerchant    = "merchant"
	FieldPayment     = "payment_method"
	FieldTags        = "tags"
	FieldNotes       = "notes"
)

// fieldAliases matches headers case-insensitively by substring. Order
// matters: "notes" must claim its header before the description alias
// "note" can.
var fieldAliases = []struct {
	field   string
	aliases []string
}{
	{FieldAmount, []string{"amount", "price", "sum"}},
	{FieldDate, []string{"date"}},
	{FieldCategory, []string{"category"}},
	{FieldMerchant, []string{"merchant", "payee", "vendor"}},
	{FieldPayment, []string{"payment"}},
	{FieldType, []string{"type"}},
	{FieldTags, []string{"tags"}},
	{FieldNotes, []string{"notes"}},
	{FieldDescription, []string{"description", "memo", "note"}},
}

var requiredFields = []string{FieldAmount, FieldDate, FieldDescription}

// RowError pins a parse failure to its 1-based CSV line.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ParsedRow is one CSV row after field mapping. The category is still
// a name; it resolves to an id at import time.
type ParsedRow struct {
	Input
	CategoryName string `json:"category_name,omitempty"`
	Line         int    `json:"line"`
}

// PreviewResult shows how a CSV would map before committing to it.
type PreviewResult struct {
	Mapping   Mapping     `json:"mapping"`
	Columns   []string    `json:"columns"`
	TotalRows int         `json:"total_rows"`
	Sample    []ParsedRow `json:"sample"`
	Errors    []RowError  `json:"errors,omitempty"`
}

// ImportResult reports an import's outcome row by row.
type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

const previewSampleSize = 5

// PreviewCSV parses the text, infers the column mapping and returns the
// first few parsed rows so the user can confirm before importing.
func (s *Service) PreviewCSV(csvText string) (*PreviewResult, error) {
	headers, records, err := parseCSV(csvText)
	if err != nil {
		return nil, err
	}
	mapping, err := DetectMapping(headers)
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{Mapping: mapping, Columns: headers, TotalRows: len(records)}
	index := columnIndex(headers, mapping)
	for i, rec := range records {
		row, err := parseRow(rec, index, i+2)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: i + 2, Message: err.Error()})
			continue
		}
		if len(res.Sample) < previewSampleSize {
			res.Sample = append(res.Sample, row)
		}
	}
	return res, nil
}

// ImportCSV parses the text with the given mapping (inferred when nil)
// and inserts every valid row in one transaction. Unparseable rows are
// skipped and reported; they do not abort the import.
func (s *Service) ImportCSV(ctx context.Context, userID, csvText string, mapping Mapping) (*ImportResult, error) {
	headers, records, err := parseCSV(csvText)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		if mapping, err = DetectMapping(headers); err != nil {
			return nil, err
		}
	}

	index := columnIndex(headers, mapping)
	res := &ImportResult{}
	var rows []ParsedRow
	for i, rec := range records {
		row, err := parseRow(rec, index, i+2)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, RowError{Line: i + 2, Message: err.Error()})
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return res, nil
	}

	err = s.db.WithTx(ctx, func(ctx context.Context, db persistence.Store) error {
		categories := map[string]string{}
		var txs []domain.Transaction
		for _, row := range rows {
			catID, err := s.resolveCategory(ctx, db, userID, row, categories)
			if err != nil {
				return err
			}
			row.CategoryID = catID
			tx, err := s.build(ctx, userID, row.Input)
			if err != nil {
				res.Skipped++
				res.Errors = append(res.Errors, RowError{Line: row.Line, Message: err.Error()})
				continue
			}
			txs = append(txs, *tx)
		}
		if len(txs) == 0 {
			return nil
		}
		if err := db.Transactions().InsertBatch(ctx, txs); err != nil {
			return fmt.Errorf("failed to insert imported transactions: %w", err)
		}
		res.Imported = len(txs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Int("imported", res.Imported).Int("skipped", res.Skipped).Msg("csv import finished")
	return res, nil
}

// resolveCategory maps a row's category name to an id, creating the
// category on first sight. Rows without a name land in the fallback
// category.
func (s *Service) resolveCategory(ctx context.Context, db persistence.Store, userID string, row ParsedRow, cache map[string]string) (string, error) {
	name := strings.TrimSpace(row.CategoryName)
	if name == "" {
		name = fallbackCategory
	}
	key := strings.ToLower(name)
	if id, ok := cache[key]; ok {
		return id, nil
	}

	existing, err := db.Categories().GetByName(ctx, userID, name)
	if err == nil {
		cache[key] = existing.ID
		return existing.ID, nil
	}
	if !errs.Is(err, errs.KindNotFound) {
		return "", fmt.Errorf("failed to resolve category %q: %w", name, err)
	}

	catType := domain.CategoryWant
	if row.Type == domain.TxIncome {
		catType = domain.CategoryIncome
	}
	cat := &domain.Category{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Type:      catType,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	if err := db.Categories().Insert(ctx, cat); err != nil {
		return "", fmt.Errorf("failed to create category %q: %w", name, err)
	}
	cache[key] = cat.ID
	return cat.ID, nil
}

// DetectMapping infers the field-to-header mapping from the header row.
func DetectMapping(headers []string) (Mapping, error) {
	mapping := Mapping{}
	for _, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		for _, fa := range fieldAliases {
			if _, taken := mapping[fa.field]; taken {
				continue
			}
			if matchesAny(lower, fa.aliases) {
				mapping[fa.field] = h
				break
			}
		}
	}

	var missing []string
	for _, f := range requiredFields {
		if _, ok := mapping[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, errs.Validation("csv is missing required columns", map[string]string{
			"missing": strings.Join(missing, ", "),
		})
	}
	return mapping, nil
}

func matchesAny(header string, aliases []string) bool {
	for _, a := range aliases {
		if strings.Contains(header, a) {
			return true
		}
	}
	return false
}

func parseCSV(text string) ([]string, [][]string, error) {
	if len(text) > MaxCSVBytes {
		return nil, nil, errs.Validation("csv exceeds the 5MB limit", nil)
	}
	reader := csv.NewReader(strings.NewReader(text))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, errs.Validation(fmt.Sprintf("csv is malformed: %v", err), nil)
	}
	if len(records) < 2 {
		return nil, nil, errs.Validation("csv has no data rows", nil)
	}
	return records[0], records[1:], nil
}

// columnIndex resolves a mapping's header names to column positions.
func columnIndex(headers []string, mapping Mapping) map[string]int {
	pos := map[string]int{}
	for i, h := range headers {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	index := map[string]int{}
	for field, header := range mapping {
		if i, ok := pos[strings.ToLower(strings.TrimSpace(header))]; ok {
			index[field] = i
		}
	}
	return index
}

func parseRow(rec []string, index map[string]int, line int) (ParsedRow, error) {
	cell := func(field string) string {
		i, ok := index[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	row := ParsedRow{Line: line}

	amount, err := parseAmount(cell(FieldAmount))
	if err != nil {
		return row, err
	}
	date, err := parseDate(cell(FieldDate))
	if err != nil {
		return row, err
	}

	row.Date = date
	row.Description = cell(FieldDescription)
	if row.Description == "" {
		return row, fmt.Errorf("description is empty")
	}

	row.Type = inferType(cell(FieldType), amount)
	if amount < 0 {
		amount = -amount
	}
	row.Amount = amount
	row.CategoryName = cell(FieldCategory)
	row.PaymentMethod = mapPaymentMethod(cell(FieldPayment))
	row.Notes = cell(FieldNotes)
	if m := cell(FieldMerchant); m != "" {
		row.Merchant = domain.Merchant{Name: m}
	}
	if tags := cell(FieldTags); tags != "" {
		row.Tags = splitTags(tags)
	}
	return row, nil
}

// currencyStrip removes the symbols and separators the contract allows
// inside amounts.
var currencyStrip = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "")

func parseAmount(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	clean := currencyStrip.Replace(raw)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", raw)
	}
	return v, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q is not in a recognized format", raw)
}

// inferType trusts an explicit type column; otherwise the amount's sign
// decides, negative meaning expense.
func inferType(raw string, amount float64) domain.TransactionType {
	switch lower := strings.ToLower(raw); {
	case strings.Contains(lower, "income"):
		return domain.TxIncome
	case strings.Contains(lower, "expense"):
		return domain.TxExpense
	case strings.Contains(lower, "transfer"):
		return domain.TxTransfer
	}
	if amount < 0 {
		return domain.TxExpense
	}
	return domain.TxIncome
}

var paymentSubstrings = []struct {
	needles []string
	method  domain.PaymentMethod
}{
	{[]string{"cash"}, domain.PayCash},
	{[]string{"credit"}, domain.PayCredit},
	{[]string{"debit"}, domain.PayDebit},
	{[]string{"bank", "transfer"}, domain.PayBankTransfer},
	{[]string{"paypal", "venmo", "apple pay", "google pay"}, domain.PayDigital},
}

func mapPaymentMethod(raw string) domain.PaymentMethod {
	lower := strings.ToLower(raw)
	if lower == "" {
		return domain.PayOther
	}
	for _, ps := range paymentSubstrings {
		if matchesAny(lower, ps.needles) {
			return ps.method
		}
	}
	return domain.PayOther
}

func splitTags(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '|' })
	var tags []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
