package receipt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// schema defines the receipt tables. Child rows always belong to exactly
// one receipts row and are removed with it.
const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    store            TEXT NOT NULL,
    store_normalized TEXT,
    address          TEXT,
    phone            TEXT,
    receipt_number   TEXT,
    date             TIMESTAMP NOT NULL,
    subtotal         REAL,
    total_savings    REAL,
    net_sales        REAL,
    bag_fee          REAL,
    total_tax        REAL NOT NULL DEFAULT 0,
    total            REAL NOT NULL,
    payment_method   TEXT,
    card_last_four   TEXT,
    payment_amount   REAL,
    source_path      TEXT,
    fingerprint      TEXT,
    created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_receipts_fingerprint ON receipts(fingerprint);
CREATE INDEX IF NOT EXISTS idx_receipts_date ON receipts(date);

CREATE TABLE IF NOT EXISTS receipt_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_id  INTEGER NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
    brand       TEXT,
    product     TEXT NOT NULL,
    product_type TEXT,
    category    TEXT,
    quantity    INTEGER,
    unit        TEXT,
    weight      REAL,
    unit_price  REAL NOT NULL,
    total_price REAL NOT NULL,
    is_organic  INTEGER NOT NULL DEFAULT 0,
    savings     REAL,
    flagged     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_items_receipt ON receipt_items(receipt_id);

CREATE TABLE IF NOT EXISTS receipt_taxes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_id INTEGER NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
    rate       TEXT,
    rate_value REAL,
    amount     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS receipt_promotions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_id  INTEGER NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
    description TEXT NOT NULL,
    savings     REAL NOT NULL
);
`

// StorageErrorKind classifies persistence failures.
type StorageErrorKind int

const (
	ConstraintViolation StorageErrorKind = iota
	ConnectionFailure
)

// StorageError wraps a database failure with its classification.
type StorageError struct {
	Kind StorageErrorKind
	Err  error
}

func (e *StorageError) Error() string {
	switch e.Kind {
	case ConstraintViolation:
		return fmt.Sprintf("constraint violation: %v", e.Err)
	default:
		return fmt.Sprintf("connection failure: %v", e.Err)
	}
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	kind := ConnectionFailure
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		kind = ConstraintViolation
	}
	return &StorageError{Kind: kind, Err: err}
}

// Store persists receipt aggregates in SQLite and serves the read queries
// the analytics view is built on.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, storageErr(fmt.Errorf("opening database: %w", err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr(fmt.Errorf("pinging database: %w", err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storageErr(fmt.Errorf("initializing schema: %w", err))
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save writes the receipt and all of its children in a single transaction
// and returns the new receipt id. Either every row lands or none do.
func (s *Store) Save(ctx context.Context, r *Receipt) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO receipts (
			store, store_normalized, address, phone, receipt_number, date,
			subtotal, total_savings, net_sales, bag_fee, total_tax, total,
			payment_method, card_last_four, payment_amount, source_path, fingerprint, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Store, nullStr(r.StoreNormalized), nullStr(r.Address), nullStr(r.Phone),
		nullStr(r.ReceiptNumber), r.Date,
		nullFloat(r.Subtotal), nullFloat(r.TotalSavings), nullFloat(r.NetSales), nullFloat(r.BagFee),
		r.TotalTax, r.Total,
		nullStr(r.PaymentMethod), nullStr(r.CardLastFour), nullFloat(r.PaymentAmount),
		nullStr(r.SourcePath), nullStr(r.Fingerprint), time.Now().UTC(),
	)
	if err != nil {
		return 0, storageErr(fmt.Errorf("inserting receipt: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(fmt.Errorf("reading receipt id: %w", err))
	}

	for _, it := range r.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_items (
				receipt_id, brand, product, product_type, category, quantity,
				unit, weight, unit_price, total_price, is_organic, savings, flagged
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nullStr(it.Brand), it.Product, nullStr(it.ProductType), nullStr(it.Category),
			nullInt(it.Quantity), nullStr(it.Unit), nullFloat(it.Weight),
			it.UnitPrice, it.TotalPrice, it.IsOrganic, nullFloat(it.Savings), it.Flagged,
		)
		if err != nil {
			return 0, storageErr(fmt.Errorf("inserting item %q: %w", it.Product, err))
		}
	}

	for _, tax := range r.Taxes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO receipt_taxes (receipt_id, rate, rate_value, amount) VALUES (?, ?, ?, ?)`,
			id, tax.Rate, tax.RateValue, tax.Amount,
		)
		if err != nil {
			return 0, storageErr(fmt.Errorf("inserting tax entry: %w", err))
		}
	}

	for _, p := range r.Promotions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO receipt_promotions (receipt_id, description, savings) VALUES (?, ?, ?)`,
			id, p.Description, p.Savings,
		)
		if err != nil {
			return 0, storageErr(fmt.Errorf("inserting promotion: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr(fmt.Errorf("committing receipt: %w", err))
	}
	r.ID = id
	return id, nil
}

// CountReceipts returns the number of stored receipts.
func (s *Store) CountReceipts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts`).Scan(&n); err != nil {
		return 0, storageErr(fmt.Errorf("counting receipts: %w", err))
	}
	return n, nil
}

// ListReceipts returns stored receipts (without children) newest first.
func (s *Store) ListReceipts(ctx context.Context) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store, COALESCE(store_normalized, ''), COALESCE(receipt_number, ''),
		       date, subtotal, total_tax, total, COALESCE(payment_method, ''), created_at
		FROM receipts ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, storageErr(fmt.Errorf("listing receipts: %w", err))
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		var r Receipt
		var subtotal sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Store, &r.StoreNormalized, &r.ReceiptNumber,
			&r.Date, &subtotal, &r.TotalTax, &r.Total, &r.PaymentMethod, &r.CreatedAt); err != nil {
			return nil, storageErr(fmt.Errorf("scanning receipt: %w", err))
		}
		if subtotal.Valid {
			v := subtotal.Float64
			r.Subtotal = &v
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// GetReceipt loads a full aggregate by id.
func (s *Store) GetReceipt(ctx context.Context, id int64) (*Receipt, error) {
	var r Receipt
	var normalized, address, phone, number, method, last4, source, fp sql.NullString
	var subtotal, savings, net, bag, payAmt sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store, store_normalized, address, phone, receipt_number, date,
		       subtotal, total_savings, net_sales, bag_fee, total_tax, total,
		       payment_method, card_last_four, payment_amount, source_path, fingerprint, created_at
		FROM receipts WHERE id = ?`, id).Scan(
		&r.ID, &r.Store, &normalized, &address, &phone, &number, &r.Date,
		&subtotal, &savings, &net, &bag, &r.TotalTax, &r.Total,
		&method, &last4, &payAmt, &source, &fp, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %d not found", id)
	}
	if err != nil {
		return nil, storageErr(fmt.Errorf("loading receipt: %w", err))
	}
	r.StoreNormalized = normalized.String
	r.Address = address.String
	r.Phone = phone.String
	r.ReceiptNumber = number.String
	r.PaymentMethod = method.String
	r.CardLastFour = last4.String
	r.SourcePath = source.String
	r.Fingerprint = fp.String
	r.Subtotal = floatPtr(subtotal)
	r.TotalSavings = floatPtr(savings)
	r.NetSales = floatPtr(net)
	r.BagFee = floatPtr(bag)
	r.PaymentAmount = floatPtr(payAmt)

	if r.Items, err = s.receiptItems(ctx, id); err != nil {
		return nil, err
	}
	if r.Taxes, err = s.receiptTaxes(ctx, id); err != nil {
		return nil, err
	}
	if r.Promotions, err = s.receiptPromotions(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) receiptItems(ctx context.Context, id int64) ([]LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(brand, ''), product, COALESCE(product_type, ''), COALESCE(category, ''),
		       quantity, COALESCE(unit, ''), weight, unit_price, total_price, is_organic, savings, flagged
		FROM receipt_items WHERE receipt_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, storageErr(fmt.Errorf("listing items: %w", err))
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		var qty sql.NullInt64
		var weight, savings sql.NullFloat64
		if err := rows.Scan(&it.Brand, &it.Product, &it.ProductType, &it.Category,
			&qty, &it.Unit, &weight, &it.UnitPrice, &it.TotalPrice, &it.IsOrganic, &savings, &it.Flagged); err != nil {
			return nil, storageErr(fmt.Errorf("scanning item: %w", err))
		}
		if qty.Valid {
			v := int(qty.Int64)
			it.Quantity = &v
		}
		it.Weight = floatPtr(weight)
		it.Savings = floatPtr(savings)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) receiptTaxes(ctx context.Context, id int64) ([]TaxEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(rate, ''), COALESCE(rate_value, 0), amount FROM receipt_taxes WHERE receipt_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, storageErr(fmt.Errorf("listing taxes: %w", err))
	}
	defer rows.Close()

	var taxes []TaxEntry
	for rows.Next() {
		var t TaxEntry
		if err := rows.Scan(&t.Rate, &t.RateValue, &t.Amount); err != nil {
			return nil, storageErr(fmt.Errorf("scanning tax entry: %w", err))
		}
		taxes = append(taxes, t)
	}
	return taxes, rows.Err()
}

func (s *Store) receiptPromotions(ctx context.Context, id int64) ([]Promotion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT description, savings FROM receipt_promotions WHERE receipt_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, storageErr(fmt.Errorf("listing promotions: %w", err))
	}
	defer rows.Close()

	var promos []Promotion
	for rows.Next() {
		var p Promotion
		if err := rows.Scan(&p.Description, &p.Savings); err != nil {
			return nil, storageErr(fmt.Errorf("scanning promotion: %w", err))
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// CategoryTotals returns spend per line item category across all receipts.
func (s *Store) CategoryTotals(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(category, 'Uncategorized'), SUM(total_price)
		FROM receipt_items GROUP BY 1`)
	if err != nil {
		return nil, storageErr(fmt.Errorf("summing categories: %w", err))
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var cat string
		var sum float64
		if err := rows.Scan(&cat, &sum); err != nil {
			return nil, storageErr(fmt.Errorf("scanning category total: %w", err))
		}
		totals[cat] = sum
	}
	return totals, rows.Err()
}

// StoreTotals returns spend per normalized store name.
func (s *Store) StoreTotals(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(store_normalized, ''), store), SUM(total)
		FROM receipts GROUP BY 1`)
	if err != nil {
		return nil, storageErr(fmt.Errorf("summing stores: %w", err))
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var store string
		var sum float64
		if err := rows.Scan(&store, &sum); err != nil {
			return nil, storageErr(fmt.Errorf("scanning store total: %w", err))
		}
		totals[store] = sum
	}
	return totals, rows.Err()
}

// KnownStores returns the distinct normalized store names already imported.
func (s *Store) KnownStores(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT store_normalized FROM receipts
		WHERE store_normalized IS NOT NULL AND store_normalized != ''`)
	if err != nil {
		return nil, storageErr(fmt.Errorf("listing stores: %w", err))
	}
	defer rows.Close()

	var stores []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storageErr(fmt.Errorf("scanning store: %w", err))
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
