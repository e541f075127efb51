package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// SQLiteStore persists engine records in SQLite, one table per entity.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS manufacturers (
	addr TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS cabs (
	addr       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	accredited INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS equipment (
	id            INTEGER PRIMARY KEY,
	kind          INTEGER NOT NULL,
	manufacturer  TEXT NOT NULL,
	doc_hash      TEXT NOT NULL,
	registered_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS auctions (
	id           INTEGER PRIMARY KEY,
	equipment_id INTEGER NOT NULL UNIQUE,
	manufacturer TEXT NOT NULL,
	active       INTEGER NOT NULL,
	best_bid_id  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS bids (
	auction_id   INTEGER NOT NULL,
	bid_id       INTEGER NOT NULL,
	cab          TEXT NOT NULL,
	amount       INTEGER NOT NULL,
	submitted_at INTEGER NOT NULL,
	PRIMARY KEY (auction_id, bid_id)
);
CREATE TABLE IF NOT EXISTS test_results (
	equipment_id   INTEGER PRIMARY KEY,
	cab            TEXT NOT NULL,
	doc_hash       TEXT NOT NULL,
	status         INTEGER NOT NULL,
	pending_update TEXT NOT NULL DEFAULT '',
	submitted_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS certifications (
	equipment_id   INTEGER PRIMARY KEY,
	manufacturer   TEXT NOT NULL,
	cab            TEXT NOT NULL,
	status         INTEGER NOT NULL,
	doc_hash       TEXT NOT NULL,
	pending_update TEXT NOT NULL DEFAULT '',
	revoked        INTEGER NOT NULL DEFAULT 0,
	requested_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_entries (
	equipment_id INTEGER NOT NULL,
	seq          INTEGER NOT NULL,
	auditor      TEXT NOT NULL,
	doc_hash     TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	chain_hash   TEXT NOT NULL,
	PRIMARY KEY (equipment_id, seq)
);
CREATE TABLE IF NOT EXISTS balances (
	addr   TEXT PRIMARY KEY,
	amount INTEGER NOT NULL
);
`

// OpenSQLite opens (or creates) a SQLite store at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// PutManufacturer upserts one manufacturer address.
func (s *SQLiteStore) PutManufacturer(addr interfaces.Principal) error {
	_, err := s.db.Exec(
		`INSERT INTO manufacturers (addr) VALUES (?) ON CONFLICT (addr) DO NOTHING`,
		addr.String())
	if err != nil {
		return fmt.Errorf("put manufacturer: %w", err)
	}
	return nil
}

// PutCAB upserts one CAB record.
func (s *SQLiteStore) PutCAB(info interfaces.CABInfo) error {
	_, err := s.db.Exec(
		`INSERT INTO cabs (addr, name, details, accredited) VALUES (?, ?, ?, ?)
		 ON CONFLICT (addr) DO UPDATE SET name = excluded.name, details = excluded.details, accredited = excluded.accredited`,
		info.Addr.String(), info.Name, string(info.Details), boolToInt(info.Accredited))
	if err != nil {
		return fmt.Errorf("put cab: %w", err)
	}
	return nil
}

// PutEquipment upserts one equipment record.
func (s *SQLiteStore) PutEquipment(eq interfaces.Equipment) error {
	_, err := s.db.Exec(
		`INSERT INTO equipment (id, kind, manufacturer, doc_hash, registered_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, manufacturer = excluded.manufacturer,
			doc_hash = excluded.doc_hash, registered_at = excluded.registered_at`,
		eq.ID, uint8(eq.Kind), eq.Manufacturer.String(), string(eq.DocHash), toMillis(eq.RegisteredAt))
	if err != nil {
		return fmt.Errorf("put equipment: %w", err)
	}
	return nil
}

// PutAuction upserts one auction record. Bids are stored separately.
func (s *SQLiteStore) PutAuction(a interfaces.Auction) error {
	_, err := s.db.Exec(
		`INSERT INTO auctions (id, equipment_id, manufacturer, active, best_bid_id) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET active = excluded.active, best_bid_id = excluded.best_bid_id`,
		a.ID, a.EquipmentID, a.Manufacturer.String(), boolToInt(a.Active), a.BestBidID)
	if err != nil {
		return fmt.Errorf("put auction: %w", err)
	}
	return nil
}

// PutBid inserts one immutable bid.
func (s *SQLiteStore) PutBid(auctionID uint64, b interfaces.Bid) error {
	_, err := s.db.Exec(
		`INSERT INTO bids (auction_id, bid_id, cab, amount, submitted_at) VALUES (?, ?, ?, ?, ?)`,
		auctionID, b.ID, b.CAB.String(), int64(b.Amount), toMillis(b.SubmittedAt))
	if err != nil {
		return fmt.Errorf("put bid: %w", err)
	}
	return nil
}

// PutTestResult upserts one accreditation record.
func (s *SQLiteStore) PutTestResult(tr interfaces.TestResult) error {
	_, err := s.db.Exec(
		`INSERT INTO test_results (equipment_id, cab, doc_hash, status, pending_update, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (equipment_id) DO UPDATE SET doc_hash = excluded.doc_hash, status = excluded.status,
			pending_update = excluded.pending_update`,
		tr.EquipmentID, tr.CAB.String(), string(tr.DocHash), uint8(tr.Status),
		string(tr.PendingUpdate), toMillis(tr.SubmittedAt))
	if err != nil {
		return fmt.Errorf("put test result: %w", err)
	}
	return nil
}

// PutCertification upserts one certification request. Audit entries are
// stored separately.
func (s *SQLiteStore) PutCertification(cr interfaces.CertificationRequest) error {
	_, err := s.db.Exec(
		`INSERT INTO certifications (equipment_id, manufacturer, cab, status, doc_hash, pending_update, revoked, requested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (equipment_id) DO UPDATE SET status = excluded.status, doc_hash = excluded.doc_hash,
			pending_update = excluded.pending_update, revoked = excluded.revoked`,
		cr.EquipmentID, cr.Manufacturer.String(), cr.CAB.String(), uint8(cr.Status),
		string(cr.DocHash), string(cr.PendingUpdate), boolToInt(cr.Revoked), toMillis(cr.RequestedAt))
	if err != nil {
		return fmt.Errorf("put certification: %w", err)
	}
	return nil
}

// AppendAuditEntry inserts one immutable audit entry.
func (s *SQLiteStore) AppendAuditEntry(equipmentID uint64, e interfaces.AuditEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_entries (equipment_id, seq, auditor, doc_hash, ts, chain_hash)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE equipment_id = ?), ?, ?, ?, ?)`,
		equipmentID, equipmentID, e.Auditor.String(), string(e.DocHash), toMillis(e.Timestamp), e.ChainHash)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// PutBalance upserts one settlement balance.
func (s *SQLiteStore) PutBalance(addr interfaces.Principal, balance interfaces.Currency) error {
	_, err := s.db.Exec(
		`INSERT INTO balances (addr, amount) VALUES (?, ?)
		 ON CONFLICT (addr) DO UPDATE SET amount = excluded.amount`,
		addr.String(), int64(balance))
	if err != nil {
		return fmt.Errorf("put balance: %w", err)
	}
	return nil
}

// Load reads the full persisted snapshot. Returns nil when every table is
// empty.
func (s *SQLiteStore) Load() (*Snapshot, error) {
	snap := &Snapshot{Balances: make(map[interfaces.Principal]interfaces.Currency)}
	empty := true

	if err := s.loadManufacturers(snap, &empty); err != nil {
		return nil, err
	}
	if err := s.loadCABs(snap, &empty); err != nil {
		return nil, err
	}
	if err := s.loadEquipment(snap, &empty); err != nil {
		return nil, err
	}
	if err := s.loadAuctions(snap, &empty); err != nil {
		return nil, err
	}
	if err := s.loadTestResults(snap, &empty); err != nil {
		return nil, err
	}
	if err := s.loadCertifications(snap, &empty); err != nil {
		return nil, err
	}
	if err := s.loadBalances(snap, &empty); err != nil {
		return nil, err
	}

	if empty {
		return nil, nil
	}
	return snap, nil
}

func (s *SQLiteStore) loadManufacturers(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(`SELECT addr FROM manufacturers ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("load manufacturers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(addr)
		if err != nil {
			return fmt.Errorf("corrupt manufacturer address %q: %w", addr, err)
		}
		snap.Manufacturers = append(snap.Manufacturers, p)
		*empty = false
	}
	return rows.Err()
}

func (s *SQLiteStore) loadCABs(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(`SELECT addr, name, details, accredited FROM cabs ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("load cabs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr, name, details string
		var accredited int
		if err := rows.Scan(&addr, &name, &details, &accredited); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(addr)
		if err != nil {
			return fmt.Errorf("corrupt cab address %q: %w", addr, err)
		}
		snap.CABs = append(snap.CABs, interfaces.CABInfo{
			Addr:       p,
			Name:       name,
			Details:    interfaces.ContentHash(details),
			Accredited: accredited != 0,
		})
		*empty = false
	}
	return rows.Err()
}

func (s *SQLiteStore) loadEquipment(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(`SELECT id, kind, manufacturer, doc_hash, registered_at FROM equipment ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load equipment: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uint64
		var kind uint8
		var manufacturer, docHash string
		var registeredAt int64
		if err := rows.Scan(&id, &kind, &manufacturer, &docHash, &registeredAt); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(manufacturer)
		if err != nil {
			return fmt.Errorf("corrupt equipment manufacturer %q: %w", manufacturer, err)
		}
		snap.Equipment = append(snap.Equipment, interfaces.Equipment{
			ID:           id,
			Kind:         interfaces.EquipmentKind(kind),
			Manufacturer: p,
			DocHash:      interfaces.ContentHash(docHash),
			RegisteredAt: fromMillis(registeredAt),
		})
		*empty = false
	}
	return rows.Err()
}

func (s *SQLiteStore) loadAuctions(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(`SELECT id, equipment_id, manufacturer, active, best_bid_id FROM auctions ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load auctions: %w", err)
	}
	defer rows.Close()

	var auctions []interfaces.Auction
	for rows.Next() {
		var a interfaces.Auction
		var manufacturer string
		var active int
		if err := rows.Scan(&a.ID, &a.EquipmentID, &manufacturer, &active, &a.BestBidID); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(manufacturer)
		if err != nil {
			return fmt.Errorf("corrupt auction manufacturer %q: %w", manufacturer, err)
		}
		a.Manufacturer = p
		a.Active = active != 0
		auctions = append(auctions, a)
		*empty = false
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range auctions {
		if err := s.loadBids(&auctions[i]); err != nil {
			return err
		}
	}
	snap.Auctions = auctions
	return nil
}

func (s *SQLiteStore) loadBids(a *interfaces.Auction) error {
	rows, err := s.db.Query(`SELECT bid_id, cab, amount, submitted_at FROM bids WHERE auction_id = ? ORDER BY bid_id`, a.ID)
	if err != nil {
		return fmt.Errorf("load bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b interfaces.Bid
		var cab string
		var amount, submittedAt int64
		if err := rows.Scan(&b.ID, &cab, &amount, &submittedAt); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(cab)
		if err != nil {
			return fmt.Errorf("corrupt bid cab %q: %w", cab, err)
		}
		b.CAB = p
		b.Amount = interfaces.Currency(amount)
		b.SubmittedAt = fromMillis(submittedAt)
		a.Bids = append(a.Bids, b)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadTestResults(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(`SELECT equipment_id, cab, doc_hash, status, pending_update, submitted_at FROM test_results ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("load test results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr interfaces.TestResult
		var cab, docHash, pending string
		var status uint8
		var submittedAt int64
		if err := rows.Scan(&tr.EquipmentID, &cab, &docHash, &status, &pending, &submittedAt); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(cab)
		if err != nil {
			return fmt.Errorf("corrupt test result cab %q: %w", cab, err)
		}
		tr.CAB = p
		tr.DocHash = interfaces.ContentHash(docHash)
		tr.Status = interfaces.Status(status)
		tr.PendingUpdate = interfaces.ContentHash(pending)
		tr.SubmittedAt = fromMillis(submittedAt)
		snap.TestResults = append(snap.TestResults, tr)
		*empty = false
	}
	return rows.Err()
}

func (s *SQLiteStore) loadCertifications(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(
		`SELECT equipment_id, manufacturer, cab, status, doc_hash, pending_update, revoked, requested_at
		 FROM certifications ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("load certifications: %w", err)
	}
	defer rows.Close()

	var requests []interfaces.CertificationRequest
	for rows.Next() {
		var cr interfaces.CertificationRequest
		var manufacturer, cab, docHash, pending string
		var status uint8
		var revoked int
		var requestedAt int64
		if err := rows.Scan(&cr.EquipmentID, &manufacturer, &cab, &status, &docHash, &pending, &revoked, &requestedAt); err != nil {
			return err
		}
		mp, err := interfaces.NewPrincipalFromHex(manufacturer)
		if err != nil {
			return fmt.Errorf("corrupt certification manufacturer %q: %w", manufacturer, err)
		}
		cp, err := interfaces.NewPrincipalFromHex(cab)
		if err != nil {
			return fmt.Errorf("corrupt certification cab %q: %w", cab, err)
		}
		cr.Manufacturer = mp
		cr.CAB = cp
		cr.Status = interfaces.Status(status)
		cr.DocHash = interfaces.ContentHash(docHash)
		cr.PendingUpdate = interfaces.ContentHash(pending)
		cr.Revoked = revoked != 0
		cr.RequestedAt = fromMillis(requestedAt)
		requests = append(requests, cr)
		*empty = false
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range requests {
		if err := s.loadAuditEntries(&requests[i]); err != nil {
			return err
		}
	}
	snap.Certifications = requests
	return nil
}

func (s *SQLiteStore) loadAuditEntries(cr *interfaces.CertificationRequest) error {
	rows, err := s.db.Query(
		`SELECT auditor, doc_hash, ts, chain_hash FROM audit_entries WHERE equipment_id = ? ORDER BY seq`,
		cr.EquipmentID)
	if err != nil {
		return fmt.Errorf("load audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e interfaces.AuditEntry
		var auditor, docHash string
		var ts int64
		if err := rows.Scan(&auditor, &docHash, &ts, &e.ChainHash); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(auditor)
		if err != nil {
			return fmt.Errorf("corrupt audit entry auditor %q: %w", auditor, err)
		}
		e.Auditor = p
		e.DocHash = interfaces.ContentHash(docHash)
		e.Timestamp = fromMillis(ts)
		cr.AuditLog = append(cr.AuditLog, e)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadBalances(snap *Snapshot, empty *bool) error {
	rows, err := s.db.Query(`SELECT addr, amount FROM balances`)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		var amount int64
		if err := rows.Scan(&addr, &amount); err != nil {
			return err
		}
		p, err := interfaces.NewPrincipalFromHex(addr)
		if err != nil {
			return fmt.Errorf("corrupt balance address %q: %w", addr, err)
		}
		snap.Balances[p] = interfaces.Currency(amount)
		*empty = false
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
