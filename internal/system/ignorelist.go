package system

import (
	"database/sql"
	"fmt"
	"net/netip"
	"strings"
)

type IgnoreType string

const (
	IgnoreIP   IgnoreType = "ip"
	IgnoreCIDR IgnoreType = "cidr"
)

// IgnoreRule is a destination the pipeline should never report.
type IgnoreRule struct {
	Pattern string     `json:"pattern"`
	Type    IgnoreType `json:"type"`
	Enabled bool       `json:"enabled"`
}

// ---------- versioning ----------

func GetIgnoreListVersion(db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRow(`SELECT version FROM ignorelist_meta WHERE id = 1`).Scan(&v)
	return v, err
}

func BumpIgnoreListVersion(db *sql.DB) error {
	_, err := db.Exec(`UPDATE ignorelist_meta SET version = version + 1 WHERE id = 1`)
	return err
}

// ---------- normalization ----------

// NormalizeIgnorePattern canonicalizes an address or prefix. A prefix is
// masked to its network address.
func NormalizeIgnorePattern(input string) (string, IgnoreType, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return "", "", ErrEmptyPattern
	}

	if addr, err := netip.ParseAddr(strings.Trim(in, "[]")); err == nil {
		return addr.WithZone("").Unmap().String(), IgnoreIP, nil
	}

	if strings.Contains(in, "/") {
		p, err := netip.ParsePrefix(in)
		if err != nil {
			return "", "", fmt.Errorf("invalid cidr %q: %w", in, err)
		}
		if p.Addr().Is4In6() {
			bits := p.Bits() - 96
			if bits < 0 {
				return "", "", fmt.Errorf("invalid cidr %q", in)
			}
			p = netip.PrefixFrom(p.Addr().Unmap(), bits)
		}
		return p.Masked().String(), IgnoreCIDR, nil
	}

	return "", "", fmt.Errorf("not an ip or cidr: %q", in)
}

// ---------- CRUD ----------

// IgnoreDestination enables (or inserts) an ignore rule.
func IgnoreDestination(db *sql.DB, input string) (IgnoreRule, error) {
	pattern, typ, err := NormalizeIgnorePattern(input)
	if err != nil {
		return IgnoreRule{}, err
	}

	_, err = db.Exec(`
		INSERT INTO ignorelist (pattern, type, enabled)
		VALUES (?, ?, 1)
		ON CONFLICT(pattern) DO UPDATE SET enabled = 1, type = excluded.type
	`, pattern, string(typ))
	if err != nil {
		return IgnoreRule{}, err
	}

	return IgnoreRule{Pattern: pattern, Type: typ, Enabled: true}, BumpIgnoreListVersion(db)
}

// UnignoreDestination disables a rule (soft remove).
func UnignoreDestination(db *sql.DB, input string) error {
	pattern, _, err := NormalizeIgnorePattern(input)
	if err != nil {
		return err
	}

	res, err := db.Exec(`UPDATE ignorelist SET enabled = 0 WHERE pattern = ?`, pattern)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrIgnoreRuleMissing, pattern)
	}

	return BumpIgnoreListVersion(db)
}

// DeleteIgnoreRule hard-deletes a rule.
func DeleteIgnoreRule(db *sql.DB, input string) error {
	pattern, _, err := NormalizeIgnorePattern(input)
	if err != nil {
		return err
	}

	res, err := db.Exec(`DELETE FROM ignorelist WHERE pattern = ?`, pattern)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrIgnoreRuleMissing, pattern)
	}

	return BumpIgnoreListVersion(db)
}

func ListIgnoreList(db *sql.DB) ([]IgnoreRule, error) {
	rows, err := db.Query(`SELECT pattern, type, enabled FROM ignorelist ORDER BY type, pattern`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IgnoreRule
	for rows.Next() {
		var r IgnoreRule
		var enabled int
		var typ string
		if err := rows.Scan(&r.Pattern, &typ, &enabled); err != nil {
			return nil, err
		}
		r.Type = IgnoreType(typ)
		r.Enabled = enabled == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// IgnoreSet is the pre-parsed set of enabled rules.
type IgnoreSet struct {
	prefixes []netip.Prefix
}

func NewIgnoreSet(prefixes ...netip.Prefix) *IgnoreSet {
	return &IgnoreSet{prefixes: prefixes}
}

func (s *IgnoreSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.prefixes)
}

// Match returns the rule covering address, if any.
func (s *IgnoreSet) Match(address string) (string, bool) {
	if s == nil || len(s.prefixes) == 0 {
		return "", false
	}
	addr, err := netip.ParseAddr(strings.Trim(address, "[]"))
	if err != nil {
		return "", false
	}
	addr = addr.WithZone("").Unmap()
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return p.String(), true
		}
	}
	return "", false
}

// LoadIgnoreSet loads and pre-parses the enabled rules.
func LoadIgnoreSet(db *sql.DB) (*IgnoreSet, error) {
	rows, err := db.Query(`SELECT pattern, type FROM ignorelist WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := &IgnoreSet{}
	for rows.Next() {
		var p, typ string
		if err := rows.Scan(&p, &typ); err != nil {
			return nil, err
		}

		switch IgnoreType(typ) {
		case IgnoreIP:
			addr, err := netip.ParseAddr(p)
			if err != nil {
				return nil, fmt.Errorf("invalid ignore ip in db: %q", p)
			}
			set.prefixes = append(set.prefixes, netip.PrefixFrom(addr, addr.BitLen()))

		case IgnoreCIDR:
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("invalid ignore cidr in db: %q: %w", p, err)
			}
			set.prefixes = append(set.prefixes, prefix)

		default:
			return nil, fmt.Errorf("unknown ignore type in db: %q", typ)
		}
	}

	return set, rows.Err()
}

// IgnoreStore adapts the ignorelist tables for pollers.
type IgnoreStore struct {
	DB *sql.DB
}

func (s IgnoreStore) Version() (int64, error)  { return GetIgnoreListVersion(s.DB) }
func (s IgnoreStore) Load() (*IgnoreSet, error) { return LoadIgnoreSet(s.DB) }
