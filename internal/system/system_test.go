package system

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"netglobe/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	bcryptCost = bcrypt.MinCost
	db, err := InitDB(filepath.Join(t.TempDir(), "netglobe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitDBIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "netglobe.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	defer db.Close()

	v, err := GetIgnoreListVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestNormalizeIgnorePattern(t *testing.T) {
	tests := []struct {
		in      string
		pattern string
		typ     IgnoreType
		wantErr bool
	}{
		{in: " 8.8.8.8 ", pattern: "8.8.8.8", typ: IgnoreIP},
		{in: "::ffff:1.2.3.4", pattern: "1.2.3.4", typ: IgnoreIP},
		{in: "[2001:db8::1]", pattern: "2001:db8::1", typ: IgnoreIP},
		{in: "10.1.2.3/8", pattern: "10.0.0.0/8", typ: IgnoreCIDR},
		{in: "2606:4700::/32", pattern: "2606:4700::/32", typ: IgnoreCIDR},
		{in: "", wantErr: true},
		{in: "example.com", wantErr: true},
		{in: "1.2.3.4/40", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, typ, err := NormalizeIgnorePattern(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pattern, p)
			assert.Equal(t, tt.typ, typ)
		})
	}
}

func TestIgnoreListLifecycle(t *testing.T) {
	db := testDB(t)

	v0, err := GetIgnoreListVersion(db)
	require.NoError(t, err)

	rule, err := IgnoreDestination(db, "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, IgnoreIP, rule.Type)
	_, err = IgnoreDestination(db, "142.250.0.0/15")
	require.NoError(t, err)

	v1, err := GetIgnoreListVersion(db)
	require.NoError(t, err)
	assert.Equal(t, v0+2, v1)

	set, err := IgnoreStore{DB: db}.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	hit, ok := set.Match("142.251.33.14")
	assert.True(t, ok)
	assert.Equal(t, "142.250.0.0/15", hit)
	_, ok = set.Match("1.1.1.1")
	assert.True(t, ok)
	_, ok = set.Match("8.8.8.8")
	assert.False(t, ok)

	require.NoError(t, UnignoreDestination(db, "1.1.1.1"))
	set, err = LoadIgnoreSet(db)
	require.NoError(t, err)
	_, ok = set.Match("1.1.1.1")
	assert.False(t, ok)

	rules, err := ListIgnoreList(db)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.NoError(t, DeleteIgnoreRule(db, "1.1.1.1"))
	assert.ErrorIs(t, DeleteIgnoreRule(db, "1.1.1.1"), ErrIgnoreRuleMissing)
	assert.ErrorIs(t, UnignoreDestination(db, "9.9.9.9"), ErrIgnoreRuleMissing)
}

func TestAdminPassword(t *testing.T) {
	db := testDB(t)

	ok, err := AdminPasswordConfigured(db)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, VerifyAdminCredentials(db, "whatever1"), ErrAdminNotSet)

	current := "first-password"
	assert.ErrorIs(t, SetOrRotateAdminPassword(db, &current, "second-password"), ErrAdminNotSet)
	assert.Error(t, SetOrRotateAdminPassword(db, nil, "short"))

	require.NoError(t, SetOrRotateAdminPassword(db, nil, "first-password"))
	assert.ErrorIs(t, SetOrRotateAdminPassword(db, nil, "other-password"), ErrAdminAlreadySet)
	require.NoError(t, VerifyAdminCredentials(db, "first-password"))

	wrong := "not-the-password"
	assert.ErrorIs(t, SetOrRotateAdminPassword(db, &wrong, "second-password"), ErrBadCredential)
	require.NoError(t, SetOrRotateAdminPassword(db, &current, "second-password"))

	assert.ErrorIs(t, VerifyAdminCredentials(db, "first-password"), ErrBadCredential)
	assert.NoError(t, VerifyAdminCredentials(db, "second-password"))
}

func TestHistory(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for i, proc := range []string{"curl", "firefox", "slack"} {
		require.NoError(t, InsertHistory(db, models.EnrichedEvent{
			Process:    proc,
			Category:   "other",
			SourceAddr: "192.168.1.10",
			SourcePort: 50000 + i,
			DestAddr:   "1.2.3.4",
			DestPort:   443,
			Location:   models.Location{Status: models.StatusSuccess, City: "Paris", Lat: 48.85, Lon: 2.35},
			CapturedAt: base.Add(time.Duration(i) * time.Minute),
			ResolvedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	got, err := RecentHistory(db, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "slack", got[0].Process)
	assert.Equal(t, "firefox", got[1].Process)
	assert.Equal(t, "Paris", got[0].Location.City)
	assert.Equal(t, base.Add(2*time.Minute), got[0].CapturedAt)

	n, err := PruneHistory(db, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err = RecentHistory(db, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
