package db

import (
	"errors"
	"strings"
	"testing"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"sqlite:///data/store.db", ModeEmbedded},
		{"sqlite:////var/lib/ledger.db", ModeEmbedded},
		{"sqlite://", ModeEmbedded},
		{"file:shop.db?cache=shared", ModeEmbedded},
		{":memory:", ModeEmbedded},
		{"postgres://u:p@localhost/ledger", ModeServer},
		{"postgresql://u:p@localhost:5432/ledger", ModeServer},
		{"postgresql+asyncpg://u:p@localhost/ledger", ModeServer},
		{"host=localhost user=u dbname=ledger", ModeServer},
		{"  'sqlite:///quoted.db'  ", ModeEmbedded},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := DetectMode(tt.in)
			if err != nil {
				t.Fatalf("DetectMode(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("DetectMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectModeUnsupported(t *testing.T) {
	for _, in := range []string{"", "mysql://root@localhost/shop", "redis://cache"} {
		_, err := DetectMode(in)
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Fatalf("DetectMode(%q) err = %v, want ErrUnsupportedScheme", in, err)
		}
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"url adds timezone", "postgres://u:p@db:5432/ledger?sslmode=disable", "postgres://u:p@db:5432/ledger?sslmode=disable&timezone=UTC"},
		{"url keeps timezone", "postgres://u:p@db/ledger?TimeZone=Asia%2FShanghai", "postgres://u:p@db/ledger?TimeZone=Asia%2FShanghai"},
		{"driver suffix dropped", "postgresql+asyncpg://u:p@db/ledger", "postgresql://u:p@db/ledger?timezone=UTC"},
		{"kv defaults", "host=db  user=u dbname=ledger", "host=db user=u dbname=ledger sslmode=disable TimeZone=UTC"},
		{"kv keeps sslmode", "host=db user=u dbname=ledger sslmode=require", "host=db user=u dbname=ledger sslmode=require TimeZone=UTC"},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDSN(tt.in); got != tt.want {
				t.Fatalf("NormalizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToURLDSN(t *testing.T) {
	got := ToURLDSN("host=db port=5433 user=u password=p dbname=ledger sslmode=disable TimeZone=UTC")
	want := "postgres://u:p@db:5433/ledger?sslmode=disable&timezone=UTC"
	if got != want {
		t.Fatalf("ToURLDSN = %q, want %q", got, want)
	}
	if got := ToURLDSN("host=db"); got != "host=db" {
		t.Fatalf("incomplete kv should pass through, got %q", got)
	}
	if got := ToURLDSN("postgres://u@db/x"); got != "postgres://u@db/x" {
		t.Fatalf("url should pass through, got %q", got)
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("postgres://u:secret@db/ledger"); strings.Contains(got, "secret") {
		t.Fatalf("password leaked: %q", got)
	}
	if got := Redact("host=db password=secret dbname=x"); got != "host=db password=*** dbname=x" {
		t.Fatalf("unexpected kv redaction %q", got)
	}
	if got := Redact("sqlite:///data/store.db"); got != "sqlite:///data/store.db" {
		t.Fatalf("sqlite url should be unchanged, got %q", got)
	}
}

func TestSqliteDSN(t *testing.T) {
	rel := sqliteDSN("sqlite:///data/store.db")
	if rel.path != "data/store.db" || rel.memory {
		t.Fatalf("unexpected relative target %+v", rel)
	}
	if !strings.HasPrefix(rel.dsn, "file:data/store.db?") || !strings.Contains(rel.dsn, "_journal_mode=WAL") || !strings.Contains(rel.dsn, "_foreign_keys=1") {
		t.Fatalf("unexpected dsn %q", rel.dsn)
	}

	abs := sqliteDSN("sqlite:////var/lib/ledger.db")
	if abs.path != "/var/lib/ledger.db" {
		t.Fatalf("unexpected absolute path %q", abs.path)
	}

	a, b := sqliteDSN(":memory:"), sqliteDSN("sqlite://")
	if !a.memory || !b.memory || a.path != "" {
		t.Fatalf("expected memory targets: %+v %+v", a, b)
	}
	if a.dsn == b.dsn {
		t.Fatal("each in-memory url must get its own database")
	}
	if strings.Contains(a.dsn, "_journal_mode") {
		t.Fatalf("memory databases do not use WAL: %q", a.dsn)
	}

	named := sqliteDSN("file:TestShop?mode=memory&cache=shared&_foreign_keys=0")
	if !named.memory || !strings.HasPrefix(named.dsn, "file:TestShop?") || !strings.Contains(named.dsn, "_foreign_keys=0") {
		t.Fatalf("explicit options must be kept: %+v", named)
	}
}
