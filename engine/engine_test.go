package engine

import "testing"

// TestOpenInMemory verifies that we can open an in-memory SQLite database
// using the modernc.org/sqlite driver and that separate statements share it.
func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t(x INTEGER)"); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO t(x) VALUES (1),(2),(3)"); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("SELECT failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestIsMemory(t *testing.T) {
	cases := map[string]bool{
		":memory:":                   true,
		"file::memory:?cache=shared": true,
		"file:test.db?mode=memory":   true,
		"./data.sqlite":              false,
		"/tmp/x.db":                  false,
	}
	for dsn, want := range cases {
		if got := IsMemory(dsn); got != want {
			t.Errorf("IsMemory(%q) = %v, want %v", dsn, got, want)
		}
	}
}
