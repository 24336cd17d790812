package engine

import (
	"math"
	"testing"

	"github.com/viant/simsearch/similarity"
)

func mustEncode(t *testing.T, v similarity.Vector) []byte {
	t.Helper()
	b, err := v.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	return b
}

func TestRegisterVectorFunctionsAndUse(t *testing.T) {
	// Register globally before first connection so functions are available.
	if err := RegisterVectorFunctions(nil); err != nil {
		t.Fatalf("RegisterVectorFunctions failed: %v", err)
	}
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	if err := RegisterVectorFunctions(db); err != nil {
		t.Fatalf("RegisterVectorFunctions (second call) failed: %v", err)
	}

	aBlob := mustEncode(t, similarity.Dense([]float32{1, 0}))
	bBlob := mustEncode(t, similarity.Dense([]float32{0, 1}))
	cBlob := mustEncode(t, similarity.Dense([]float32{1, 0}))
	zeroBlob := mustEncode(t, similarity.Dense([]float32{0, 0}))
	threeFourBlob := mustEncode(t, similarity.Dense([]float32{3, 4}))

	// vec_cosine orthogonal -> 0
	var sim float64
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, bBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(a,b) query failed: %v", err)
	}
	if sim != 0 {
		t.Fatalf("vec_cosine(a,b) = %v, want 0", sim)
	}

	// vec_cosine identical -> 1
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, cBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(a,c) query failed: %v", err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Fatalf("vec_cosine(a,c) = %v, want 1", sim)
	}

	// zero vector -> 0 rather than an error
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, zeroBlob, threeFourBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(zero,threeFour) query failed: %v", err)
	}
	if sim != 0 {
		t.Fatalf("vec_cosine(zero,threeFour) = %v, want 0", sim)
	}

	// vec_l2 between (0,0) and (3,4) -> 5
	var dist float64
	if err := db.QueryRow(`SELECT vec_l2(?, ?)`, zeroBlob, threeFourBlob).Scan(&dist); err != nil {
		t.Fatalf("vec_l2 query failed: %v", err)
	}
	if math.Abs(dist-5) > 1e-6 {
		t.Fatalf("vec_l2 = %v, want 5", dist)
	}

	// mismatched dimensions surface as a query error
	longBlob := mustEncode(t, similarity.Dense([]float32{1, 0, 0}))
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, longBlob).Scan(&sim); err == nil {
		t.Fatalf("expected dim mismatch error from vec_cosine")
	}
}
