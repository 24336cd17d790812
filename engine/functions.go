package engine

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/viant/simsearch/similarity"
	"github.com/viant/vec/search"
	sqlite "modernc.org/sqlite"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterVectorFunctions registers vec_cosine and vec_l2 with the driver so
// they are available on new connections opened after this call.
// Note: existing open connections will not see new functions.
func RegisterVectorFunctions(_ *sql.DB) error {
	registerOnce.Do(func() {
		if registerErr = sqlite.RegisterDeterministicScalarFunction("vec_cosine", 2, vecCosineImpl); registerErr != nil {
			return
		}
		registerErr = sqlite.RegisterDeterministicScalarFunction("vec_l2", 2, vecL2Impl)
	})
	return registerErr
}

func asVector(arg driver.Value) (*similarity.Vector, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		vec := &similarity.Vector{}
		if err := vec.UnmarshalBinary(v); err != nil {
			return nil, err
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("engine: unsupported argument type %T for vector; want BLOB", arg)
	}
}

func vectorArgs(name string, args []driver.Value) (*similarity.Vector, *similarity.Vector, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
	}
	a, err := asVector(args[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := asVector(args[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func vecCosineImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := vectorArgs("vec_cosine", args)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	sim, err := similarity.Cosine(*a, *b)
	if err != nil {
		return nil, err
	}
	return sim, nil
}

func vecL2Impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := vectorArgs("vec_l2", args)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	if a.Dim != b.Dim {
		return nil, fmt.Errorf("vec_l2: dim mismatch %d vs %d", a.Dim, b.Dim)
	}
	d := search.Float32s(a.ToDense()).EuclideanDistance(b.ToDense())
	return float64(d), nil
}
