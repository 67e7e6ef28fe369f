package calculator

import (
	"context"
	"fmt"
	"time"
)

// RegisterSamples wires up the calculators named by spec.md's end-to-end
// scenarios (§8 S1, S3): "calc1 (double each integer)" and
// "calc1_with_sleep". Both must be idempotent — the spec's non-goal of
// exactly-once computation means a retried chunk may recompute them.
func RegisterSamples(r *Registry) {
	r.Register("calc1", calc1)
	r.Register("calc1_with_sleep", calc1WithSleep)
	r.Register("matrix_block_multiply", matrixBlockMultiply)
}

func calc1(ctx context.Context, input any) (any, error) {
	n, ok := asInt(input)
	if !ok {
		return nil, fmt.Errorf("calc1: expected integer input, got %T", input)
	}
	return n * 2, nil
}

func calc1WithSleep(ctx context.Context, input any) (any, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return calc1(ctx, input)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// matrixBlockMultiply adapts pkg/compute/manager.go's
// executeMatrixBlockMultiply from the teacher: a heavier, still-idempotent
// sample calculator operating on a pair of row-major float64 matrices
// packaged as [][]float64 pairs, returning their product.
func matrixBlockMultiply(ctx context.Context, input any) (any, error) {
	pair, ok := input.([2][][]float64)
	if !ok {
		return nil, fmt.Errorf("matrix_block_multiply: expected [2][][]float64 input, got %T", input)
	}
	a, b := pair[0], pair[1]
	if len(a) == 0 || len(b) == 0 {
		return nil, fmt.Errorf("matrix_block_multiply: empty operand")
	}
	if len(a[0]) != len(b) {
		return nil, fmt.Errorf("matrix_block_multiply: incompatible dimensions %dx%d * %dx%d", len(a), len(a[0]), len(b), len(b[0]))
	}

	rows, cols, inner := len(a), len(b[0]), len(b)
	c := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		c[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			var sum float64
			for k := 0; k < inner; k++ {
				sum += a[i][k] * b[k][j]
			}
			c[i][j] = sum
		}
	}
	return c, nil
}
