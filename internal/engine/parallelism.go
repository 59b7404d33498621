package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// ParseParallelism converts the parallelism option to a worker count.
//
//	""/"max" -> numCPU
//	"N"      -> N
//	"NN%"    -> floor(numCPU * NN / 100)
//
// The result is never below 1.
func ParseParallelism(value string, numCPU int) (int, error) {
	if numCPU < 1 {
		numCPU = 1
	}
	v := strings.TrimSpace(strings.ToLower(value))

	switch {
	case v == "" || v == "max":
		return numCPU, nil

	case strings.HasSuffix(v, "%"):
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, "%")), 64)
		if err != nil || pct <= 0 || pct > 100 {
			return 0, fmt.Errorf("%w: parallelism %q must be a percentage in (0, 100]", errors.ErrInvalidInput, value)
		}
		return max(1, int(float64(numCPU)*pct/100)), nil

	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%w: parallelism %q must be \"max\", a positive integer, or a percentage", errors.ErrInvalidInput, value)
		}
		return n, nil
	}
}
