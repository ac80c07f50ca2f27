package trainer

import (
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit partitions row indices 0..n-1. The test partition holds
// ceil(testSize*n) rows taken from a permutation seeded with seed, so the
// same n, testSize and seed always yield the same partitions.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if n < 2 || nTest >= n {
		return nil, nil, fmt.Errorf("cannot split %d rows with test size %v", n, testSize)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}
