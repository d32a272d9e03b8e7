package allocation

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Segmenter partitions feature rows into regimes with k-means (k-means++ seeding,
// Lloyd iterations, Euclidean distance).
type Segmenter struct {
	k             int
	maxIterations int
	seed          uint64
}

// NewSegmenter creates a segmenter. The seed makes the k-means++ draw reproducible;
// a non-positive maxIterations uses DefaultMaxIterations.
func NewSegmenter(k, maxIterations int, seed uint64) *Segmenter {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Segmenter{k: k, maxIterations: maxIterations, seed: seed}
}

// Segment clusters the rows of x.
//
// Iteration stops as soon as a round leaves every assignment unchanged, or after
// maxIterations assignment rounds. Identical rows yield a single-cluster assignment
// instead of an error.
func (s *Segmenter) Segment(x *mat.Dense) (*ClusterAssignment, error) {
	if x == nil {
		return nil, invalidf("feature matrix is nil")
	}
	rows, _ := x.Dims()
	if s.k <= 0 {
		return nil, invalidf("cluster count must be positive, got %d", s.k)
	}
	if s.k > rows {
		return nil, fmt.Errorf("%w: k=%d exceeds %d samples", ErrClustering, s.k, rows)
	}

	if identicalRows(x) {
		return &ClusterAssignment{
			Labels:     make([]int, rows),
			Centroids:  [][]float64{append([]float64(nil), x.RawRowView(0)...)},
			K:          1,
			Converged:  true,
			Degenerate: true,
		}, nil
	}

	centroids := s.seedCentroids(x)
	labels := assign(x, centroids)
	iterations := 1
	converged := false
	for iterations < s.maxIterations {
		centroids = updateCentroids(x, labels, centroids)
		next := assign(x, centroids)
		iterations++
		if equalLabels(next, labels) {
			converged = true
			break
		}
		labels = next
	}

	return &ClusterAssignment{
		Labels:     labels,
		Centroids:  updateCentroids(x, labels, centroids),
		K:          s.k,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

// Reassign runs one more Lloyd step (centroid update, then assignment) on a finished
// assignment and returns the resulting labels.
func Reassign(x *mat.Dense, a *ClusterAssignment) []int {
	return assign(x, updateCentroids(x, a.Labels, a.Centroids))
}

// seedCentroids picks k initial centroids with k-means++: the first uniformly, each
// next one with probability proportional to its squared distance from the nearest
// centroid already chosen.
func (s *Segmenter) seedCentroids(x *mat.Dense) [][]float64 {
	rows, _ := x.Dims()
	rng := rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))

	chosen := make(map[int]bool, s.k)
	pick := func(i int) []float64 {
		chosen[i] = true
		return append([]float64(nil), x.RawRowView(i)...)
	}

	centroids := make([][]float64, 0, s.k)
	centroids = append(centroids, pick(rng.IntN(rows)))

	d2 := make([]float64, rows)
	for len(centroids) < s.k {
		total := 0.0
		for i := 0; i < rows; i++ {
			_, d := nearest(x.RawRowView(i), centroids)
			d2[i] = d * d
			total += d2[i]
		}

		next := -1
		if total == 0 {
			// Fewer distinct points than k: duplicate a centroid, the extra cluster stays empty.
			for i := 0; i < rows; i++ {
				if !chosen[i] {
					next = i
					break
				}
			}
		} else {
			r := rng.Float64() * total
			for i, d := range d2 {
				if d == 0 {
					continue
				}
				next = i
				r -= d
				if r < 0 {
					break
				}
			}
		}
		centroids = append(centroids, pick(next))
	}
	return centroids
}

// assign maps each row to its nearest centroid.
func assign(x *mat.Dense, centroids [][]float64) []int {
	rows, _ := x.Dims()
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i], _ = nearest(x.RawRowView(i), centroids)
	}
	return labels
}

// nearest returns the closest centroid and its distance. Equidistant centroids resolve
// to the lower index.
func nearest(row []float64, centroids [][]float64) (int, float64) {
	best := 0
	bestD := floats.Distance(row, centroids[0], 2)
	for c := 1; c < len(centroids); c++ {
		if d := floats.Distance(row, centroids[c], 2); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

// updateCentroids recomputes each centroid as the mean of its members. An empty
// cluster keeps its previous centroid.
func updateCentroids(x *mat.Dense, labels []int, prev [][]float64) [][]float64 {
	_, cols := x.Dims()
	k := len(prev)
	sums := mat.NewDense(k, cols, nil)
	counts := make([]int, k)
	for i, l := range labels {
		floats.Add(sums.RawRowView(l), x.RawRowView(i))
		counts[l]++
	}

	out := make([][]float64, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			out[c] = append([]float64(nil), prev[c]...)
			continue
		}
		out[c] = append([]float64(nil), sums.RawRowView(c)...)
		floats.Scale(1/float64(counts[c]), out[c])
	}
	return out
}

func identicalRows(x *mat.Dense) bool {
	rows, _ := x.Dims()
	first := x.RawRowView(0)
	for i := 1; i < rows; i++ {
		if !floats.Equal(first, x.RawRowView(i)) {
			return false
		}
	}
	return true
}

func equalLabels(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RegimeSignal gives every day the mean return of the cluster it belongs to.
func RegimeSignal(a *ClusterAssignment, returns []float64) ([]float64, error) {
	if a == nil {
		return nil, invalidf("cluster assignment is nil")
	}
	if len(a.Labels) != len(returns) {
		return nil, invalidf("cluster labels cover %d days, returns %d", len(a.Labels), len(returns))
	}

	means := make([]float64, a.K)
	members := make([]float64, len(returns))
	for c, size := range a.Sizes() {
		if size == 0 {
			continue
		}
		for i, l := range a.Labels {
			members[i] = 0
			if l == c {
				members[i] = 1
			}
		}
		means[c] = stat.Mean(returns, members)
	}

	signal := make([]float64, len(returns))
	for i, l := range a.Labels {
		signal[i] = means[l]
	}
	return signal, nil
}
