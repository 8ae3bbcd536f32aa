package segmentation

import (
	"math"
	"math/rand/v2"
)

// KMeans is a seeded k-means++ / Lloyd clusterer. Identical inputs and
// settings always produce identical labels.
type KMeans struct {
	K             int
	Seed          uint64
	Restarts      int
	MaxIterations int
}

// Clustering is the best fit found across restarts.
type Clustering struct {
	Labels    []int       // cluster index per point
	Centroids [][]float64 // K rows
	Inertia   float64     // sum of squared distances to assigned centroids
}

// Fit clusters points. K must be in [1, len(points)].
func (km KMeans) Fit(points [][]float64) Clustering {
	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))

	restarts := km.Restarts
	if restarts < 1 {
		restarts = 1
	}
	var best Clustering
	for run := 0; run < restarts; run++ {
		c := km.lloyd(points, km.seedCentroids(points, rng))
		if run == 0 || c.Inertia < best.Inertia {
			best = c
		}
	}
	return best
}

// seedCentroids picks K starting centroids with k-means++: the first uniformly,
// each next one with probability proportional to its squared distance from
// the nearest centroid already chosen.
func (km KMeans) seedCentroids(points [][]float64, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, km.K)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < km.K {
		var total float64
		for _, d := range dist {
			total += d
		}

		next := rng.IntN(len(points))
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

func (km KMeans) lloyd(points, centroids [][]float64) Clustering {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	dims := len(points[0])

	maxIter := km.MaxIterations
	if maxIter < 1 {
		maxIter = 100
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			if l := nearest(p, centroids); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for j := range sums {
			sums[j] = make([]float64, dims)
		}
		for i, p := range points {
			counts[labels[i]]++
			for d, v := range p {
				sums[labels[i]][d] += v
			}
		}
		for j := range centroids {
			// an emptied cluster keeps its previous centroid
			if counts[j] == 0 {
				continue
			}
			for d := range sums[j] {
				centroids[j][d] = sums[j][d] / float64(counts[j])
			}
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return Clustering{Labels: labels, Centroids: centroids, Inertia: inertia}
}

// nearest returns the closest centroid; ties go to the lowest index.
func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for j, c := range centroids {
		if d := sqDist(p, c); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
