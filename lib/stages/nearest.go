package stages

import (
	"context"
	"sync/atomic"

	"github.com/phil-mansfield/nbpipe/lib/collection"
	"github.com/phil-mansfield/nbpipe/lib/neighbor"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/property"
	"github.com/phil-mansfield/nbpipe/lib/thread"
)

// NearestDistanceProperty is the name of the user property written by
// NearestDistance.
const NearestDistanceProperty = "NearestDistance"

// NearestDistance stores the mean distance from every particle to its n
// nearest neighbors.
type NearestDistance struct {
	pipeline.Params
	n int
}

var _ pipeline.Stage = &NearestDistance{ }

func NewNearestDistance(n int) *NearestDistance {
	s := &NearestDistance{ n: n }
	s.Touch()
	return s
}

func (s *NearestDistance) Name() string { return "nearest_distance" }
func (s *NearestDistance) N() int { return s.n }

func (s *NearestDistance) SetN(n int) {
	s.n = n
	s.Touch()
}

func (s *NearestDistance) Apply(
	ctx context.Context, t pipeline.Time, in *collection.Collection,
) (*collection.Collection, pipeline.Status) {
	f, err := neighbor.NewNearestFinderFrom(ctx, s.n, in)
	if err != nil { return in, fail(err) }

	n := f.ParticleCount()
	dist, err := property.NewUser(NearestDistanceProperty,
		property.ParticleClass, property.Float, n, 1)
	if err != nil { return in, fail(err) }

	short := int32(0)
	err = dist.Modify(func(m *property.Mutation) error {
		out := m.Float64s()
		return thread.ParallelFor(ctx, n, 0, 0, func(start, end int) error {
			for i := start; i < end; i++ {
				q, err := f.Find(i)
				if err != nil { return err }
				if q.Len() < s.n { atomic.AddInt32(&short, 1) }
				if q.Len() == 0 { continue }

				sum := 0.0
				for q.Next() { sum += q.Current().Distance() }
				out[i] = sum / float64(q.Len())
			}
			return nil
		})
	})
	if err != nil { return in, fail(err) }

	if err := in.AddProperty(dist); err != nil { return in, fail(err) }
	if short > 0 {
		return in, pipeline.Warn("%d particles have fewer than %d neighbors.",
			short, s.n)
	}
	return in, pipeline.OK()
}
