package lightfield

import (
	"fmt"

	"github.com/gogpu/lightfield/compute"
)

// Projector is the projection contract consumed by camera models and
// reconstruction solvers. BackAngle is the adjoint of ForwAngle.
type Projector interface {
	// Na returns the number of angular samples.
	Na() int

	// ForwAngle projects object onto view through angle ia.
	ForwAngle(object compute.Readable, view *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error)

	// BackAngle backprojects view onto object through angle ia.
	BackAngle(view compute.Readable, object *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error)
}

// ForwSubset runs ForwAngle for every index in angles, each call waiting for
// the previous one. Accumulating the angles into view requires a projector
// built without overwrite.
//
// An empty angles list returns an event that completes with waitFor.
func ForwSubset(p Projector, object compute.Readable, view *compute.Buffer, angles []int, waitFor []*compute.Event) (*compute.Event, error) {
	return fold(p, angles, waitFor, "forw subset", func(ia int, deps []*compute.Event) (*compute.Event, error) {
		return p.ForwAngle(object, view, ia, deps)
	})
}

// BackSubset runs BackAngle for every index in angles, each call waiting for
// the previous one.
func BackSubset(p Projector, view compute.Readable, object *compute.Buffer, angles []int, waitFor []*compute.Event) (*compute.Event, error) {
	return fold(p, angles, waitFor, "back subset", func(ia int, deps []*compute.Event) (*compute.Event, error) {
		return p.BackAngle(view, object, ia, deps)
	})
}

// Forw runs ForwSubset over every angle.
func Forw(p Projector, object compute.Readable, view *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	return ForwSubset(p, object, view, AllAngles(p), waitFor)
}

// Back runs BackSubset over every angle.
func Back(p Projector, view compute.Readable, object *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	return BackSubset(p, view, object, AllAngles(p), waitFor)
}

// AllAngles returns 0..p.Na()-1.
func AllAngles(p Projector) []int {
	angles := make([]int, p.Na())
	for i := range angles {
		angles[i] = i
	}
	return angles
}

func fold(p Projector, angles []int, waitFor []*compute.Event, label string,
	step func(ia int, deps []*compute.Event) (*compute.Event, error),
) (*compute.Event, error) {
	for _, ia := range angles {
		if ia < 0 || ia >= p.Na() {
			return nil, fmt.Errorf("lightfield: %s: %w: %d not in [0, %d)", label, ErrAngleOutOfRange, ia, p.Na())
		}
	}
	if len(angles) == 0 {
		return compute.Join(label, waitFor), nil
	}
	deps := waitFor
	var last *compute.Event
	for _, ia := range angles {
		ev, err := step(ia, deps)
		if err != nil {
			return nil, err
		}
		last = ev
		deps = compute.Deps(ev)
	}
	return last, nil
}
