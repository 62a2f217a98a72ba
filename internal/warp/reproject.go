package warp

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// rotationMatrix returns the 4x4 homogeneous rotation for unit quaternion q.
func rotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(4, 4, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y), 0,
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x), 0,
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y), 0,
		0, 0, 0, 1,
	})
}

// deltaRotation is the rotation from the view the frame was rendered for to
// the view that will be displayed.
func deltaRotation(rendered, predicted quat.Number) quat.Number {
	return quat.Mul(quat.Conj(predicted), rendered)
}

// reprojection composes an eye's texture matrix with the delta rotation.
func reprojection(texMatrix [16]float64, delta quat.Number) [16]float64 {
	var out mat.Dense
	out.Mul(mat.NewDense(4, 4, texMatrix[:]), rotationMatrix(delta))
	var flat [16]float64
	copy(flat[:], out.RawMatrix().Data)
	return flat
}
