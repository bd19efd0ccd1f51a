package worldstream

import "math"

// CellCoord indexes a fixed-size partition of world space (spec.md §3).
type CellCoord struct {
	CX, CY int32
}

// TileCoord indexes a terrain tile, each spanning TileCellSpan x
// TileCellSpan cells (spec.md §3).
type TileCoord struct {
	TX, TZ int32
}

// Chebyshev returns the Chebyshev (chessboard) distance between two cells.
func (c CellCoord) Chebyshev(o CellCoord) int {
	return maxInt(absInt32(c.CX-o.CX), absInt32(c.CY-o.CY))
}

// Manhattan returns the Manhattan distance between two cells.
func (c CellCoord) Manhattan(o CellCoord) int {
	return absInt32(c.CX-o.CX) + absInt32(c.CY-o.CY)
}

// Chebyshev returns the Chebyshev distance between two tiles.
func (t TileCoord) Chebyshev(o TileCoord) int {
	return maxInt(absInt32(t.TX-o.TX), absInt32(t.TZ-o.TZ))
}

// Manhattan returns the Manhattan distance between two tiles.
func (t TileCoord) Manhattan(o TileCoord) int {
	return absInt32(t.TX-o.TX) + absInt32(t.TZ-o.TZ)
}

func absInt32(v int32) int {
	if v < 0 {
		return int(-v)
	}
	return int(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CellOf returns the cell coordinate containing a world-space position,
// given the configured world_units_per_cell.
func CellOf(worldX, worldZ float64, worldUnitsPerCell float64) CellCoord {
	return CellCoord{
		CX: int32(math.Floor(worldX / worldUnitsPerCell)),
		CY: int32(math.Floor(worldZ / worldUnitsPerCell)),
	}
}

// SpawnPriority computes the queueing priority for a cell/tile at the given
// Chebyshev and Manhattan distance from the viewer, per spec.md §4.7:
// "Chebyshev·100 + Manhattan" (lower is more urgent, consumed by a min-heap).
func SpawnPriority(chebyshev, manhattan int) float64 {
	return float64(chebyshev)*100 + float64(manhattan)
}

// Vec3 is a plain 3D vector in world units.
type Vec3 struct {
	X, Y, Z float64
}

// Quat is a unit quaternion (X, Y, Z, W).
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// RenderPosition maps a world-space position to render units per spec.md
// §6: render.x = -world.x * k (X flip), Y and Z preserved and scaled by k.
func RenderPosition(world Vec3, k float64) Vec3 {
	return Vec3{X: -world.X * k, Y: world.Y * k, Z: world.Z * k}
}

// RenderRotation converts a server rotation (axis, angle) to a render-space
// quaternion per spec.md §6. If angle is +/-Inf, axis is interpreted as
// Euler angles (in radians) with Y and Z negated for handedness; otherwise
// an axis-angle quaternion is built and its Y/Z components are negated,
// then the result is normalized.
func RenderRotation(axis Vec3, angleRad float64) Quat {
	if math.IsInf(angleRad, 0) {
		return eulerToQuat(axis.X, -axis.Y, -axis.Z)
	}
	q := axisAngleToQuat(axis, angleRad)
	q.Y = -q.Y
	q.Z = -q.Z
	return q.normalized()
}

func axisAngleToQuat(axis Vec3, angleRad float64) Quat {
	length := math.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if length < 1e-12 {
		return IdentityQuat
	}
	ax, ay, az := axis.X/length, axis.Y/length, axis.Z/length
	half := angleRad / 2
	s := math.Sin(half)
	return Quat{X: ax * s, Y: ay * s, Z: az * s, W: math.Cos(half)}
}

// eulerToQuat builds a quaternion from Euler angles (radians) applied in
// X, then Y, then Z order.
func eulerToQuat(xRad, yRad, zRad float64) Quat {
	cx, sx := math.Cos(xRad/2), math.Sin(xRad/2)
	cy, sy := math.Cos(yRad/2), math.Sin(yRad/2)
	cz, sz := math.Cos(zRad/2), math.Sin(zRad/2)
	return Quat{
		X: sx*cy*cz - cx*sy*sz,
		Y: cx*sy*cz + sx*cy*sz,
		Z: cx*cy*sz - sx*sy*cz,
		W: cx*cy*cz + sx*sy*sz,
	}.normalized()
}

func (q Quat) normalized() Quat {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n < 1e-12 {
		return IdentityQuat
	}
	return Quat{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}
