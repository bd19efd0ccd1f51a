package ebitenadapter

import (
	"math"

	"github.com/kestrelworks/worldstream"
)

// Node is a 3D scene-graph transform: parent/child attachment plus local
// position/rotation/scale, with a dirty-flag world-transform cache.
// Generalized from willow's transform.go 2D affine composition (Translate
// -> Scale -> Rotate, a cached worldTransform recomputed only when dirty)
// to 3D TRS with quaternion rotation, since spec.md §6's coordinate
// convention is a 3D one.
type Node struct {
	name   string
	parent *Node
	child  []*Node

	localPos   worldstream.Vec3
	localRot   worldstream.Quat
	localScale worldstream.Vec3

	worldPos   worldstream.Vec3
	worldRot   worldstream.Quat
	worldScale worldstream.Vec3
	dirty      bool

	disposed bool
}

// NewNode creates a root-less Node at the identity transform.
func NewNode(name string) *Node {
	return &Node{
		name:       name,
		localScale: worldstream.Vec3{X: 1, Y: 1, Z: 1},
		worldScale: worldstream.Vec3{X: 1, Y: 1, Z: 1},
		worldRot:   worldstream.IdentityQuat,
		localRot:   worldstream.IdentityQuat,
		dirty:      true,
	}
}

// SetParent implements worldstream.Transform. A nil parent detaches the
// node (it becomes its own root), matching Node.RemoveFromParent's
// willow-side shape.
func (n *Node) SetParent(parent worldstream.Transform) {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	if parent == nil {
		n.parent = nil
	} else {
		p := parent.(*Node)
		n.parent = p
		p.child = append(p.child, n)
	}
	n.markDirty()
}

func (n *Node) removeChild(child *Node) {
	for i, c := range n.child {
		if c == child {
			n.child = append(n.child[:i], n.child[i+1:]...)
			return
		}
	}
}

// SetLocalPosition implements worldstream.Transform.
func (n *Node) SetLocalPosition(p worldstream.Vec3) {
	n.localPos = p
	n.markDirty()
}

// SetLocalRotation implements worldstream.Transform.
func (n *Node) SetLocalRotation(q worldstream.Quat) {
	n.localRot = q
	n.markDirty()
}

// SetLocalScale implements worldstream.Transform.
func (n *Node) SetLocalScale(s worldstream.Vec3) {
	n.localScale = s
	n.markDirty()
}

// LocalScale implements worldstream.Transform.
func (n *Node) LocalScale() worldstream.Vec3 {
	return n.localScale
}

func (n *Node) markDirty() {
	if n.dirty {
		return
	}
	n.dirty = true
	for _, c := range n.child {
		c.markDirty()
	}
}

// WorldPosition recomputes (if dirty) and returns the node's world-space
// position and rotation, for the terrain/sprite renderer's projection.
func (n *Node) WorldPosition() (worldstream.Vec3, worldstream.Quat) {
	n.recompute()
	return n.worldPos, n.worldRot
}

func (n *Node) recompute() {
	if !n.dirty {
		return
	}
	if n.parent == nil {
		n.worldPos = n.localPos
		n.worldRot = n.localRot
		n.worldScale = n.localScale
	} else {
		n.parent.recompute()
		scaled := worldstream.Vec3{
			X: n.localPos.X * n.parent.worldScale.X,
			Y: n.localPos.Y * n.parent.worldScale.Y,
			Z: n.localPos.Z * n.parent.worldScale.Z,
		}
		rotated := rotateVec3(n.parent.worldRot, scaled)
		n.worldPos = worldstream.Vec3{X: n.parent.worldPos.X + rotated.X, Y: n.parent.worldPos.Y + rotated.Y, Z: n.parent.worldPos.Z + rotated.Z}
		n.worldRot = mulQuat(n.parent.worldRot, n.localRot)
		n.worldScale = worldstream.Vec3{
			X: n.localScale.X * n.parent.worldScale.X,
			Y: n.localScale.Y * n.parent.worldScale.Y,
			Z: n.localScale.Z * n.parent.worldScale.Z,
		}
	}
	n.dirty = false
}

// Destroy detaches n from its parent and drops its children, mirroring
// willow's Node.Dispose (detach then recursively clear).
func (n *Node) Destroy() {
	if n.disposed {
		return
	}
	if n.parent != nil {
		n.parent.removeChild(n)
		n.parent = nil
	}
	for _, c := range n.child {
		c.parent = nil
		c.Destroy()
	}
	n.child = nil
	n.disposed = true
}

func rotateVec3(q worldstream.Quat, v worldstream.Vec3) worldstream.Vec3 {
	// Standard quaternion-vector rotation v' = q * v * q^-1, expanded to
	// avoid constructing a pure-vector quaternion intermediate.
	ux, uy, uz := q.X, q.Y, q.Z
	s := q.W
	dotUV := ux*v.X + uy*v.Y + uz*v.Z
	dotUU := ux*ux + uy*uy + uz*uz
	crossX := uy*v.Z - uz*v.Y
	crossY := uz*v.X - ux*v.Z
	crossZ := ux*v.Y - uy*v.X
	return worldstream.Vec3{
		X: 2*dotUV*ux + (s*s-dotUU)*v.X + 2*s*crossX,
		Y: 2*dotUV*uy + (s*s-dotUU)*v.Y + 2*s*crossY,
		Z: 2*dotUV*uz + (s*s-dotUU)*v.Z + 2*s*crossZ,
	}
}

func mulQuat(a, b worldstream.Quat) worldstream.Quat {
	return worldstream.Quat{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

// yaw extracts the rotation around Y (up) from a world-space quaternion,
// for the demo's top-down sprite facing.
func yaw(q worldstream.Quat) float64 {
	sinY := 2 * (q.W*q.Y + q.X*q.Z)
	cosY := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	return math.Atan2(sinY, cosY)
}
