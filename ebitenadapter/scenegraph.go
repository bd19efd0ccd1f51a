package ebitenadapter

import "github.com/kestrelworks/worldstream"

// rendererSpec holds the submesh tags of one Node in a template subgraph
// that owns a Renderer (a visual submesh). Scene.renderers maps each such
// Node to its rendererSpec; template authoring (the demo's fake
// ModelLoader) populates it via MarkRenderer, and CloneSubgraph consults it
// to know which clones need a fresh SpriteRenderer.
type rendererSpec struct {
	tags []int
}

// Scene is the adapter's worldstream.SceneGraph: a clone-on-spawn registry
// over Node subtrees, generalized from willow's "build once, recurse to
// clone" absence — willow has no template/instance concept, so this is
// grounded on the teacher's general node-tree recursion shape (node.go's
// AddChild/RemoveFromParent/dispose walking the child slice) rather than on
// a single specific willow method.
type Scene struct {
	renderers map[*Node]*rendererSpec
}

// NewScene creates an empty Scene.
func NewScene() *Scene {
	return &Scene{renderers: make(map[*Node]*rendererSpec)}
}

// MarkRenderer flags node as owning a Renderer with the given submesh tags,
// for use while authoring a template subgraph (before it is ever cloned).
func (s *Scene) MarkRenderer(node *Node, tags []int) {
	s.renderers[node] = &rendererSpec{tags: tags}
}

// NewRoot implements worldstream.SceneGraph.
func (s *Scene) NewRoot(name string) worldstream.Transform {
	return NewNode(name)
}

// CloneSubgraph implements worldstream.SceneGraph: deep-clones the subtree
// rooted at template (a *Node), parenting the clone under parent, and
// returns fresh Renderers for every node template marked via MarkRenderer,
// in pre-order (matching the order ModelLoader's SceneGraphObject.Renderers
// was built in, so the two line up positionally for callers that zip them).
func (s *Scene) CloneSubgraph(template worldstream.Transform, parent worldstream.Transform) (worldstream.Transform, []worldstream.Renderer) {
	tmpl := template.(*Node)
	var renderers []worldstream.Renderer
	root := s.cloneNode(tmpl, &renderers)
	root.SetParent(parent)
	return root, renderers
}

func (s *Scene) cloneNode(tmpl *Node, renderers *[]worldstream.Renderer) *Node {
	clone := NewNode(tmpl.name)
	clone.localPos = tmpl.localPos
	clone.localRot = tmpl.localRot
	clone.localScale = tmpl.localScale

	if spec, ok := s.renderers[tmpl]; ok {
		*renderers = append(*renderers, NewSpriteRenderer(clone, spec.tags))
	}
	for _, child := range tmpl.child {
		c := s.cloneNode(child, renderers)
		c.SetParent(clone)
	}
	return clone
}

// Destroy implements worldstream.SceneGraph.
func (s *Scene) Destroy(root worldstream.Transform) {
	root.(*Node).Destroy()
}
