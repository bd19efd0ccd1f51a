package ebitenadapter

import (
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/kestrelworks/worldstream"
)

// TerrainTile holds one tile's pre-built, per-texture-id draw buffers,
// ready for Draw. Built once per TerrainMesh (on tile load or neighbor
// rebuild) rather than rebuilt every frame, since the mesh only changes
// when the orchestrator's OnTileBuilt hook fires.
type TerrainTile struct {
	origin worldstream.Vec3 // tile's render-space origin, added to every vertex
	subs   []terrainSub
}

type terrainSub struct {
	textureID uint16
	vertices  []ebiten.Vertex
	indices   []uint16 // remapped to a compact uint16 range, see buildSub
}

// scale converts render-space X/Z into screen pixels for the demo's
// top-down orthographic view; Y (height) only shades vertex brightness, the
// same simplification willow's 2D-only node tree makes unavoidable.
const pixelsPerRenderUnit = 8.0

// NewTerrainTile flattens mesh into screen-space vertex/index buffers
// bucketed by texture_id, the same "rebuild a vertex/index buffer, bucket
// draw submissions per atlas page" shape as willow's tilemap.go
// TileMapLayer, generalized from a flat 2D tile grid to a 3D heightfield
// mesh projected down to the screen plane.
func NewTerrainTile(origin worldstream.Vec3, mesh worldstream.TerrainMesh) *TerrainTile {
	t := &TerrainTile{origin: origin}
	for texID, sm := range mesh.Submeshes {
		t.subs = append(t.subs, buildSub(texID, sm, mesh))
	}
	return t
}

func buildSub(texID uint16, sm worldstream.TerrainSubmesh, mesh worldstream.TerrainMesh) terrainSub {
	out := terrainSub{textureID: texID}
	// Index-width is only a GPU upload concern (spec.md §4.8's Wide flag);
	// ebiten.DrawTriangles always takes uint16 indices, so the submesh's
	// distinct vertices are remapped below to a compact 0-based uint16
	// range. The submesh is not split into chunks: one with more than 65536
	// distinct vertices does not fit this remap.
	remap := make(map[uint32]uint16)
	for _, idx := range sm.Indices {
		if _, ok := remap[idx]; ok {
			continue
		}
		remap[idx] = uint16(len(out.vertices))
		p := mesh.Positions[idx]
		n := mesh.Normals[idx]
		uv := mesh.UVs[idx]
		brightness := float32(0.5 + 0.5*clamp01(n.Y))
		out.vertices = append(out.vertices, ebiten.Vertex{
			DstX:   float32(p.X) * pixelsPerRenderUnit,
			DstY:   float32(p.Z) * pixelsPerRenderUnit,
			SrcX:   uv[0],
			SrcY:   uv[1],
			ColorR: brightness,
			ColorG: brightness,
			ColorB: brightness,
			ColorA: 1,
		})
	}
	for _, idx := range sm.Indices {
		out.indices = append(out.indices, remap[idx])
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Draw submits one DrawTriangles call per texture_id submesh. lookup
// resolves a texture_id to its decoded image (in the demo, images fetched
// through the demo's own TerrainTextureCache); a miss falls
// back to a flat white image so a still-loading texture renders as shaded
// geometry rather than not at all.
func (t *TerrainTile) Draw(screen *ebiten.Image, originScreenX, originScreenY float64, lookup func(uint16) *ebiten.Image) {
	ox := float32(originScreenX + t.origin.X*pixelsPerRenderUnit)
	oy := float32(originScreenY + t.origin.Z*pixelsPerRenderUnit)
	for _, sub := range t.subs {
		img := lookup(sub.textureID)
		if img == nil {
			img = whitePixel
		}
		verts := make([]ebiten.Vertex, len(sub.vertices))
		copy(verts, sub.vertices)
		for i := range verts {
			verts[i].DstX += ox
			verts[i].DstY += oy
		}
		screen.DrawTriangles(verts, sub.indices, img, &ebiten.DrawTrianglesOptions{})
	}
}

var whitePixel = func() *ebiten.Image {
	img := ebiten.NewImage(1, 1)
	img.Fill(whiteColor{})
	return img
}()

type whiteColor struct{}

func (whiteColor) RGBA() (r, g, b, a uint32) { return 0xffff, 0xffff, 0xffff, 0xffff }
