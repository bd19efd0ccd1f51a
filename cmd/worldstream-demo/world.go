package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/kestrelworks/worldstream"
	"github.com/kestrelworks/worldstream/ebitenadapter"
)

// fakeWorld is a deterministic, procedurally generated stand-in for the
// out-of-scope world server (spec.md §1, §9): it has no network, no
// persistence, and every response is a pure function of its coordinates so
// the same cell or tile always "arrives" with the same content, the way
// willow's demos (sprites10k, ropegarden, physics) generate their scene
// content procedurally rather than loading it from a server.
type fakeWorld struct {
	tileCellSpan int
	nodeCellSpan int
	worldPerCell float64
}

// QueryCell implements worldstream.WorldClient: every third cell (by a
// cheap coordinate hash) gets one placement, alternating between two model
// ids and carrying a small action script that exercises the color and
// ambient verbs so the demo has something to watch besides static geometry.
func (w *fakeWorld) QueryCell(ctx context.Context, cx, cy int32) ([]worldstream.ObjectPlacement, error) {
	h := hash2(cx, cy)
	if h%3 != 0 {
		return nil, nil
	}
	modelID := "sprout"
	script := "create color #4caf50; create ambient 0.8"
	if h%2 == 0 {
		modelID = "boulder"
		script = "create color #9e9e9e; create ambient 0.6"
	}
	pos := worldstream.Vec3{
		X: (float64(cx) + 0.5) * w.worldPerCell,
		Y: 0,
		Z: (float64(cy) + 0.5) * w.worldPerCell,
	}
	return []worldstream.ObjectPlacement{{
		ModelID:       modelID,
		Position:      pos,
		RotationAxis:  worldstream.Vec3{Y: 1},
		RotationAngle: float64(h%8) * math.Pi / 4,
		ActionScript:  script,
		Description:   fmt.Sprintf("%s @ (%d,%d)", modelID, cx, cy),
	}}, nil
}

// QueryTerrain implements worldstream.WorldClient with a smooth rolling
// heightfield (a sum of two sine waves in global cell coordinates) and a
// single texture id, so neighboring tiles always agree on shared-edge
// heights without any server-side coordination (spec.md §4.8's "terrain
// cell cache is shared ... deterministic" invariant holds trivially here
// because the source itself is a pure function of global coordinates).
func (w *fakeWorld) QueryTerrain(ctx context.Context, tx, tz int32, nodeMask [16]int32) ([]worldstream.TerrainNode, error) {
	nodesPerEdge := w.tileCellSpan / w.nodeCellSpan
	nodes := make([]worldstream.TerrainNode, 0, nodesPerEdge*nodesPerEdge)
	baseGX := tx * int32(w.tileCellSpan)
	baseGZ := tz * int32(w.tileCellSpan)
	for nz := 0; nz < nodesPerEdge; nz++ {
		for nx := 0; nx < nodesPerEdge; nx++ {
			cells := make([]worldstream.TerrainCell, 0, w.nodeCellSpan*w.nodeCellSpan)
			for dz := 0; dz < w.nodeCellSpan; dz++ {
				for dx := 0; dx < w.nodeCellSpan; dx++ {
					gx := baseGX + int32(nx*w.nodeCellSpan+dx)
					gz := baseGZ + int32(nz*w.nodeCellSpan+dz)
					cells = append(cells, worldstream.TerrainCell{
						Height:    terrainHeight(gx, gz),
						TextureID: 1,
					})
				}
			}
			nodes = append(nodes, worldstream.TerrainNode{X: nx, Z: nz, Cells: cells})
		}
	}
	return nodes, nil
}

func terrainHeight(gx, gz int32) float32 {
	x, z := float64(gx), float64(gz)
	return float32(1.2*math.Sin(x/6) + 0.8*math.Cos(z/5))
}

// hash2 is a cheap, deterministic integer hash used only to scatter demo
// content across coordinates — not cryptographic, not meant to be.
func hash2(a, b int32) uint32 {
	h := uint32(2166136261)
	h = (h ^ uint32(a)) * 16777619
	h = (h ^ uint32(b)) * 16777619
	return h
}

// fakeLoader builds a one-submesh template per model id: a flat-colored
// quad Node marked as a renderer in scene, the minimal "model" the demo
// adapter can clone and tint via action commands.
type fakeLoader struct {
	scene *ebitenadapter.Scene
}

func (l *fakeLoader) LoadModel(ctx context.Context, id, objectPath, password string) (worldstream.SceneGraphObject, error) {
	root := ebitenadapter.NewNode(id)
	child := ebitenadapter.NewNode(id + ":body")
	child.SetParent(root)
	l.scene.MarkRenderer(child, nil)

	scale := worldstream.Vec3{X: 1, Y: 1, Z: 1}
	if id == "boulder" {
		scale = worldstream.Vec3{X: 1.4, Y: 0.9, Z: 1.4}
	}
	renderer := ebitenadapter.NewSpriteRenderer(child, nil)
	return worldstream.SceneGraphObject{
		Root:      root,
		Renderers: []worldstream.Renderer{renderer},
		BaseScale: scale,
	}, nil
}

// fakeDownloader serves a small solid-color PNG for any requested filename,
// standing in for the out-of-scope asset CDN (spec.md §6). The color is a
// deterministic function of the filename so repeated requests for the same
// texture always "download" the same bytes, and texturecache.go's LRU
// behaves exactly as it would against a real backend.
type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, objectPath, filename, password string) ([]byte, error) {
	var h uint32 = 2166136261
	for i := 0; i < len(filename); i++ {
		h = (h ^ uint32(filename[i])) * 16777619
	}
	c := color.RGBA{R: uint8(h), G: uint8(h >> 8), B: uint8(h >> 16), A: 255}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
