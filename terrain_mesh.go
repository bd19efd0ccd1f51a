package worldstream

import "math"

// maxHeightSearchRadius bounds the expanding-radius search vertexHeight
// falls back to when none of a vertex's four immediate corner cells are
// loaded (spec.md §4.8): beyond this many rings the vertex just uses 0,
// which only matters at the edge of currently-loaded terrain.
const maxHeightSearchRadius = 8

// buildCellGrid assembles the dense tileCellSpan x tileCellSpan grid of
// cells for one tile from its (possibly partial) node list, per spec.md
// §3 "terrain node" / §4.8. Cells for nodes not present in the list (not
// yet loaded, or outside the mask requested) are left as their zero value
// (height 0, texture 0, not a hole — callers needing hole-awareness for
// partial loads should check node coverage separately).
func buildCellGrid(nodes []TerrainNode, tileCellSpan, nodeCellSpan int) [][]TerrainCell {
	grid := make([][]TerrainCell, tileCellSpan)
	for z := range grid {
		grid[z] = make([]TerrainCell, tileCellSpan)
	}
	for _, node := range nodes {
		for dz := 0; dz < nodeCellSpan; dz++ {
			for dx := 0; dx < nodeCellSpan; dx++ {
				cx := node.X*nodeCellSpan + dx
				cz := node.Z*nodeCellSpan + dz
				if cx < 0 || cx >= tileCellSpan || cz < 0 || cz >= tileCellSpan {
					continue
				}
				idx := dz*nodeCellSpan + dx
				if idx >= len(node.Cells) {
					continue
				}
				grid[cz][cx] = node.Cells[idx]
			}
		}
	}
	return grid
}

// vertexHeight resolves the height at the grid vertex sitting at the
// corner shared by the cells at (globalCX-1,globalCZ-1), (globalCX,
// globalCZ-1), (globalCX-1,globalCZ), and (globalCX,globalCZ): the
// average of whichever of those four are loaded and not holes. When none
// of the immediate four qualify, the search expands outward one ring at
// a time so a mesh at the loaded/unloaded boundary degrades gracefully
// instead of leaving a seam of zero-height vertices (spec.md §4.8).
func vertexHeight(globalCX, globalCZ int32, lookup HeightLookup) float32 {
	if h, ok := averageCorners(globalCX, globalCZ, lookup); ok {
		return h
	}
	for radius := int32(1); radius <= maxHeightSearchRadius; radius++ {
		if h, ok := nearestWithinRadius(globalCX, globalCZ, radius, lookup); ok {
			return h
		}
	}
	return 0
}

func averageCorners(globalCX, globalCZ int32, lookup HeightLookup) (float32, bool) {
	var sum float32
	var n int
	for _, d := range [4][2]int32{{-1, -1}, {0, -1}, {-1, 0}, {0, 0}} {
		cell, ok := lookup(globalCX+d[0], globalCZ+d[1])
		if !ok || cell.IsHole {
			continue
		}
		sum += cell.Height
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float32(n), true
}

func nearestWithinRadius(globalCX, globalCZ, radius int32, lookup HeightLookup) (float32, bool) {
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			if absInt32(dx) != int(radius) && absInt32(dz) != int(radius) {
				continue // interior already tried at a smaller radius
			}
			cell, ok := lookup(globalCX+dx, globalCZ+dz)
			if ok && !cell.IsHole {
				return cell.Height, true
			}
		}
	}
	return 0, false
}

// terrainNormal estimates the smooth per-vertex normal from the height
// field's central difference, the standard heightmap-mesher shortcut for
// avoiding an explicit face-normal-averaging pass (spec.md §4.8).
func terrainNormal(gx, gz int32, cfg Config, lookup HeightLookup) Vec3 {
	hL := vertexHeight(gx-1, gz, lookup)
	hR := vertexHeight(gx+1, gz, lookup)
	hD := vertexHeight(gx, gz-1, lookup)
	hU := vertexHeight(gx, gz+1, lookup)
	spacing := cfg.WorldUnitsPerCell
	if spacing <= 0 {
		spacing = 1
	}
	n := Vec3{
		X: -(float64(hR) - float64(hL)) / (2 * spacing),
		Y: 1,
		Z: -(float64(hU) - float64(hD)) / (2 * spacing),
	}
	return normalizeVec3(n)
}

func normalizeVec3(v Vec3) Vec3 {
	length := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if length < 1e-9 {
		return Vec3{Y: 1}
	}
	return Vec3{X: v.X / length, Y: v.Y / length, Z: v.Z / length}
}

// BuildTileMesh assembles one tile's render geometry from its node list
// and a global neighbor-aware height lookup (spec.md §4.8). Vertices are
// not shared across cells: each cell emits its own 4 corner vertices so
// that per-cell UV rotation and per-cell texture selection are always
// correct, while still landing on bit-identical heights at tile edges
// because vertexHeight is a pure function of global coordinates.
func BuildTileMesh(tile TileCoord, nodes []TerrainNode, cfg Config, lookup HeightLookup) TerrainMesh {
	grid := buildCellGrid(nodes, cfg.TileCellSpan, cfg.NodeCellSpan)
	mesh := TerrainMesh{Submeshes: make(map[uint16]TerrainSubmesh)}
	baseGX := tile.TX * int32(cfg.TileCellSpan)
	baseGZ := tile.TZ * int32(cfg.TileCellSpan)

	vertex := func(localX, localZ int32, uv [2]float32) uint32 {
		gx := baseGX + localX
		gz := baseGZ + localZ
		h := vertexHeight(gx, gz, lookup) + float32(cfg.TerrainHeightOffset)
		pos := Vec3{X: float64(gx) * cfg.WorldUnitsPerCell, Y: float64(h), Z: float64(gz) * cfg.WorldUnitsPerCell}
		idx := uint32(len(mesh.Positions))
		mesh.Positions = append(mesh.Positions, pos)
		mesh.Normals = append(mesh.Normals, terrainNormal(gx, gz, cfg, lookup))
		mesh.UVs = append(mesh.UVs, uv)
		return idx
	}

	for cz := 0; cz < cfg.TileCellSpan; cz++ {
		for cx := 0; cx < cfg.TileCellSpan; cx++ {
			cell := grid[cz][cx]
			if cell.IsHole {
				continue
			}
			uv := rotatedUV(cell.RotationQuarter)
			i00 := vertex(int32(cx), int32(cz), uv[0])
			i10 := vertex(int32(cx+1), int32(cz), uv[1])
			i11 := vertex(int32(cx+1), int32(cz+1), uv[2])
			i01 := vertex(int32(cx), int32(cz+1), uv[3])

			sub := mesh.Submeshes[cell.TextureID]
			sub.Indices = append(sub.Indices, i00, i10, i11, i00, i11, i01)
			mesh.Submeshes[cell.TextureID] = sub
		}
	}

	for id, sub := range mesh.Submeshes {
		for _, idx := range sub.Indices {
			if idx > 0xFFFF {
				sub.Wide = true
				break
			}
		}
		mesh.Submeshes[id] = sub
	}
	return mesh
}
