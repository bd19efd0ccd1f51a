// Command worldstream-demo is a runnable showcase of the streaming engine:
// an ebiten window that drives an Orchestrator from keyboard input, renders
// loaded terrain tiles and spawned model instances, and shows the live
// DebugSnapshot counters in the window title. Grounded on willow's
// demos/*/main.go shape (construct a scene, wire callbacks, hand control to
// ebiten's run loop) now that willow.go's convenience Run wrapper is gone —
// this demo drives ebiten.RunGame directly instead.
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/kestrelworks/worldstream"
	"github.com/kestrelworks/worldstream/ebitenadapter"
)

const (
	screenWidth  = 960
	screenHeight = 640
	moveSpeed    = 6.0 // world units per second
	turnSpeed    = 2.0 // radians per second
)

// liveInstance is the demo's bookkeeping for one spawned model instance:
// enough to find it again on OnInstanceDestroyed and to read its current
// world position every frame for drawing a marker.
type liveInstance struct {
	root worldstream.Transform
}

type game struct {
	orchestrator *worldstream.Orchestrator
	textures     *worldstream.TerrainTextureCache

	viewerPos Vec3Alias
	viewerRot float64

	mu        sync.Mutex
	tiles     map[worldstream.TileCoord]*ebitenadapter.TerrainTile
	instances map[worldstream.InstanceID]*liveInstance
	texImages map[uint16]*ebiten.Image
}

// Vec3Alias avoids a stutter of worldstream.Vec3 in field declarations
// below while keeping the exact same underlying type.
type Vec3Alias = worldstream.Vec3

func newGame() *game {
	cfg := worldstream.DefaultConfig()

	world := &fakeWorld{
		tileCellSpan: cfg.TileCellSpan,
		nodeCellSpan: cfg.NodeCellSpan,
		worldPerCell: cfg.WorldUnitsPerCell,
	}
	scene := ebitenadapter.NewScene()
	loader := &fakeLoader{scene: scene}
	downloader := fakeDownloader{}
	sign := ebitenadapter.SignRasterizer{}

	orch := worldstream.NewOrchestrator(
		cfg,
		world,
		loader,
		downloader,
		scene,
		sign,
		ebitenadapter.DeriveVariant,
		"demo-objects",
		"",
		nil,
	)

	// resolveTerrainFilenames is the only place a texture_id is turned into
	// downloadable candidate names: terrain<id>.jpg, then terrain<id>.png.
	resolveTerrainFilenames := func(id uint16) []string {
		return []string{fmt.Sprintf("terrain%d.jpg", id), fmt.Sprintf("terrain%d.png", id)}
	}
	textures := worldstream.NewTerrainTextureCache(downloader, "demo-objects", "", resolveTerrainFilenames)

	g := &game{
		orchestrator: orch,
		textures:     textures,
		tiles:        make(map[worldstream.TileCoord]*ebitenadapter.TerrainTile),
		instances:    make(map[worldstream.InstanceID]*liveInstance),
		texImages:    make(map[uint16]*ebiten.Image),
	}

	orch.OnTileBuilt = func(tile worldstream.TileCoord, mesh worldstream.TerrainMesh) {
		built := ebitenadapter.NewTerrainTile(worldstream.Vec3{
			X: float64(tile.TX * int32(cfg.TileCellSpan)), Z: float64(tile.TZ * int32(cfg.TileCellSpan)),
		}, mesh)
		g.mu.Lock()
		g.tiles[tile] = built
		g.mu.Unlock()

		for texID := range mesh.Submeshes {
			texID := texID
			go func() {
				img, err := g.textures.Get(context.Background(), texID)
				if err != nil {
					return
				}
				var tex *ebiten.Image
				switch v := img.(type) {
				case *ebitenadapter.TextureHandle:
					tex = v.Image
				case image.Image:
					tex = ebiten.NewImageFromImage(v)
				default:
					return
				}
				g.mu.Lock()
				g.texImages[texID] = tex
				g.mu.Unlock()
			}()
		}
	}
	orch.OnInstanceSpawned = func(id worldstream.InstanceID, root worldstream.Transform, renderers []worldstream.Renderer) {
		g.mu.Lock()
		g.instances[id] = &liveInstance{root: root}
		g.mu.Unlock()
	}
	orch.OnInstanceDestroyed = func(id worldstream.InstanceID) {
		g.mu.Lock()
		delete(g.instances, id)
		g.mu.Unlock()
	}

	return g
}

func (g *game) Update() error {
	dt := float32(1.0 / 60.0)

	if ebiten.IsKeyPressed(ebiten.KeyLeft) || ebiten.IsKeyPressed(ebiten.KeyA) {
		g.viewerRot -= turnSpeed * float64(dt)
	}
	if ebiten.IsKeyPressed(ebiten.KeyRight) || ebiten.IsKeyPressed(ebiten.KeyD) {
		g.viewerRot += turnSpeed * float64(dt)
	}
	forward := 0.0
	if ebiten.IsKeyPressed(ebiten.KeyUp) || ebiten.IsKeyPressed(ebiten.KeyW) {
		forward += moveSpeed * float64(dt)
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) || ebiten.IsKeyPressed(ebiten.KeyS) {
		forward -= moveSpeed * float64(dt)
	}
	g.viewerPos.X += math.Sin(g.viewerRot) * forward
	g.viewerPos.Z += math.Cos(g.viewerRot) * forward

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	g.orchestrator.Tick(context.Background(), g.viewerPos, g.viewerRot, time.Now(), dt)
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 24, G: 28, B: 36, A: 255})

	originX := screenWidth / 2.0
	originY := screenHeight / 2.0

	g.mu.Lock()
	defer g.mu.Unlock()

	lookup := func(id uint16) *ebiten.Image { return g.texImages[id] }
	for _, tile := range g.tiles {
		tile.Draw(screen, originX, originY, lookup)
	}

	for _, inst := range g.instances {
		pos, _ := inst.root.(*ebitenadapter.Node).WorldPosition()
		sx := float32(originX + pos.X*8)
		sy := float32(originY + pos.Z*8)
		markerImg := ebiten.NewImage(6, 6)
		markerImg.Fill(color.RGBA{R: 220, G: 80, B: 80, A: 255})
		opts := &ebiten.DrawImageOptions{}
		opts.GeoM.Translate(float64(sx)-3, float64(sy)-3)
		screen.DrawImage(markerImg, opts)
	}

	snap := g.orchestrator.DebugSnapshot()
	ebiten.SetWindowTitle(fmt.Sprintf(
		"worldstream-demo  cells=%d tiles=%d instances=%d templates=%d textures=%d",
		snap.CellsLoaded, snap.TilesLoaded, len(g.instances), snap.TemplatesLoaded, snap.TexturesCached,
	))
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("worldstream-demo")
	if err := ebiten.RunGame(newGame()); err != nil {
		log.Fatal(err)
	}
}
