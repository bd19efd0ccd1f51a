package worldstream

import "testing"

func testResidencyConfig() Config {
	cfg := DefaultConfig()
	cfg.LoadRadius = 2
	cfg.UnloadRadius = 3
	cfg.FullDetailRadius = 0
	cfg.InstancedRadius = 1
	cfg.ProxyRadius = 2
	cfg.NearBoostRadius = 0
	cfg.NearBoostPriority = 1000
	return cfg
}

func TestResidencyQueuesWithinLoadRadius(t *testing.T) {
	r := NewCellResidency(testResidencyConfig())
	center := CellCoord{CX: 10, CY: 10}
	r.Reprioritize(center)

	if !r.IsDesired(center) {
		t.Fatal("center should be desired")
	}
	if !r.IsDesired(CellCoord{CX: 12, CY: 10}) {
		t.Fatal("cell at the load radius edge should be desired")
	}
	if r.IsDesired(CellCoord{CX: 13, CY: 10}) {
		t.Fatal("cell beyond the load radius should not be desired")
	}
	want := (2*2 + 1) * (2*2 + 1)
	if r.QueueLen() != want {
		t.Fatalf("QueueLen = %d, want %d", r.QueueLen(), want)
	}
}

// TestResidencyInvariantNoDoubleQuery is spec.md §8 item 1: once a key is
// popped into querying, it is no longer present in the queue, and a
// second StartQueries call cannot return it again.
func TestResidencyInvariantNoDoubleQuery(t *testing.T) {
	r := NewCellResidency(testResidencyConfig())
	center := CellCoord{CX: 0, CY: 0}
	r.Reprioritize(center)

	total := r.QueueLen()
	first := r.StartQueries(total)
	if len(first) != total {
		t.Fatalf("StartQueries returned %d, want %d", len(first), total)
	}
	if r.QueueLen() != 0 {
		t.Fatalf("QueueLen after draining = %d, want 0", r.QueueLen())
	}
	second := r.StartQueries(total)
	if len(second) != 0 {
		t.Fatalf("StartQueries after drain returned %d, want 0", len(second))
	}

	seen := make(map[CellCoord]bool)
	for _, k := range first {
		if seen[k] {
			t.Fatalf("cell %v returned twice", k)
		}
		seen[k] = true
	}
}

func TestResidencyLODThresholds(t *testing.T) {
	r := NewCellResidency(testResidencyConfig())
	center := CellCoord{CX: 0, CY: 0}
	r.Reprioritize(center)

	cases := []struct {
		cell CellCoord
		want LODState
	}{
		{CellCoord{CX: 0, CY: 0}, LODFull},
		{CellCoord{CX: 1, CY: 0}, LODInstanced},
		{CellCoord{CX: 2, CY: 0}, LODProxy},
	}
	for _, c := range cases {
		r.FinishQuery(center, c.cell, true)
		lod, ok := r.LOD(c.cell)
		if !ok {
			t.Fatalf("cell %v not loaded", c.cell)
		}
		if lod != c.want {
			t.Fatalf("LOD(%v) = %v, want %v", c.cell, lod, c.want)
		}
	}
}

func TestResidencyUnloadBeyondUnloadRadius(t *testing.T) {
	r := NewCellResidency(testResidencyConfig())
	center := CellCoord{CX: 0, CY: 0}
	r.Reprioritize(center)
	far := CellCoord{CX: 2, CY: 0}
	r.FinishQuery(center, far, true)
	r.Attach(far, InstanceID(1), InstanceID(2))

	far2 := CellCoord{CX: 20, CY: 20}
	unload := r.Reprioritize(far2)

	found := false
	for _, k := range unload {
		if k == far {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %v in unload set, got %v", far, unload)
	}
	if _, ok := r.LOD(far); ok {
		t.Fatal("far cell should no longer be loaded")
	}
}

func TestResidencyDetachReturnsAttachedInstances(t *testing.T) {
	r := NewCellResidency(testResidencyConfig())
	center := CellCoord{CX: 0, CY: 0}
	r.Reprioritize(center)
	r.FinishQuery(center, center, true)
	r.Attach(center, 7, 8, 9)

	_, ids, ok := r.Detach(center)
	if !ok {
		t.Fatal("expected Detach to find the loaded cell")
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v, want 3 entries", ids)
	}
	if _, ok := r.LOD(center); ok {
		t.Fatal("cell should no longer be loaded after Detach")
	}
}

// TestResidencyNearBoostLowersPriority is SPEC_FULL.md §12.2: a cell
// within near_boost_radius has near_boost_priority subtracted from its
// queued priority (more urgent), so the center cell is queued at
// SpawnPriority(0,0)-40 and pops first.
func TestResidencyNearBoostLowersPriority(t *testing.T) {
	cfg := testResidencyConfig()
	cfg.NearBoostRadius = 1
	cfg.NearBoostPriority = 40
	r := NewCellResidency(cfg)
	center := CellCoord{CX: 0, CY: 0}
	r.Reprioritize(center)

	want := SpawnPriority(0, 0) - 40
	if _, pri, ok := r.queue.Peek(); !ok || pri != want {
		t.Fatalf("head priority = %v (ok=%v), want %v", pri, ok, want)
	}

	near := r.StartQueries(1)
	if len(near) != 1 {
		t.Fatal("expected one cell popped")
	}
	if near[0] != center {
		t.Fatalf("first popped cell = %v, want center (boosted)", near[0])
	}
}
