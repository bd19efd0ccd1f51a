package worldstream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSceneGraph struct {
	mu        sync.Mutex
	destroyed int
}

func (s *fakeSceneGraph) NewRoot(name string) Transform { return &fakeTransform{} }

func (s *fakeSceneGraph) CloneSubgraph(template, parent Transform) (Transform, []Renderer) {
	return &fakeTransform{}, []Renderer{newFakeRenderer("std")}
}

func (s *fakeSceneGraph) Destroy(root Transform) {
	s.mu.Lock()
	s.destroyed++
	s.mu.Unlock()
}

type countingLoader struct {
	calls int32
	delay time.Duration
}

func (l *countingLoader) LoadModel(ctx context.Context, id, objectPath, password string) (SceneGraphObject, error) {
	atomic.AddInt32(&l.calls, 1)
	time.Sleep(l.delay)
	return SceneGraphObject{Root: &fakeTransform{}, BaseScale: Vec3{X: 1, Y: 1, Z: 1}}, nil
}

// TestTemplatePoolLoadsOncePerModel is spec.md §8 item 2: concurrent
// Acquire calls for a model_id with no loaded template yet collapse into
// a single LoadModel call.
func TestTemplatePoolLoadsOncePerModel(t *testing.T) {
	loader := &countingLoader{delay: 20 * time.Millisecond}
	scene := &fakeSceneGraph{}
	pool := NewTemplatePool(loader, scene, 4, true)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := pool.Acquire(context.Background(), InstanceID(i), "oak", "obj/oak", "")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Acquire(%d) failed: %v", i, err)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("LoadModel called %d times, want 1", loader.calls)
	}
}

func TestTemplatePoolRecyclesReleasedInstance(t *testing.T) {
	loader := &countingLoader{}
	scene := &fakeSceneGraph{}
	pool := NewTemplatePool(loader, scene, 4, true)

	inst, err := pool.Acquire(context.Background(), 1, "oak", "obj/oak", "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release("oak", inst)
	if pool.PoolLen("oak") != 1 {
		t.Fatalf("PoolLen = %d, want 1", pool.PoolLen("oak"))
	}

	recycled, err := pool.Acquire(context.Background(), 2, "oak", "obj/oak", "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !recycled.FromPool {
		t.Fatal("expected FromPool=true for a recycled instance")
	}
	if recycled.ID != 2 {
		t.Fatalf("recycled.ID = %v, want 2", recycled.ID)
	}
	if pool.PoolLen("oak") != 0 {
		t.Fatalf("PoolLen after reacquire = %d, want 0", pool.PoolLen("oak"))
	}
	if loader.calls != 1 {
		t.Fatalf("LoadModel called %d times, want 1", loader.calls)
	}
}

func TestTemplatePoolReleaseBeyondCapDestroys(t *testing.T) {
	loader := &countingLoader{}
	scene := &fakeSceneGraph{}
	pool := NewTemplatePool(loader, scene, 1, true)

	a, _ := pool.Acquire(context.Background(), 1, "oak", "obj/oak", "")
	b, _ := pool.Acquire(context.Background(), 2, "oak", "obj/oak", "")
	pool.Release("oak", a)
	pool.Release("oak", b)

	if pool.PoolLen("oak") != 1 {
		t.Fatalf("PoolLen = %d, want 1 (capped)", pool.PoolLen("oak"))
	}
	if scene.destroyed != 1 {
		t.Fatalf("destroyed = %d, want 1", scene.destroyed)
	}
}

// TestTemplatePoolDirectLoadFallback is spec.md §4.6 "direct load
// fallback": with use_templates disabled, Acquire loads per instance
// instead of cloning a cached template, and Release never pools the
// result.
func TestTemplatePoolDirectLoadFallback(t *testing.T) {
	loader := &countingLoader{}
	scene := &fakeSceneGraph{}
	pool := NewTemplatePool(loader, scene, 4, false)

	a, err := pool.Acquire(context.Background(), 1, "oak", "obj/oak", "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := pool.Acquire(context.Background(), 2, "oak", "obj/oak", "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("LoadModel called %d times, want 2 (one per instance)", loader.calls)
	}
	if a.FromPool || b.FromPool {
		t.Fatal("direct-loaded instances should never report FromPool")
	}

	pool.Release("oak", a)
	if pool.PoolLen("oak") != 0 {
		t.Fatalf("PoolLen = %d, want 0 (pooling bypassed)", pool.PoolLen("oak"))
	}
	if scene.destroyed != 1 {
		t.Fatalf("destroyed = %d, want 1", scene.destroyed)
	}
}

func TestTemplatePoolAcquireEmptyModelIDFails(t *testing.T) {
	loader := &countingLoader{}
	scene := &fakeSceneGraph{}
	pool := NewTemplatePool(loader, scene, 4, true)

	_, err := pool.Acquire(context.Background(), 1, "", "obj/oak", "")
	if !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("err = %v, want ErrNoTemplate", err)
	}
	if loader.calls != 0 {
		t.Fatalf("LoadModel called %d times, want 0", loader.calls)
	}
}

func TestTemplatePoolZeroCapAlwaysDestroys(t *testing.T) {
	loader := &countingLoader{}
	scene := &fakeSceneGraph{}
	pool := NewTemplatePool(loader, scene, 0, true)

	inst, _ := pool.Acquire(context.Background(), 1, "oak", "obj/oak", "")
	pool.Release("oak", inst)
	if scene.destroyed != 1 {
		t.Fatalf("destroyed = %d, want 1", scene.destroyed)
	}
	if pool.PoolLen("oak") != 0 {
		t.Fatalf("PoolLen = %d, want 0", pool.PoolLen("oak"))
	}
}
