package entity

import (
	"testing"

	"github.com/yohamta/donburi"

	"github.com/kestrelworks/worldstream"
)

func TestNewDonburiInstanceStore(t *testing.T) {
	world := donburi.NewWorld()
	store := NewDonburiInstanceStore(world)
	if store == nil {
		t.Fatal("NewDonburiInstanceStore returned nil")
	}
}

func TestDonburiInstanceStore_NewGetDelete(t *testing.T) {
	world := donburi.NewWorld()
	store := NewDonburiInstanceStore(world)

	st := store.New(1, "barrel01")
	if st.TemplateID != "barrel01" {
		t.Fatalf("TemplateID = %q, want barrel01", st.TemplateID)
	}
	if !st.Desired.Visible || !st.Desired.Solid {
		t.Fatalf("new instance should default to visible+solid, got %+v", st.Desired)
	}

	got, ok := store.Get(1)
	if !ok {
		t.Fatal("Get(1) not found after New")
	}
	got.PendingActions = 3
	again, _ := store.Get(1)
	if again.PendingActions != 3 {
		t.Fatalf("mutation through Get did not persist: got %d", again.PendingActions)
	}

	store.Delete(1)
	if _, ok := store.Get(1); ok {
		t.Fatal("Get(1) still found after Delete")
	}
}

func TestDonburiInstanceStore_GetMissing(t *testing.T) {
	world := donburi.NewWorld()
	store := NewDonburiInstanceStore(world)
	if _, ok := store.Get(99); ok {
		t.Fatal("Get on unknown id should report false")
	}
}
