package descriptor

import "testing"

func TestRegisterDensityAndDedup(t *testing.T) {
	r := New()
	a := r.Register("site:a", On, "A", "x.go", 1, Block, 0, false)
	b := r.Register("site:b", On, "B", "x.go", 2, Block, 0, false)
	aAgain := r.Register("site:a", Off, "A-renamed", "y.go", 99, Event, 0xff, false)

	if a.ID != 0 || b.ID != 1 {
		t.Fatalf("expected dense ids 0,1; got %d,%d", a.ID, b.ID)
	}
	if aAgain != a {
		t.Fatalf("re-registering an existing site key must return the original handle")
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if r.ByID(0) != a || r.ByID(1) != b {
		t.Fatalf("ByID did not return the expected descriptors")
	}
	if r.ByID(2) != nil {
		t.Fatalf("ByID out of range should return nil")
	}
}

func TestSetStatus(t *testing.T) {
	r := New()
	d := r.Register("site:c", On, "C", "x.go", 1, Block, 0, false)
	if !r.SetStatus(d.ID, OffRecursive) {
		t.Fatalf("SetStatus on a valid id should succeed")
	}
	if d.Status != OffRecursive {
		t.Fatalf("SetStatus did not update the descriptor in place")
	}
	if r.SetStatus(999, On) {
		t.Fatalf("SetStatus on an unknown id should report failure")
	}
}

func TestStatusEnabledAndSuppressesChildren(t *testing.T) {
	cases := []struct {
		status             Status
		enabled            bool
		suppressesChildren bool
	}{
		{Off, false, false},
		{On, true, false},
		{ForceOn, true, false},
		{OffRecursive, true, true},
		{OnWithoutChildren, true, true},
		{ForceOnWithoutChildren, true, true},
	}
	for _, c := range cases {
		if got := c.status.Enabled(); got != c.enabled {
			t.Errorf("%v.Enabled() = %v, want %v", c.status, got, c.enabled)
		}
		if got := c.status.SuppressesChildren(); got != c.suppressesChildren {
			t.Errorf("%v.SuppressesChildren() = %v, want %v", c.status, got, c.suppressesChildren)
		}
	}
}

func TestAllLockedRequiresExplicitLock(t *testing.T) {
	r := New()
	r.Register("site:d", On, "D", "x.go", 1, Block, 0, false)

	r.Lock()
	defer r.Unlock()
	all := r.AllLocked()
	if len(all) != 1 || all[0].Name != "D" {
		t.Fatalf("AllLocked returned unexpected contents: %+v", all)
	}
}
