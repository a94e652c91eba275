package rule

import "testing"

func TestRegistryAssignsSeparateIdSpaces(t *testing.T) {
	reg := NewRegistry()
	b0 := reg.AddBootstrap("t", Merge, nil, "bootstrap 0")
	s0 := reg.AddSteady("t", Merge, nil, "steady 0")
	s1 := reg.AddSteady("t", DeferMerge, nil, "steady 1")

	if b0.ID != 0 || !b0.IsBootstrap {
		t.Fatalf("unexpected bootstrap rule: %+v", b0)
	}
	if s0.ID != 0 || s0.IsBootstrap {
		t.Fatalf("unexpected steady rule 0: %+v", s0)
	}
	if s1.ID != 1 {
		t.Fatalf("expected steady rule 1 to have id 1, got %d", s1.ID)
	}
	if len(reg.Bootstrap()) != 1 || len(reg.Steady()) != 2 {
		t.Fatalf("unexpected registry sizes: bootstrap=%d steady=%d", len(reg.Bootstrap()), len(reg.Steady()))
	}
}
