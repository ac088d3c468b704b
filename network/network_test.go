package network

import "testing"

func buildLinkedPair(t *testing.T) (*Network, InterfaceID, InterfaceID) {
	n := New()
	a, err := n.AddRouter("A")
	if err != nil {
		t.Fatalf("AddRouter(A): %v", err)
	}
	b, err := n.AddRouter("B")
	if err != nil {
		t.Fatalf("AddRouter(B): %v", err)
	}
	ifA, err := n.AddInterface(a, "eth0")
	if err != nil {
		t.Fatalf("AddInterface(A): %v", err)
	}
	ifB, err := n.AddInterface(b, "eth0")
	if err != nil {
		t.Fatalf("AddInterface(B): %v", err)
	}
	if err := n.Pair(ifA, ifB); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	return n, ifA, ifB
}

func TestAddRouterDuplicate(t *testing.T) {
	n := New()
	if _, err := n.AddRouter("A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := n.AddRouter("A"); err == nil {
		t.Errorf("expected error on duplicate router name")
	}
}

func TestPairSymmetric(t *testing.T) {
	n, ifA, ifB := buildLinkedPair(t)
	if n.Interface(ifA).Match != ifB {
		t.Errorf("ifA.Match = %v, want %v", n.Interface(ifA).Match, ifB)
	}
	if n.Interface(ifB).Match != ifA {
		t.Errorf("ifB.Match = %v, want %v", n.Interface(ifB).Match, ifA)
	}
	if err := n.ValidatePairing(); err != nil {
		t.Errorf("ValidatePairing: %v", err)
	}
}

func TestValidatePairingDetectsBreakage(t *testing.T) {
	n, ifA, ifB := buildLinkedPair(t)
	// Introduce a third interface and re-point ifA at it, breaking symmetry.
	c, _ := n.AddRouter("C")
	ifC, _ := n.AddInterface(c, "eth0")
	n.interfaces[ifA].Match = ifC
	_ = ifB
	if err := n.ValidatePairing(); err == nil {
		t.Errorf("expected ValidatePairing to detect asymmetric pairing")
	}
}

func TestNullRouter(t *testing.T) {
	n := New()
	if !n.IsNull(NullRouterID) {
		t.Errorf("NullRouterID should be the null router")
	}
	if n.Router(NullRouterID).Name != "NULL" {
		t.Errorf("null router name = %q, want NULL", n.Router(NullRouterID).Name)
	}
}

func TestRouterByName(t *testing.T) {
	n, _, _ := buildLinkedPair(t)
	id, ok := n.RouterByName("B")
	if !ok {
		t.Fatalf("RouterByName(B) not found")
	}
	if n.Router(id).Name != "B" {
		t.Errorf("resolved router name = %q, want B", n.Router(id).Name)
	}
	if _, ok := n.RouterByName("nonexistent"); ok {
		t.Errorf("RouterByName should fail for unknown name")
	}
}

func TestRouterOf(t *testing.T) {
	n, ifA, _ := buildLinkedPair(t)
	a, _ := n.RouterByName("A")
	if got := n.RouterOf(ifA); got != a {
		t.Errorf("RouterOf(ifA) = %v, want %v", got, a)
	}
}
