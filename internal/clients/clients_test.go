package clients

import (
	"errors"
	"testing"

	"github.com/i474232898/weather-shell/internal/installprompt"
)

func TestOpenOrFocusWithNoClients(t *testing.T) {
	r := NewRegistry()

	c, opened := r.OpenOrFocus("/")
	if !opened {
		t.Fatal("expected a new window to be opened")
	}
	if c.URL != "/" || !c.Focused {
		t.Fatalf("unexpected client %+v", c)
	}
	if len(r.MatchAll()) != 1 {
		t.Fatal("expected exactly one client")
	}
}

func TestOpenOrFocusReusesMatchingClient(t *testing.T) {
	r := NewRegistry()
	root := r.Register("https://weather.local/", false)
	other := r.Register("/settings", false)

	c, opened := r.OpenOrFocus("/")
	if opened {
		t.Fatal("expected existing window to be focused")
	}
	if c.ID != root.ID || !c.Focused {
		t.Fatalf("expected root client focused, got %+v", c)
	}

	got, _ := r.Get(other.ID)
	if got.Focused {
		t.Fatal("only one client can be focused")
	}
}

func TestClaim(t *testing.T) {
	r := NewRegistry()
	a := r.Register("/", false)
	r.Register("/", false)

	if n := r.Claim("v2"); n != 2 {
		t.Fatalf("expected 2 claimed, got %d", n)
	}
	if n := r.Claim("v2"); n != 0 {
		t.Fatalf("claim is idempotent, got %d", n)
	}
	got, _ := r.Get(a.ID)
	if got.Controller != "v2" {
		t.Fatalf("expected controller v2, got %q", got.Controller)
	}
}

func TestRemoveAndPrompt(t *testing.T) {
	r := NewRegistry()
	c := r.Register("/", true)
	if c.InstallState != installprompt.StateInstalled {
		t.Fatalf("standalone client should start installed, got %s", c.InstallState)
	}

	m, err := r.Prompt(c.ID)
	if err != nil || m == nil {
		t.Fatalf("prompt: %v", err)
	}

	if err := r.Remove(c.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.Get(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.Remove(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
