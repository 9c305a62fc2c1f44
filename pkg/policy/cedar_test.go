package policy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

func newCedar(t *testing.T, cfg CedarConfig) *CedarPolicy {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p, err := NewCedarPolicy(cfg)
	if err != nil {
		t.Fatalf("NewCedarPolicy: %v", err)
	}
	return p
}

func TestCedarPolicy_LoadsEmbeddedPolicies(t *testing.T) {
	p := newCedar(t, CedarConfig{})
	if p.PolicyCount() == 0 {
		t.Error("embedded policy set must not be empty")
	}
}

func TestCedarPolicy_RejectsMalformedPolicies(t *testing.T) {
	_, err := NewCedarPolicy(CedarConfig{PolicyBytes: []byte("permit (")})
	if err == nil {
		t.Error("malformed policy source must fail to load")
	}
}

func TestCedarPolicy_BasicGrantsForUntrustedOperator(t *testing.T) {
	t.Log("An untrusted operator gets screen/input/clipboard but not transfer or unattended")

	p := newCedar(t, CedarConfig{})
	req := PairingRequest{
		DeviceID:   identity.NewID(),
		OperatorID: identity.NewID(),
		Requested:  PermAll,
	}

	dec, err := p.ApprovePairing(context.Background(), req)
	if err != nil {
		t.Fatalf("ApprovePairing: %v", err)
	}
	if !dec.Approved {
		t.Fatalf("pairing denied: %s", dec.Reason)
	}

	want := PermViewScreen | PermControlInput | PermClipboard
	if dec.Granted != want {
		t.Errorf("Granted = %v, want %v", dec.Granted, want)
	}
}

func TestCedarPolicy_TrustedOperatorGetsFullGrant(t *testing.T) {
	operator := identity.NewID()
	p := newCedar(t, CedarConfig{TrustedOperators: []identity.ID{operator}})

	dec, err := p.ApprovePairing(context.Background(), PairingRequest{
		DeviceID:   identity.NewID(),
		OperatorID: operator,
		Requested:  PermAll,
	})
	if err != nil {
		t.Fatalf("ApprovePairing: %v", err)
	}
	if !dec.Approved || dec.Granted != PermAll {
		t.Errorf("Granted = %v, want all permissions", dec.Granted)
	}
}

func TestCedarPolicy_DenyWhenNothingGrantable(t *testing.T) {
	p := newCedar(t, CedarConfig{})
	dec, err := p.ApprovePairing(context.Background(), PairingRequest{
		DeviceID:   identity.NewID(),
		OperatorID: identity.NewID(),
		Requested:  PermUnattended,
	})
	if err != nil {
		t.Fatalf("ApprovePairing: %v", err)
	}
	if dec.Approved {
		t.Error("untrusted unattended-only request must be denied")
	}
}

func TestCedarPolicy_ConsentUnattended(t *testing.T) {
	trusted := identity.NewID()
	p := newCedar(t, CedarConfig{TrustedOperators: []identity.ID{trusted}})

	t.Run("TrustedApproved", func(t *testing.T) {
		dec, err := p.RequestConsent(context.Background(), ConsentRequest{
			DeviceID:   identity.NewID(),
			OperatorID: trusted,
			Unattended: true,
		})
		if err != nil {
			t.Fatalf("RequestConsent: %v", err)
		}
		if dec.State != ConsentApproved {
			t.Errorf("State = %v, want approved", dec.State)
		}
	})

	t.Run("UntrustedDenied", func(t *testing.T) {
		dec, err := p.RequestConsent(context.Background(), ConsentRequest{
			DeviceID:   identity.NewID(),
			OperatorID: identity.NewID(),
			Unattended: true,
		})
		if err != nil {
			t.Fatalf("RequestConsent: %v", err)
		}
		if dec.State != ConsentDenied {
			t.Errorf("State = %v, want denied", dec.State)
		}
		if dec.Reason == "" {
			t.Error("denial must carry a reason")
		}
	})
}

func TestCedarPolicy_AttendedGoesToPrompt(t *testing.T) {
	t.Log("Attended connections passing policy still ask the local user")

	p := newCedar(t, CedarConfig{
		Prompt: func(req ConsentRequest, reply chan<- ConsentAnswer) {
			reply <- ConsentAnswer{Approved: false, Reason: "user clicked deny"}
		},
	})

	dec, err := p.RequestConsent(context.Background(), ConsentRequest{
		DeviceID:   identity.NewID(),
		OperatorID: identity.NewID(),
		Unattended: false,
	})
	if err != nil {
		t.Fatalf("RequestConsent: %v", err)
	}
	if dec.State != ConsentPending {
		t.Fatalf("State = %v, want pending", dec.State)
	}

	select {
	case ans := <-dec.Answer:
		if ans.Approved {
			t.Error("prompt denied, channel delivered approve")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no answer delivered")
	}
}

func TestCedarPolicy_AttendedWithoutPromptApproved(t *testing.T) {
	p := newCedar(t, CedarConfig{})
	dec, err := p.RequestConsent(context.Background(), ConsentRequest{
		DeviceID:   identity.NewID(),
		OperatorID: identity.NewID(),
		Unattended: false,
	})
	if err != nil {
		t.Fatalf("RequestConsent: %v", err)
	}
	if dec.State != ConsentApproved {
		t.Errorf("State = %v, want approved when no prompt is configured", dec.State)
	}
}
