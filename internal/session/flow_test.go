package session

import (
	"testing"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain digits", "15551234567", "15551234567", false},
		{"leading plus", "+15551234567", "15551234567", false},
		{"formatted", "+1 (555) 123-4567", "15551234567", false},
		{"dots", "1.555.123.4567", "15551234567", false},
		{"empty", "", "", true},
		{"only separators", "+ -()", "", true},
		{"letters", "1555CALLNOW", "", true},
		{"too short", "123456", "", true},
		{"too long", "1234567890123456", "", true},
		{"minimum length", "1234567", "1234567", false},
		{"maximum length", "123456789012345", "123456789012345", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePhoneNumber(%q) error = %v, wantErr %t", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizePhoneNumber(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCodeDisplayFlow(t *testing.T) {
	flow := codeDisplayFlow{}

	art := flow.OnCodeReady("2@payload")
	if art == nil || art.Kind != ArtifactScannableCode || art.Payload != "2@payload" {
		t.Fatalf("Expected scannable-code artifact, got %+v", art)
	}
	if art.IssuedAt.IsZero() {
		t.Error("Artifact should carry an issue time")
	}
	if flow.NeedsPairingRequest() {
		t.Error("Code display flow must never request a pairing code")
	}
}

func TestPairingCodeFlow_OncePerAttempt(t *testing.T) {
	flow, err := newPairingCodeFlow("+15551234567")
	if err != nil {
		t.Fatalf("newPairingCodeFlow failed: %v", err)
	}

	if flow.PhoneNumber() != "15551234567" {
		t.Errorf("Expected normalized phone number, got %s", flow.PhoneNumber())
	}
	if !flow.NeedsPairingRequest() {
		t.Fatal("First check should request a pairing code")
	}
	if flow.NeedsPairingRequest() {
		t.Fatal("Second check within the same attempt must not request again")
	}

	// A new attempt resets the guard.
	flow.Reset()
	if !flow.NeedsPairingRequest() {
		t.Error("Guard should reset for a new attempt")
	}
}

func TestPairingCodeFlow_IgnoresScannableCodes(t *testing.T) {
	flow, err := newPairingCodeFlow("15551234567")
	if err != nil {
		t.Fatalf("newPairingCodeFlow failed: %v", err)
	}
	if art := flow.OnCodeReady("2@payload"); art != nil {
		t.Errorf("Pairing flow must ignore scannable codes, got %+v", art)
	}
}

func TestPairingCodeFlow_InvalidNumber(t *testing.T) {
	if _, err := newPairingCodeFlow("bogus"); err == nil {
		t.Fatal("Expected error for invalid phone number")
	}
}
