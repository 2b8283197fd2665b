package auth

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"command":"make report","tags":{"team":"data"}}`)
	sig := Sign(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{name: "prefixed", body: body, signature: sig, secret: secret},
		{name: "bare hex", body: body, signature: strings.TrimPrefix(sig, "sha256="), secret: secret},
		{name: "tampered body", body: []byte(`{"command":"rm -rf /"}`), signature: sig, secret: secret, wantErr: true},
		{name: "wrong secret", body: body, signature: sig, secret: "other", wantErr: true},
		{name: "empty signature", body: body, signature: "", secret: secret, wantErr: true},
		{name: "empty secret", body: body, signature: sig, secret: "", wantErr: true},
		{name: "malformed hex", body: body, signature: "sha256=zz", secret: secret, wantErr: true},
		{name: "zero signature", body: body, signature: strings.Repeat("0", 64), secret: secret, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.body, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err != ErrBadSignature {
				t.Fatalf("error = %v, want ErrBadSignature", err)
			}
		})
	}
}
