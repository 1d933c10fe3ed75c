package x3dh_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/x3dh"
)

// makeKey returns a fresh X25519 pair.
func makeKey(t *testing.T) domain.X25519KeyPair {
	t.Helper()
	kp, err := crypto.GenerateX25519(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return kp
}

func TestOutboundAndInboundSecretsAgree(t *testing.T) {
	aliceID, aliceBase := makeKey(t), makeKey(t)
	bobID, bobOTK := makeKey(t), makeKey(t)

	out, err := x3dh.OutboundSecret(aliceID.Private, aliceBase.Private, bobID.Public, bobOTK.Public)
	if err != nil {
		t.Fatalf("OutboundSecret: %v", err)
	}
	in, err := x3dh.InboundSecret(bobID.Private, bobOTK.Private, aliceID.Public, aliceBase.Public)
	if err != nil {
		t.Fatalf("InboundSecret: %v", err)
	}
	if len(out) != x3dh.SecretSize {
		t.Fatalf("secret length %d, want %d", len(out), x3dh.SecretSize)
	}
	if !bytes.Equal(out, in) {
		t.Fatal("secrets differ")
	}
}

func TestWrongOneTimeKeyDiffers(t *testing.T) {
	aliceID, aliceBase := makeKey(t), makeKey(t)
	bobID, bobOTK, other := makeKey(t), makeKey(t), makeKey(t)

	out, err := x3dh.OutboundSecret(aliceID.Private, aliceBase.Private, bobID.Public, bobOTK.Public)
	if err != nil {
		t.Fatalf("OutboundSecret: %v", err)
	}
	in, err := x3dh.InboundSecret(bobID.Private, other.Private, aliceID.Public, aliceBase.Public)
	if err != nil {
		t.Fatalf("InboundSecret: %v", err)
	}
	if bytes.Equal(out, in) {
		t.Fatal("secrets must differ when the one-time key differs")
	}
}

func TestVerifyBundle(t *testing.T) {
	edPriv, edPub, err := crypto.GenerateEd25519(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	bundle := domain.KeyBundle{
		Username:     "bob",
		IdentityKeys: domain.IdentityKeys{Curve25519: makeKey(t).Public, Ed25519: edPub},
		OneTimeKeys:  []domain.OneTimeKey{{ID: "AAAAAQ", Key: makeKey(t).Public}},
	}
	bundle.Signature = crypto.SignEd25519(edPriv, bundle.SignedBytes())
	if err := x3dh.VerifyBundle(bundle); err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}

	bundle.OneTimeKeys[0].Key = makeKey(t).Public
	if err := x3dh.VerifyBundle(bundle); err != x3dh.ErrBadBundle {
		t.Fatalf("tampered bundle: got %v, want ErrBadBundle", err)
	}
}
