package ratchet_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/ratchet"
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

// pair sets up Alice and Bob as if a handshake had produced secret.
func pair(t *testing.T) (alice, bob *ratchet.State) {
	t.Helper()
	secret := bytes.Repeat([]byte{0x42}, 96)
	aliceRatchet := makeKey(t)
	return ratchet.InitAsAlice(secret, aliceRatchet), ratchet.InitAsBob(secret, aliceRatchet.Public)
}

func send(t *testing.T, st *ratchet.State, msg string) []byte {
	t.Helper()
	ct, err := ratchet.Encrypt(st, rand.Reader, []byte(msg))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return ct
}

func recv(t *testing.T, st *ratchet.State, ct []byte, want string) {
	t.Helper()
	pt, err := ratchet.Decrypt(st, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != want {
		t.Fatalf("got %q, want %q", pt, want)
	}
}

func TestRatchet_OneRoundTrip(t *testing.T) {
	alice, bob := pair(t)

	recv(t, bob, send(t, alice, "hi"), "hi")
	recv(t, alice, send(t, bob, "hello"), "hello")
	recv(t, bob, send(t, alice, "again"), "again")

	if len(alice.ReceiverChains) != 1 || len(bob.ReceiverChains) != 2 {
		t.Fatalf("receiver chains: alice=%d bob=%d", len(alice.ReceiverChains), len(bob.ReceiverChains))
	}
}

func TestRatchet_ReceiverChainsCapped(t *testing.T) {
	alice, bob := pair(t)
	for i := 0; i < 2*ratchet.MaxReceiverChains; i++ {
		recv(t, bob, send(t, alice, "a"), "a")
		recv(t, alice, send(t, bob, "b"), "b")
	}
	if len(alice.ReceiverChains) != ratchet.MaxReceiverChains {
		t.Fatalf("alice has %d receiver chains", len(alice.ReceiverChains))
	}
	if len(bob.ReceiverChains) != ratchet.MaxReceiverChains {
		t.Fatalf("bob has %d receiver chains", len(bob.ReceiverChains))
	}
}

func TestRatchet_OutOfOrderWithinChain(t *testing.T) {
	alice, bob := pair(t)
	var cts [][]byte
	for i := 0; i < 5; i++ {
		cts = append(cts, send(t, alice, fmt.Sprintf("m%d", i)))
	}

	recv(t, bob, cts[3], "m3")
	if len(bob.SkippedKeys) != 3 {
		t.Fatalf("skipped keys = %d, want 3", len(bob.SkippedKeys))
	}
	recv(t, bob, cts[0], "m0")
	recv(t, bob, cts[4], "m4")
	recv(t, bob, cts[2], "m2")
	recv(t, bob, cts[1], "m1")
	if len(bob.SkippedKeys) != 0 {
		t.Fatalf("skipped keys = %d, want 0", len(bob.SkippedKeys))
	}

	// A replayed message has no key left.
	if _, err := ratchet.Decrypt(bob, cts[1]); !errors.Is(err, ratchet.ErrUnknownMessageIndex) {
		t.Fatalf("replay: got %v, want ErrUnknownMessageIndex", err)
	}
}

func TestRatchet_OutOfOrderAcrossChains(t *testing.T) {
	alice, bob := pair(t)
	first := send(t, alice, "first")
	second := send(t, alice, "second")
	recv(t, bob, second, "second")
	recv(t, alice, send(t, bob, "reply"), "reply")
	third := send(t, alice, "third")

	recv(t, bob, third, "third")
	recv(t, bob, first, "first")
}

func TestRatchet_SkippedKeysCapped(t *testing.T) {
	alice, bob := pair(t)
	var cts [][]byte
	for i := 0; i < ratchet.MaxSkippedKeys+10; i++ {
		cts = append(cts, send(t, alice, "x"))
	}
	last := send(t, alice, "last")
	recv(t, bob, last, "last")
	if len(bob.SkippedKeys) != ratchet.MaxSkippedKeys {
		t.Fatalf("skipped keys = %d, want %d", len(bob.SkippedKeys), ratchet.MaxSkippedKeys)
	}
	// The oldest keys were evicted.
	if _, err := ratchet.Decrypt(bob, cts[0]); !errors.Is(err, ratchet.ErrUnknownMessageIndex) {
		t.Fatalf("evicted key: got %v", err)
	}
	recv(t, bob, cts[len(cts)-1], "x")
}

func TestRatchet_TamperedMessageLeavesStateIntact(t *testing.T) {
	alice, bob := pair(t)
	ct := send(t, alice, "secret")

	bad := append([]byte(nil), ct...)
	bad[len(bad)-1] ^= 0x01
	if _, err := ratchet.Decrypt(bob, bad); !errors.Is(err, ratchet.ErrDecrypt) {
		t.Fatalf("tampered MAC: got %v, want ErrDecrypt", err)
	}
	bad = append([]byte(nil), ct...)
	bad[len(bad)-12] ^= 0x01
	if _, err := ratchet.Decrypt(bob, bad); !errors.Is(err, ratchet.ErrDecrypt) {
		t.Fatalf("tampered ciphertext: got %v, want ErrDecrypt", err)
	}
	if len(bob.SkippedKeys) != 0 || bob.ReceiverChains[0].ChainKey.Index != 0 {
		t.Fatal("state advanced on a failed decrypt")
	}
	recv(t, bob, ct, "secret")
}

func TestRatchet_TooFarAhead(t *testing.T) {
	alice, bob := pair(t)
	alice.SenderChain.ChainKey.Index = ratchet.MaxMessageGap + 1
	ct := send(t, alice, "far")
	if _, err := ratchet.Decrypt(bob, ct); !errors.Is(err, ratchet.ErrMessageTooFarAhead) {
		t.Fatalf("got %v, want ErrMessageTooFarAhead", err)
	}
}

func TestRatchet_MalformedInput(t *testing.T) {
	_, bob := pair(t)
	for _, in := range [][]byte{nil, {3}, bytes.Repeat([]byte{0xFF}, 40)} {
		if _, err := ratchet.Decrypt(bob, in); !errors.Is(err, ratchet.ErrBadMessage) {
			t.Fatalf("input %x: got %v, want ErrBadMessage", in, err)
		}
	}
}
