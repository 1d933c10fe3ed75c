package opaque

import (
	"crypto/hmac"
	"errors"

	"github.com/gtank/ristretto255"
)

var errEnvelopeRecovery = errors.New("envelope recovery failed")

// Identifiers name the two parties in the transcript. A nil field falls
// back to that party's public key.
type Identifiers struct {
	Client []byte
	Server []byte
}

func (ids Identifiers) resolve(clientPK, serverPK []byte) (client, server []byte) {
	client, server = ids.Client, ids.Server
	if client == nil {
		client = clientPK
	}
	if server == nil {
		server = serverPK
	}
	return client, server
}

func cleartextCredentials(serverPK, clientPK []byte, ids Identifiers) []byte {
	client, server := ids.resolve(clientPK, serverPK)
	return concat(serverPK, lengthPrefixed(server), lengthPrefixed(client))
}

type envelopeKeys struct {
	clientSK  *ristretto255.Scalar
	clientPK  []byte
	authKey   []byte
	exportKey []byte
}

func deriveEnvelopeKeys(randomizedPassword, nonce []byte) (*envelopeKeys, error) {
	seed := expandString(randomizedPassword, nonce, "PrivateKey", Nseed)
	sk, pk, err := deriveKeyPair(seed, labelDeriveDHKeyPair)
	if err != nil {
		return nil, err
	}
	return &envelopeKeys{
		clientSK:  sk,
		clientPK:  pk.Bytes(),
		authKey:   expandString(randomizedPassword, nonce, "AuthKey", Nh),
		exportKey: expandString(randomizedPassword, nonce, "ExportKey", Nh),
	}, nil
}

// storeEnvelope seals the client's key derivation under a fresh nonce.
func (c *Config) storeEnvelope(randomizedPassword, serverPK []byte, ids Identifiers) (envelope []byte, keys *envelopeKeys, maskingKey []byte, err error) {
	nonce, err := c.randomBytes(Nn)
	if err != nil {
		return nil, nil, nil, err
	}
	keys, err = deriveEnvelopeKeys(randomizedPassword, nonce)
	if err != nil {
		return nil, nil, nil, err
	}
	tag := mac(keys.authKey, nonce, cleartextCredentials(serverPK, keys.clientPK, ids))
	maskingKey = expand(randomizedPassword, []byte("MaskingKey"), Nh)
	return concat(nonce, tag), keys, maskingKey, nil
}

func recoverEnvelope(randomizedPassword, serverPK, envelope []byte, ids Identifiers) (*envelopeKeys, error) {
	nonce, tag := envelope[:Nn], envelope[Nn:]
	keys, err := deriveEnvelopeKeys(randomizedPassword, nonce)
	if err != nil {
		return nil, err
	}
	expected := mac(keys.authKey, nonce, cleartextCredentials(serverPK, keys.clientPK, ids))
	if !hmac.Equal(tag, expected) {
		return nil, errEnvelopeRecovery
	}
	return keys, nil
}
