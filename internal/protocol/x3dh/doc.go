// Package x3dh implements the triple Diffie–Hellman handshake that bootstraps
// an Olm session between two devices.
//
// # Overview
//
// The initiator (Alice) holds an identity key and generates a fresh base key.
// The responder (Bob) has published an identity key and a pool of one-time
// keys, signed with his Ed25519 key in a KeyBundle. Alice claims one of the
// one-time keys and both sides compute the same 96-byte secret:
//
//	Alice: DH(IKa, OTKb) || DH(EKa, IKb) || DH(EKa, OTKb)
//	Bob:   DH(OTKb, IKa) || DH(IKb, EKa) || DH(OTKb, EKa)
//
// The ratchet package turns the secret into the root and first chain key.
//
// # Errors
//
// ErrBadBundle is returned when the bundle signature fails verification.
// Other errors come from X25519 rejecting a low-order peer key.
package x3dh
