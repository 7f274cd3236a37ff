package noise

import (
	"encoding/binary"

	"github.com/nexuswave/wacore/crypto"
)

// RootPublicKey is the hard-coded Ed25519 public key that every intermediate
// certificate in a server's cert chain must chain up to. It is a build-time
// constant of the deployment, not a secret.
var RootPublicKey = [32]byte{
	0x14, 0x23, 0x75, 0x57, 0x4d, 0xa, 0x58, 0x71,
	0x66, 0x9f, 0x1e, 0x77, 0x28, 0xc3, 0xe, 0x72,
	0xf9, 0x50, 0x8a, 0x36, 0xa, 0xb9, 0x6f, 0x56,
	0x5a, 0xea, 0x91, 0xd, 0x99, 0x5, 0x5d, 0x3d,
}

// IntermediateIssuerSerial is the issuer serial every intermediate cert in
// the chain must carry; it identifies the single root key generation the
// intermediate was issued under.
const IntermediateIssuerSerial uint32 = 0

// certDetails is the signed portion of one certificate in the chain: a
// serial number, the serial of the issuer that signed it, and the Ed25519
// public key it certifies.
type certDetails struct {
	Serial       uint32
	IssuerSerial uint32
	Key          [32]byte
}

func (d certDetails) marshal() []byte {
	buf := make([]byte, 4+4+32)
	binary.BigEndian.PutUint32(buf[0:4], d.Serial)
	binary.BigEndian.PutUint32(buf[4:8], d.IssuerSerial)
	copy(buf[8:], d.Key[:])
	return buf
}

func unmarshalCertDetails(b []byte) (certDetails, error) {
	if len(b) < 40 {
		return certDetails{}, ErrShortMessage
	}
	var d certDetails
	d.Serial = binary.BigEndian.Uint32(b[0:4])
	d.IssuerSerial = binary.BigEndian.Uint32(b[4:8])
	copy(d.Key[:], b[8:40])
	return d, nil
}

// signedCert pairs certDetails with the Ed25519 signature produced by its
// issuer over the marshaled details.
type signedCert struct {
	Details   certDetails
	Signature crypto.Signature
}

func unmarshalSignedCert(b []byte) (signedCert, []byte, error) {
	const detailsLen = 40
	if len(b) < detailsLen+crypto.SignatureSize {
		return signedCert{}, nil, ErrShortMessage
	}
	details, err := unmarshalCertDetails(b[:detailsLen])
	if err != nil {
		return signedCert{}, nil, err
	}
	var sig crypto.Signature
	copy(sig[:], b[detailsLen:detailsLen+crypto.SignatureSize])
	return signedCert{Details: details, Signature: sig}, b[detailsLen+crypto.SignatureSize:], nil
}

// CertChain is the decrypted handshake payload from Step2: an intermediate
// certificate signed by the hard-coded root, and a leaf certificate signed
// by the intermediate's key.
type CertChain struct {
	Intermediate signedCert
	Leaf         signedCert
}

// ParseCertChain decodes the two back-to-back signed certificates carried in
// the handshake payload.
func ParseCertChain(payload []byte) (*CertChain, error) {
	intermediate, rest, err := unmarshalSignedCert(payload)
	if err != nil {
		return nil, err
	}
	leaf, _, err := unmarshalSignedCert(rest)
	if err != nil {
		return nil, err
	}
	return &CertChain{Intermediate: intermediate, Leaf: leaf}, nil
}

// Verify checks the chain against the hard-coded root: the intermediate must
// be signed by RootPublicKey and carry IntermediateIssuerSerial, and the leaf
// must be signed by the intermediate's certified key.
func (c *CertChain) Verify() error {
	if c.Intermediate.Details.IssuerSerial != IntermediateIssuerSerial {
		return ErrCertChain
	}
	ok, err := crypto.Verify(c.Intermediate.Details.marshal(), c.Intermediate.Signature, RootPublicKey)
	if err != nil || !ok {
		return ErrCertChain
	}
	ok, err = crypto.Verify(c.Leaf.Details.marshal(), c.Leaf.Signature, c.Intermediate.Details.Key)
	if err != nil || !ok {
		return ErrCertChain
	}
	return nil
}

// LeafKey returns the Ed25519 public key certified by the leaf certificate —
// the key that should match the server's advertised identity.
func (c *CertChain) LeafKey() [32]byte { return c.Leaf.Details.Key }
