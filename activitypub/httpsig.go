package activitypub

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"

	"code.superseriousbusiness.org/httpsig"
)

// ErrInvalidSignature is the single failure mode of signature verification.
// Callers never learn whether the header was missing, the key was bad or the
// crypto check failed; the distinction only shows up in logs.
var ErrInvalidSignature = errors.New("invalid signature")

// signedHeaderSet is what outbound requests sign: the request target plus the
// headers mainstream servers expect to be covered.
var signedHeaderSet = []string{"(request-target)", "host", "date", "digest"}

// SignRequest signs an outgoing request in place with the actor's private
// key. The Date and Digest headers must already be set; keyId is the key IRI
// ("https://example.com/actors/alice#main-key").
func SignRequest(req *http.Request, privateKeyPem, keyId string) error {
	privateKey, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaderSet,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	return signer.SignRequest(privateKey, keyId, req, nil)
}

// VerifyRequest checks the Signature header of an inbound request against
// the sender's published public key. The signed headers, the method and the
// path all come from the request itself.
func VerifyRequest(req *http.Request, publicKeyPem string) error {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	publicKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		return ErrInvalidSignature
	}

	return nil
}

// ParsePrivateKey converts PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}

// ParsePublicKey converts PEM string to *rsa.PublicKey. Remote servers
// publish PKIX "PUBLIC KEY" blocks, but the occasional PKCS1 "RSA PUBLIC
// KEY" shows up too.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		rsaPubKey, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return rsaPubKey, nil
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPubKey, nil
}
