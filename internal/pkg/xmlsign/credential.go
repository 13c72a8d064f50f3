package xmlsign

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/reinfweb/ReinfWeb/internal/pkg/env"
)

// Credential is a loaded signing key pair: the RSA private key and the
// certificate that will be embedded into the signature's KeyInfo.
type Credential struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// tlsCertificate adapts the credential for goxmldsig's key store.
func (c *Credential) tlsCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.Certificate.Raw},
		PrivateKey:  c.PrivateKey,
		Leaf:        c.Certificate,
	}
}

// LoadCredential reads a signing credential from a PKCS#12 container
// (.pfx/.p12, requires the passphrase) or a PEM bundle containing both the
// private key and the certificate.
func LoadCredential(path, password string) (*Credential, error) {
	if path == "" {
		return nil, fmt.Errorf("certificate path not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".pfx") || strings.HasSuffix(path, ".p12"):
		return credentialFromPKCS12(data, password)
	case strings.HasSuffix(path, ".pem"):
		return credentialFromPEM(data)
	default:
		return nil, fmt.Errorf("unsupported certificate format: %s", path)
	}
}

// LoadCredentialFromEnv loads the credential configured via CERTIFICATE_PATH
// and CERTIFICATE_PASSWORD.
func LoadCredentialFromEnv() (*Credential, error) {
	return LoadCredential(
		env.GetEnv("CERTIFICATE_PATH", ""),
		env.GetEnv("CERTIFICATE_PASSWORD", ""),
	)
}

func credentialFromPKCS12(data []byte, password string) (*Credential, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode pkcs12 container: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("pkcs12 container holds a %T, need an RSA key", key)
	}
	return &Credential{PrivateKey: rsaKey, Certificate: cert}, nil
}

func credentialFromPEM(data []byte) (*Credential, error) {
	var key *rsa.PrivateKey
	var cert *x509.Certificate

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse RSA private key: %w", err)
			}
			key = k
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse private key: %w", err)
			}
			rsaKey, ok := k.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("PEM bundle holds a %T, need an RSA key", k)
			}
			key = rsaKey
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate: %w", err)
			}
			if cert == nil {
				cert = c
			}
		}
	}

	if key == nil {
		return nil, fmt.Errorf("PEM bundle contains no private key")
	}
	if cert == nil {
		return nil, fmt.Errorf("PEM bundle contains no certificate")
	}
	return &Credential{PrivateKey: key, Certificate: cert}, nil
}
