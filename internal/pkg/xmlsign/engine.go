package xmlsign

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/reinfweb/ReinfWeb/internal/pkg/reinf"
)

// Engine signs REINF event documents with an enveloped XML-DSig signature
// (RSA-SHA256, SHA-256 digests, inclusive canonicalization) and verifies
// documents signed the same way. Safe for concurrent use: the credential is
// read-only after construction.
type Engine struct {
	credential *Credential
}

// NewEngine creates a signing engine around a loaded credential.
func NewEngine(credential *Credential) (*Engine, error) {
	if credential == nil {
		return nil, fmt.Errorf("nil credential")
	}
	return &Engine{credential: credential}, nil
}

// NewEngineFromEnv loads the credential from CERTIFICATE_PATH and
// CERTIFICATE_PASSWORD and builds an engine around it.
func NewEngineFromEnv() (*Engine, error) {
	cred, err := LoadCredentialFromEnv()
	if err != nil {
		return nil, err
	}
	return NewEngine(cred)
}

// SignedDocument is the result of signing one event document.
type SignedDocument struct {
	EventCode string // resolved event type code, e.g. "4020"
	ElementID string // value of the signed element's Id attribute
	Content   string // serialized document, declaration included
}

// Sign locates the event element of the document, guarantees it carries an Id
// attribute, and appends a signature referencing it under the document root.
// eventCode selects the event type explicitly; pass "" to detect it from the
// document's tags.
func (e *Engine) Sign(xmlContent, eventCode string) (*SignedDocument, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlContent); err != nil {
		return nil, fmt.Errorf("parse event document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("event document has no root element")
	}

	var et reinf.EventType
	if eventCode == "" {
		detected, err := DetectEventType(root)
		if err != nil {
			return nil, err
		}
		et = detected
	} else {
		found, err := reinf.EventTypeByCode(eventCode)
		if err != nil {
			return nil, err
		}
		et = found
	}

	target := findElementByTag(root, et.Tag)
	if target == nil {
		return nil, &reinf.ElementNotFoundError{Tag: et.Tag}
	}

	idAttr, idValue := ensureID(target, et.Code)

	keyStore := dsig.TLSCertKeyStore(e.credential.tlsCertificate())
	ctx := dsig.NewDefaultSigningContext(keyStore)
	ctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()
	ctx.IdAttribute = idAttr

	// The signature references the event element but sits under the document
	// root, as its last child.
	sig, err := ctx.ConstructSignature(target, true)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", et.Tag, err)
	}
	root.AddChild(sig)

	doc.Indent(etree.NoIndent)
	body, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serialize signed document: %w", err)
	}
	return &SignedDocument{
		EventCode: et.Code,
		ElementID: idValue,
		Content:   reinf.XMLDeclaration + strings.TrimSpace(body),
	}, nil
}

// VerifySignature checks the enveloped signature of a signed document against
// the certificate embedded in its KeyInfo. A document without a Signature
// element is unsigned, not broken: the answer is simply false.
func (e *Engine) VerifySignature(xmlContent string) bool {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlContent); err != nil {
		return false
	}
	root := doc.Root()
	if root == nil {
		return false
	}
	sig := findElementByTag(root, "Signature")
	if sig == nil {
		return false
	}

	cert := embeddedCertificate(sig)
	if cert == nil {
		cert = e.credential.Certificate
	}

	// Validation wants the signature inside the element it references. The
	// signature is written under the document root, so move it into the
	// referenced element first; the enveloped transform strips it back out
	// before the digest is recomputed.
	signedEl := signedTarget(root, sig)
	if signedEl == nil {
		signedEl = sig.Parent()
	}
	if signedEl == nil {
		return false
	}
	if parent := sig.Parent(); parent != nil && parent != signedEl {
		parent.RemoveChild(sig)
		signedEl.AddChild(sig)
	}

	store := &dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}}
	for _, idAttr := range []string{"Id", "id"} {
		ctx := dsig.NewDefaultValidationContext(store)
		ctx.IdAttribute = idAttr
		if _, err := ctx.Validate(signedEl); err == nil {
			return true
		}
	}
	return false
}

// signedTarget resolves the element the signature's Reference URI points at.
func signedTarget(root, sig *etree.Element) *etree.Element {
	refEl := findElementByTag(sig, "Reference")
	if refEl == nil {
		return nil
	}
	id := strings.TrimPrefix(refEl.SelectAttrValue("URI", ""), "#")
	if id == "" {
		return nil
	}
	return findElementByID(root, id)
}

func findElementByID(el *etree.Element, id string) *etree.Element {
	for _, name := range []string{"Id", "id"} {
		if el.SelectAttrValue(name, "") == id {
			return el
		}
	}
	for _, child := range el.ChildElements() {
		if found := findElementByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// DetectEventType resolves the event type by probing the document for each
// known event tag.
func DetectEventType(root *etree.Element) (reinf.EventType, error) {
	for _, et := range reinf.EventTypes() {
		if findElementByTag(root, et.Tag) != nil {
			return et, nil
		}
	}
	return reinf.EventType{}, &reinf.UnknownEventTypeError{}
}

// ensureID returns the name and value of the element's id attribute, creating
// a synthesized "ID{code}{random}" value when the element has none.
func ensureID(el *etree.Element, code string) (attr, value string) {
	for _, name := range []string{"Id", "id"} {
		if a := el.SelectAttr(name); a != nil && a.Value != "" {
			return name, a.Value
		}
	}
	value = "ID" + code + randomHex(8)
	el.CreateAttr("Id", value)
	return "Id", value
}

func randomHex(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// findElementByTag walks the tree depth-first and returns the first element
// whose local name matches tag, regardless of namespace prefix. Documents use
// either a default namespace on the root or none at all, so local-name
// matching covers both.
func findElementByTag(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findElementByTag(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// embeddedCertificate pulls the X509Certificate out of the signature's
// KeyInfo, if present.
func embeddedCertificate(sig *etree.Element) *x509.Certificate {
	certEl := findElementByTag(sig, "X509Certificate")
	if certEl == nil {
		return nil
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil {
		return nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil
	}
	return cert
}
