package reinf

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/beevik/etree"
)

// XMLDeclaration is prefixed to every serialized lot document.
const XMLDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

const idLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
const idAlphabet = idLetters + "0123456789"

// RandomEventID generates an alphanumeric identifier of the given length
// whose first character is always a letter, so it is a valid XML ID value.
func RandomEventID(length int) string {
	if length < 1 {
		length = 1
	}
	var b strings.Builder
	b.WriteByte(idLetters[randIndex(len(idLetters))])
	for i := 1; i < length; i++ {
		b.WriteByte(idAlphabet[randIndex(len(idAlphabet))])
	}
	return b.String()
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken
		panic(err)
	}
	return int(v.Int64())
}

// MinifyXML removes insignificant whitespace between elements and returns the
// document without declaration or indentation. Invalid input is returned
// unchanged so downstream hashing stays deterministic either way.
func MinifyXML(xmlStr string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlStr); err != nil || doc.Root() == nil {
		return xmlStr
	}
	stripWhitespace(doc.Root())
	out, err := doc.WriteToString()
	if err != nil {
		return xmlStr
	}
	return strings.TrimSpace(out)
}

// StripDeclaration drops a leading <?xml ...?> declaration from a document.
func StripDeclaration(xmlStr string) string {
	s := strings.TrimSpace(xmlStr)
	if strings.HasPrefix(s, "<?xml") {
		if end := strings.Index(s, "?>"); end != -1 {
			s = strings.TrimSpace(s[end+2:])
		}
	}
	return s
}

func stripWhitespace(el *etree.Element) {
	// Walk a copy: RemoveChild mutates el.Child.
	children := make([]etree.Token, len(el.Child))
	copy(children, el.Child)
	for _, child := range children {
		switch t := child.(type) {
		case *etree.CharData:
			if strings.TrimSpace(t.Data) == "" {
				el.RemoveChild(t)
			}
		case *etree.Element:
			stripWhitespace(t)
		}
	}
}
