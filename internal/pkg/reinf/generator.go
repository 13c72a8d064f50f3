package reinf

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Evt4020Namespace is the schema namespace of the 4020 payment-to-legal-entity
// withholding event.
const Evt4020Namespace = "http://www.reinf.esocial.gov.br/schemas/evt4020PagtoBeneficiarioPJ/v2_01_02"

// GeneratorConfig carries the constants embedded into every generated event.
// Zero values are replaced by the regulatory defaults.
type GeneratorConfig struct {
	NrInsc      string // contributor tax id (CNPJ)
	NrInscEstab string // establishment tax id
	IndRetif    string // rectification indicator, default "1" (original file)
	TpAmb       string // environment, default "1" (production)
	ProcEmi     string // emitting process, default "2" (employer software)
	VerProc     string // emitting process version
	TpInsc      string // contributor inscription type, default "1" (CNPJ)
	TpInscEstab string // establishment inscription type, default "1"
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.IndRetif == "" {
		c.IndRetif = "1"
	}
	if c.TpAmb == "" {
		c.TpAmb = "1"
	}
	if c.ProcEmi == "" {
		c.ProcEmi = "2"
	}
	if c.VerProc == "" {
		c.VerProc = "ReinfWeb"
	}
	if c.TpInsc == "" {
		c.TpInsc = "1"
	}
	if c.TpInscEstab == "" {
		c.TpInscEstab = "1"
	}
	return c
}

// GeneratedXml is one rendered event document and the identifier embedded in
// its id attribute.
type GeneratedXml struct {
	ID      string
	Content string
}

// Generator renders validated payloads into 4020 event documents. The
// sequence counter is explicit and atomic, so one generator may be shared by
// concurrent renders; identifiers are monotonic per generator instance only.
// A fresh generator restarts at 1, which can collide with a previous run in
// the same second for the same tax id — known limitation, kept deliberately.
type Generator struct {
	cfg GeneratorConfig
	seq atomic.Int64
	now func() time.Time
}

// NewGenerator creates a generator for one contributor.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg.withDefaults(), now: time.Now}
}

// NextID produces the next event identifier:
// {tpInsc}{nrInsc}{yyyyMMddHHmmss}{sequence:05d}.
func (g *Generator) NextID() string {
	seq := g.seq.Add(1)
	return fmt.Sprintf("%s%s%s%05d",
		g.cfg.TpInsc, g.cfg.NrInsc, g.now().Format("20060102150405"), seq)
}

// Generate renders one payload as a minified, namespaced event document.
func (g *Generator) Generate(p *EventPayload) (*GeneratedXml, error) {
	if p == nil {
		return nil, fmt.Errorf("nil event payload")
	}
	id := g.NextID()

	var b strings.Builder
	fmt.Fprintf(&b, `<Reinf xmlns="%s">`, Evt4020Namespace)
	fmt.Fprintf(&b, `<evtRetPJ id="ID%s">`, id)
	b.WriteString("<ideEvento>")
	fmt.Fprintf(&b, "<indRetif>%s</indRetif>", g.cfg.IndRetif)
	fmt.Fprintf(&b, "<perApur>%s</perApur>", p.PerApur)
	fmt.Fprintf(&b, "<tpAmb>%s</tpAmb>", g.cfg.TpAmb)
	fmt.Fprintf(&b, "<procEmi>%s</procEmi>", g.cfg.ProcEmi)
	fmt.Fprintf(&b, "<verProc>%s</verProc>", g.cfg.VerProc)
	b.WriteString("</ideEvento>")
	b.WriteString("<ideContri>")
	fmt.Fprintf(&b, "<tpInsc>%s</tpInsc>", g.cfg.TpInsc)
	fmt.Fprintf(&b, "<nrInsc>%s</nrInsc>", g.cfg.NrInsc)
	b.WriteString("</ideContri>")
	b.WriteString("<ideEstab>")
	fmt.Fprintf(&b, "<tpInscEstab>%s</tpInscEstab>", g.cfg.TpInscEstab)
	fmt.Fprintf(&b, "<nrInscEstab>%s</nrInscEstab>", g.cfg.NrInscEstab)
	b.WriteString("<ideBenef>")
	fmt.Fprintf(&b, "<cnpjBenef>%s</cnpjBenef>", p.CnpjBenef)
	b.WriteString("<idePgto>")
	fmt.Fprintf(&b, "<natRend>%s</natRend>", p.NatRend)
	b.WriteString("<infoPgto>")
	fmt.Fprintf(&b, "<dtFG>%s</dtFG>", p.DtFG)
	fmt.Fprintf(&b, "<vlrBruto>%s</vlrBruto>", p.VlrBruto)
	b.WriteString("<retencoes>")
	fmt.Fprintf(&b, "<vlrBaseAgreg>%s</vlrBaseAgreg>", p.VlrBaseAgreg)
	fmt.Fprintf(&b, "<vlrAgreg>%s</vlrAgreg>", p.VlrAgreg)
	b.WriteString("</retencoes>")
	b.WriteString("</infoPgto>")
	b.WriteString("</idePgto>")
	b.WriteString("</ideBenef>")
	b.WriteString("</ideEstab>")
	b.WriteString("</evtRetPJ>")
	b.WriteString("</Reinf>")

	return &GeneratedXml{ID: id, Content: MinifyXML(b.String())}, nil
}
