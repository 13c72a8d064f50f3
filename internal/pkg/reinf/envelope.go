package reinf

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// LotNamespace is the schema namespace of the asynchronous lot submission
// envelope.
const LotNamespace = "http://www.reinf.esocial.gov.br/schemas/envioLoteEventosAssincrono/v1_00_00"

// MaxEventsPerLot is the REINF-imposed ceiling of events per lot.
const MaxEventsPerLot = 50

// LotMember is one signed event going into a lot. Element carries the parsed
// document for the generated variant; Raw carries the already-serialized
// (declaration-stripped) text for the ingested variant.
type LotMember struct {
	ID      string
	Element *etree.Element
	Raw     string
}

// EnvelopeRenderer renders one lot document around a group of signed events.
// The two implementations are the two envelope schemas the pipeline emits:
// one for events generated and signed here, one for events signed elsewhere
// and ingested from an archive.
type EnvelopeRenderer interface {
	Render(members []LotMember) (string, error)
}

// GeneratedLotEnvelope builds the envioLoteEventosAssincrono document for
// events this service generated and stored: each member's parsed document is
// re-embedded under an <evento> element carrying the member id.
type GeneratedLotEnvelope struct {
	TpInsc string
	NrInsc string
}

func (e GeneratedLotEnvelope) Render(members []LotMember) (string, error) {
	if len(members) == 0 {
		return "", fmt.Errorf("empty lot")
	}
	if len(members) > MaxEventsPerLot {
		return "", fmt.Errorf("lot of %d events exceeds the maximum of %d", len(members), MaxEventsPerLot)
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("Reinf")
	root.CreateAttr("xmlns", LotNamespace)

	envio := root.CreateElement("envioLoteEventos")
	ideContrib := envio.CreateElement("ideContribuinte")
	ideContrib.CreateElement("tpInsc").SetText(e.TpInsc)
	ideContrib.CreateElement("nrInsc").SetText(e.NrInsc)

	eventos := envio.CreateElement("eventos")
	for _, m := range members {
		if m.Element == nil {
			return "", fmt.Errorf("lot member %q has no parsed document", m.ID)
		}
		evento := eventos.CreateElement("evento")
		evento.CreateAttr("id", "ID"+m.ID)
		evento.AddChild(m.Element.Copy())
	}

	body, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize lot: %w", err)
	}
	return XMLDeclaration + strings.TrimSpace(body), nil
}

// IngestedLotEnvelope renders a lot from pre-wrapped <evento> fragments by
// substituting them into the fixed base template's <ideContribuinte> and
// <eventos> regions.
type IngestedLotEnvelope struct {
	TpInsc       string
	NrInsc       string
	BaseTemplate string
}

func (e IngestedLotEnvelope) Render(members []LotMember) (string, error) {
	if len(members) == 0 {
		return "", fmt.Errorf("empty lot")
	}
	if len(members) > MaxEventsPerLot {
		return "", fmt.Errorf("lot of %d events exceeds the maximum of %d", len(members), MaxEventsPerLot)
	}

	base := e.BaseTemplate
	contrib := fmt.Sprintf("<tpInsc>%s</tpInsc><nrInsc>%s</nrInsc>", e.TpInsc, e.NrInsc)
	base, err := substituteRegion(base, "ideContribuinte", contrib)
	if err != nil {
		return "", err
	}

	var events strings.Builder
	for _, m := range members {
		events.WriteString(m.Raw)
	}
	base, err = substituteRegion(base, "eventos", events.String())
	if err != nil {
		return "", err
	}

	return XMLDeclaration + MinifyXML(base), nil
}

// substituteRegion replaces the content between <tag> and </tag> in the base
// template.
func substituteRegion(base, tag, content string) (string, error) {
	open := "<" + tag + ">"
	closing := "</" + tag + ">"
	start := strings.Index(base, open)
	end := strings.Index(base, closing)
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("base template has no <%s> region", tag)
	}
	return base[:start+len(open)] + content + base[end:], nil
}

// ChunkMembers partitions members into contiguous groups of at most size
// elements; the last group may be smaller. Zero members yields zero groups.
func ChunkMembers(members []LotMember, size int) [][]LotMember {
	if size < 1 || len(members) == 0 {
		return nil
	}
	var groups [][]LotMember
	for start := 0; start < len(members); start += size {
		end := start + size
		if end > len(members) {
			end = len(members)
		}
		groups = append(groups, members[start:end])
	}
	return groups
}
