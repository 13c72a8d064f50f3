package reinf

import "fmt"

// EventType is one entry of the fixed EFD-REINF event catalogue: the 4-digit
// event code and the XML tag that carries the event inside a Reinf document.
type EventType struct {
	Code string
	Tag  string
}

// eventTypes is the static catalogue, ordered by code. Detection walks this
// list and takes the first tag found in a document.
var eventTypes = []EventType{
	{"1000", "evtInfoContri"},
	{"1070", "evtTabProcesso"},
	{"2010", "evtServTom"},
	{"2020", "evtServPrest"},
	{"2030", "evtAssocDespRec"},
	{"2040", "evtAssocDespRecPJ"},
	{"2050", "evtComProd"},
	{"2055", "evtAquis"},
	{"2060", "evtCPRB"},
	{"2098", "evtReabreEvPer"},
	{"2099", "evtFechaEvPer"},
	{"3010", "evtEspDesportivo"},
	{"4010", "evtInfoContriPF"},
	{"4020", "evtRetPJ"},
	{"4040", "evtBenefNId"},
	{"4080", "evtInfoMV"},
	{"4099", "evtFechaEvPer"},
	{"9000", "evtExclusao"},
	{"9001", "evtTotal"},
	{"9005", "evtRetornoMensal"},
	{"9011", "evtTotalDCTF"},
	{"9015", "evtRetornoTotal"},
}

// EventTypes returns the supported event catalogue in detection order.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// EventTypeByCode resolves an event code ("4020") to its catalogue entry.
func EventTypeByCode(code string) (EventType, error) {
	for _, et := range eventTypes {
		if et.Code == code {
			return et, nil
		}
	}
	return EventType{}, &UnknownEventTypeError{Code: code}
}

// UnknownEventTypeError reports a document whose event tag matches no entry of
// the catalogue, or an unsupported event code.
type UnknownEventTypeError struct {
	Code string
}

func (e *UnknownEventTypeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("unknown event type %q", e.Code)
	}
	return "no known event tag found in document"
}

// ElementNotFoundError reports that the expected event element is missing from
// a document that claimed its type.
type ElementNotFoundError struct {
	Tag string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found in document", e.Tag)
}
