package ebics

import (
	"fmt"

	"github.com/beevik/etree"
)

// Namespace is the EBICS H004 target namespace.
const Namespace = "urn:org:ebics:H004"

// Protocol version attributes carried by every request.
const (
	ProtocolVersion  = "H004"
	ProtocolRevision = "1"
)

// Validator checks a request document before it is sent.
type Validator interface {
	Validate(doc []byte) error
}

// StructureValidator checks the parts of the H004 request schemas that the
// bank rejects most often: root element, namespace, version attributes and
// the mandatory static header fields of each request type.
type StructureValidator struct{}

var staticFields = map[string][]string{
	"ebicsUnsecuredRequest":       {"HostID", "PartnerID", "UserID", "OrderDetails/OrderType", "OrderDetails/OrderAttribute", "SecurityMedium"},
	"ebicsNoPubKeyDigestsRequest": {"HostID", "Nonce", "Timestamp", "PartnerID", "UserID", "OrderDetails/OrderType", "OrderDetails/OrderAttribute", "SecurityMedium"},
}

var initFields = []string{
	"HostID", "Nonce", "Timestamp", "PartnerID", "UserID",
	"OrderDetails/OrderType", "OrderDetails/OrderAttribute", "BankPubKeyDigests", "SecurityMedium",
}

// Validate implements Validator.
func (StructureValidator) Validate(data []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return &SchemaValidationError{Reason: "malformed XML: " + err.Error()}
	}
	root := doc.Root()
	if root == nil {
		return &SchemaValidationError{Reason: "empty document"}
	}
	if root.NamespaceURI() != Namespace {
		return &SchemaValidationError{Reason: fmt.Sprintf("namespace %q, want %q", root.NamespaceURI(), Namespace)}
	}
	if v := root.SelectAttrValue("Version", ""); v != ProtocolVersion {
		return &SchemaValidationError{Reason: fmt.Sprintf("Version %q, want %q", v, ProtocolVersion)}
	}
	if r := root.SelectAttrValue("Revision", ""); r != ProtocolRevision {
		return &SchemaValidationError{Reason: fmt.Sprintf("Revision %q, want %q", r, ProtocolRevision)}
	}
	static := root.FindElement("./header/static")
	if static == nil {
		return &SchemaValidationError{Reason: "missing header/static"}
	}
	if root.FindElement("./header/mutable") == nil {
		return &SchemaValidationError{Reason: "missing header/mutable"}
	}
	if root.FindElement("./body") == nil {
		return &SchemaValidationError{Reason: "missing body"}
	}

	var required []string
	switch root.Tag {
	case "ebicsRequest":
		switch phase := root.FindElement("./header/mutable/TransactionPhase"); {
		case phase == nil:
			return &SchemaValidationError{Reason: "missing TransactionPhase"}
		case phase.Text() == PhaseInitialisation.String():
			required = initFields
		case phase.Text() == PhaseTransfer.String():
			required = []string{"HostID", "TransactionID"}
			if root.FindElement("./header/mutable/SegmentNumber") == nil {
				return &SchemaValidationError{Reason: "missing SegmentNumber"}
			}
		case phase.Text() == PhaseReceipt.String():
			required = []string{"HostID", "TransactionID"}
		default:
			return &SchemaValidationError{Reason: fmt.Sprintf("unknown TransactionPhase %q", phase.Text())}
		}
		if root.FindElement("./AuthSignature") == nil {
			return &SchemaValidationError{Reason: "missing AuthSignature"}
		}
	case "ebicsNoPubKeyDigestsRequest":
		required = staticFields[root.Tag]
		if root.FindElement("./AuthSignature") == nil {
			return &SchemaValidationError{Reason: "missing AuthSignature"}
		}
	case "ebicsUnsecuredRequest":
		required = staticFields[root.Tag]
	default:
		return &SchemaValidationError{Reason: fmt.Sprintf("unexpected root element %q", root.Tag)}
	}

	for _, path := range required {
		el := static.FindElement("./" + path)
		if el == nil {
			return &SchemaValidationError{Reason: "missing static header field " + path}
		}
		if len(el.ChildElements()) == 0 && el.Text() == "" {
			return &SchemaValidationError{Reason: "empty static header field " + path}
		}
	}
	return nil
}
