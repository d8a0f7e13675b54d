// Package xmlutils provides XML-related utility functions used throughout the application.
package xmlutils

// EBICSResponse contains the XPath expressions used to decode ebicsResponse
// and ebicsKeyManagementResponse documents. xmlpath matches local names, so
// the expressions hold for both roots regardless of namespace prefixes.
type EBICSResponse struct {
	// Header contains the static and mutable header values
	Header struct {
		TransactionID    string
		NumSegments      string
		TransactionPhase string
		SegmentNumber    string
		LastSegment      string
		ReturnCode       string
		ReportText       string
	}

	// Body contains the body values
	Body struct {
		ReturnCode             string
		OrderData              string
		TransactionKey         string
		EncryptionPubKeyDigest string
		EncryptionVersion      string
	}
}

// DefaultEBICSResponseXPaths returns an EBICSResponse struct with the default XPath expressions
func DefaultEBICSResponseXPaths() EBICSResponse {
	r := EBICSResponse{}

	r.Header.TransactionID = "//header/static/TransactionID"
	r.Header.NumSegments = "//header/static/NumSegments"
	r.Header.TransactionPhase = "//header/mutable/TransactionPhase"
	r.Header.SegmentNumber = "//header/mutable/SegmentNumber"
	r.Header.LastSegment = "//header/mutable/SegmentNumber/@lastSegment"
	r.Header.ReturnCode = "//header/mutable/ReturnCode"
	r.Header.ReportText = "//header/mutable/ReportText"

	r.Body.ReturnCode = "//body/ReturnCode"
	r.Body.OrderData = "//body/DataTransfer/OrderData"
	r.Body.TransactionKey = "//body/DataTransfer/DataEncryptionInfo/TransactionKey"
	r.Body.EncryptionPubKeyDigest = "//body/DataTransfer/DataEncryptionInfo/EncryptionPubKeyDigest"
	r.Body.EncryptionVersion = "//body/DataTransfer/DataEncryptionInfo/EncryptionPubKeyDigest/@Version"

	return r
}

// HPBOrderData contains the XPath expressions for the bank key order data
// returned by an HPB download.
type HPBOrderData struct {
	AuthenticationModulus  string
	AuthenticationExponent string
	AuthenticationVersion  string
	EncryptionModulus      string
	EncryptionExponent     string
	EncryptionVersion      string
	HostID                 string
}

// DefaultHPBOrderDataXPaths returns an HPBOrderData struct with the default XPath expressions
func DefaultHPBOrderDataXPaths() HPBOrderData {
	return HPBOrderData{
		AuthenticationModulus:  "/HPBResponseOrderData/AuthenticationPubKeyInfo/PubKeyValue/RSAKeyValue/Modulus",
		AuthenticationExponent: "/HPBResponseOrderData/AuthenticationPubKeyInfo/PubKeyValue/RSAKeyValue/Exponent",
		AuthenticationVersion:  "/HPBResponseOrderData/AuthenticationPubKeyInfo/AuthenticationVersion",
		EncryptionModulus:      "/HPBResponseOrderData/EncryptionPubKeyInfo/PubKeyValue/RSAKeyValue/Modulus",
		EncryptionExponent:     "/HPBResponseOrderData/EncryptionPubKeyInfo/PubKeyValue/RSAKeyValue/Exponent",
		EncryptionVersion:      "/HPBResponseOrderData/EncryptionPubKeyInfo/EncryptionVersion",
		HostID:                 "/HPBResponseOrderData/HostID",
	}
}
