package ebics

import "fmt"

// Technical return codes with protocol meaning.
const (
	CodeOK                      = 0
	CodeDownloadPostprocessDone = 11000
	CodeDownloadPostprocessSkip = 11001
	CodeRecoverySync            = 61101
	CodeNoDownloadDataAvailable = 90005
	CodeOrderParamsIgnored      = 31001

	// 01xxxx notes, 03xxxx warnings, 06xxxx and 09xxxx errors
	codeWarningClass = 30000
	codeErrorClass   = 60000
)

var returnCodes = map[int]string{
	0:     "EBICS_OK",
	11000: "EBICS_DOWNLOAD_POSTPROCESS_DONE",
	11001: "EBICS_DOWNLOAD_POSTPROCESS_SKIPPED",
	11101: "EBICS_TX_SEGMENT_NUMBER_UNDERRUN",
	31001: "EBICS_ORDER_PARAMS_IGNORED",
	61001: "EBICS_AUTHENTICATION_FAILED",
	61002: "EBICS_INVALID_REQUEST",
	61099: "EBICS_INTERNAL_ERROR",
	61101: "EBICS_TX_RECOVERY_SYNC",
	90003: "EBICS_AUTHORISATION_ORDER_TYPE_FAILED",
	90004: "EBICS_INVALID_ORDER_DATA_FORMAT",
	90005: "EBICS_NO_DOWNLOAD_DATA_AVAILABLE",
	90006: "EBICS_UNSUPPORTED_REQUEST_FOR_ORDER_INSTANCE",
	91002: "EBICS_INVALID_USER_OR_USER_STATE",
	91003: "EBICS_USER_UNKNOWN",
	91004: "EBICS_INVALID_USER_STATE",
	91005: "EBICS_INVALID_ORDER_TYPE",
	91006: "EBICS_UNSUPPORTED_ORDER_TYPE",
	91007: "EBICS_DISTRIBUTED_SIGNATURE_AUTHORISATION_FAILED",
	91008: "EBICS_BANK_PUBKEY_UPDATE_REQUIRED",
	91009: "EBICS_SEGMENT_SIZE_EXCEEDED",
	91010: "EBICS_INVALID_XML",
	91011: "EBICS_INVALID_HOST_ID",
	91101: "EBICS_TX_UNKNOWN_TXID",
	91102: "EBICS_TX_ABORT",
	91103: "EBICS_TX_MESSAGE_REPLAY",
	91104: "EBICS_TX_SEGMENT_NUMBER_EXCEEDED",
	91105: "EBICS_RECOVERY_NOT_SUPPORTED",
	91111: "EBICS_INVALID_SIGNATURE_FILE_FORMAT",
	91112: "EBICS_INVALID_ORDER_PARAMS",
	91113: "EBICS_INVALID_REQUEST_CONTENT",
	91116: "EBICS_ORDERID_UNKNOWN",
	91117: "EBICS_MAX_ORDER_DATA_SIZE_EXCEEDED",
	91118: "EBICS_MAX_SEGMENTS_EXCEEDED",
	91119: "EBICS_MAX_TRANSACTIONS_EXCEEDED",
	91120: "EBICS_PARTNER_ID_MISMATCH",
	91121: "EBICS_INCOMPATIBLE_ORDER_ATTRIBUTE",
	91201: "EBICS_SIGNATURE_VERIFICATION_FAILED",
	91202: "EBICS_ACCOUNT_AUTHORISATION_FAILED",
	91203: "EBICS_AMOUNT_CHECK_FAILED",
	91204: "EBICS_SIGNER_UNKNOWN",
	91205: "EBICS_INVALID_SIGNER_STATE",
	91206: "EBICS_DUPLICATE_SIGNATURE",
}

// ReturnCodeText returns the symbolic name of an EBICS return code.
func ReturnCodeText(code int) string {
	if s, ok := returnCodes[code]; ok {
		return s
	}
	return fmt.Sprintf("EBICS_UNKNOWN_%06d", code)
}
