package logging

// Field names shared by every component so log output can be filtered
// consistently across the EBICS client and the statement parsers.
const (
	FieldFile        = "file_path"
	FieldParser      = "parser"
	FieldOperation   = "operation"
	FieldStatus      = "status"
	FieldError       = "error"
	FieldCount       = "count"
	FieldDelimiter   = "delimiter"
	FieldInputFile   = "input_file"
	FieldOutputFile  = "output_file"
	FieldTag         = "tag"
	FieldStatements  = "statements"
	FieldAccount     = "account"
	FieldOrderType   = "order_type"
	FieldPhase       = "phase"
	FieldState       = "state"
	FieldSegment     = "segment"
	FieldNumSegments = "num_segments"
	FieldTechCode    = "technical_code"
	FieldBusCode     = "business_code"
	FieldHostID      = "host_id"
	FieldBank        = "bank"
	FieldBackend     = "backend"
	FieldEndpoint    = "endpoint"
)
