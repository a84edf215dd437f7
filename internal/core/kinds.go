package core

// SinkType categorizes the impact of a taint sink.
type SinkType string

const (
	SinkSQLQuery      SinkType = "sql_query"
	SinkOSCommand     SinkType = "os_command"
	SinkCodeExecution SinkType = "code_execution"
	SinkPathAccess    SinkType = "path_access"
	SinkHTMLOutput    SinkType = "html_output"
	SinkRedirect      SinkType = "redirect"
	SinkHTTPRequest   SinkType = "http_request"
	SinkDeserialize   SinkType = "deserialization"
	SinkTemplate      SinkType = "template_render"
	SinkLogOutput     SinkType = "log_output"
	SinkHeader        SinkType = "header_injection"
	SinkRegex         SinkType = "regex_construction"
	// SinkCustomPrefix namespaces user-defined sink types ("custom:...").
	SinkCustomPrefix = "custom:"
)

// SanitizerType categorizes a cleansing operation. A sanitizer neutralizes
// risk only for the sink types listed in its effectiveness set.
type SanitizerType string

const (
	SanitizeHTMLEscape    SanitizerType = "html_escape"
	SanitizeSQLParam      SanitizerType = "sql_parameterize"
	SanitizeURLEncode     SanitizerType = "url_encode"
	SanitizeShellEscape   SanitizerType = "shell_escape"
	SanitizePathCanon     SanitizerType = "path_canonicalize"
	SanitizeValidation    SanitizerType = "validation"
	SanitizeTypeCast      SanitizerType = "type_cast"
	SanitizeHash          SanitizerType = "hashing"
	SanitizeEncrypt       SanitizerType = "encryption"
	SanitizeDOM           SanitizerType = "dom_sanitize"
	SanitizeCustomPrefix                = "custom:"
)

// DefaultEffectiveness is the builtin sanitizer effectiveness matrix: for
// each sanitizer type, the sink types it neutralizes. Rule definitions may
// extend a sanitizer's set but the matrix supplies the baseline, so a rule
// file does not have to restate the obvious pairings.
var DefaultEffectiveness = map[SanitizerType][]SinkType{
	SanitizeHTMLEscape:  {SinkHTMLOutput, SinkTemplate},
	SanitizeSQLParam:    {SinkSQLQuery},
	SanitizeURLEncode:   {SinkRedirect, SinkHTTPRequest, SinkHTMLOutput},
	SanitizeShellEscape: {SinkOSCommand},
	SanitizePathCanon:   {SinkPathAccess},
	// Validation and type casts constrain the value shape and are accepted
	// for every sink type.
	SanitizeValidation: allSinkTypes,
	SanitizeTypeCast:   allSinkTypes,
	SanitizeHash:       allSinkTypes,
	SanitizeEncrypt:    allSinkTypes,
	SanitizeDOM:        {SinkHTMLOutput, SinkTemplate},
}

var allSinkTypes = []SinkType{
	SinkSQLQuery, SinkOSCommand, SinkCodeExecution, SinkPathAccess,
	SinkHTMLOutput, SinkRedirect, SinkHTTPRequest, SinkDeserialize,
	SinkTemplate, SinkLogOutput, SinkHeader, SinkRegex,
}
