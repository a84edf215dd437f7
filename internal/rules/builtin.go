package rules

import (
	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
)

// NewDefaultSet returns registries populated with the builtin catalog.
// Project and user rule files layer on top via Loader, overriding by ID.
func NewDefaultSet() *Set {
	s := NewSet()
	for _, def := range builtinSources {
		s.Sources.Register(def)
	}
	for _, def := range builtinSinks {
		s.Sinks.Register(def)
	}
	for _, def := range builtinSanitizers {
		s.Sanitizers.Register(def)
	}
	return s
}

var builtinSources = []SourceRule{
	// Generic web request surfaces.
	{Meta: Meta{ID: "src.req.query", Description: "request query parameter"},
		Pattern: Pattern{Kind: PatternMemberAccess, Object: "req", Property: "query"}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.req.body", Description: "request body"},
		Pattern: Pattern{Kind: PatternMemberAccess, Object: "req", Property: "body"}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.req.params", Description: "request route parameter"},
		Pattern: Pattern{Kind: PatternMemberAccess, Object: "req", Property: "params"}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.req.headers", Description: "request header"},
		Pattern: Pattern{Kind: PatternMemberAccess, Object: "req", Property: "headers"}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.req.param", Description: "request parameter accessor"},
		Pattern: Pattern{Kind: PatternCall, CallName: "param", Receiver: "request"}, Label: core.LabelUserInput},

	// Browser surfaces.
	{Meta: Meta{ID: "src.location.hash", Language: "javascript"},
		Pattern: Pattern{Kind: PatternQualifiedName, QualifiedName: "location.hash"}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.location.search", Language: "javascript"},
		Pattern: Pattern{Kind: PatternQualifiedName, QualifiedName: "location.search"}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.document.cookie", Language: "javascript"},
		Pattern: Pattern{Kind: PatternQualifiedName, QualifiedName: "document.cookie"}, Label: core.LabelUserInput},

	// Environment and filesystem.
	{Meta: Meta{ID: "src.process.env", Language: "javascript"},
		Pattern: Pattern{Kind: PatternQualifiedName, QualifiedName: "process.env"}, Label: core.LabelEnvVar},
	{Meta: Meta{ID: "src.fs.readFileSync", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "readFileSync", Receiver: "fs"}, Label: core.LabelFileRead},
	{Meta: Meta{ID: "src.fs.readFile", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "readFile", Receiver: "fs"}, Label: core.LabelFileRead},

	// Deserialization and remote responses.
	{Meta: Meta{ID: "src.json.parse", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "parse", Receiver: "JSON"}, Label: core.LabelDeserialized},
	{Meta: Meta{ID: "src.fetch", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "fetch"}, Label: core.LabelAPIResponse},
	{Meta: Meta{ID: "src.child.execSync.out", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "execSync", Receiver: "child_process"}, Label: core.LabelCommandOutput},

	// Parameter seeding via decorators and type annotations (framework
	// controllers receive untrusted input directly as parameters).
	{Meta: Meta{ID: "src.param.query.decorator", Framework: "nestjs", Description: "@Query controller parameter"},
		Pattern: Pattern{Kind: PatternDecorator, Decorator: "Query", ParamIndex: -1}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.param.body.decorator", Framework: "nestjs", Description: "@Body controller parameter"},
		Pattern: Pattern{Kind: PatternDecorator, Decorator: "Body", ParamIndex: -1}, Label: core.LabelUserInput},
	{Meta: Meta{ID: "src.param.request.type", Framework: "express", Description: "express Request parameter"},
		Pattern: Pattern{Kind: PatternTypeAnnotation, TypeName: "Request"}, Label: core.LabelUserInput},
}

var builtinSinks = []SinkRule{
	// SQL execution.
	{Meta: Meta{ID: "sink.db.query", Description: "raw SQL query"},
		Pattern: Pattern{Kind: PatternCall, CallName: "query"}, ArgIndex: 0,
		SinkType: core.SinkSQLQuery, Severity: schemas.RiskCritical, CWE: []string{"CWE-89"}, OWASP: []string{"A03:2021"}},
	{Meta: Meta{ID: "sink.db.execute", Description: "raw SQL execute"},
		Pattern: Pattern{Kind: PatternCall, CallName: "execute"}, ArgIndex: 0,
		SinkType: core.SinkSQLQuery, Severity: schemas.RiskCritical, CWE: []string{"CWE-89"}},

	// OS command execution.
	{Meta: Meta{ID: "sink.child.exec", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "exec"}, ArgIndex: 0,
		SinkType: core.SinkOSCommand, Severity: schemas.RiskCritical, CWE: []string{"CWE-78"}, OWASP: []string{"A03:2021"}},
	{Meta: Meta{ID: "sink.child.execSync", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "execSync"}, ArgIndex: 0,
		SinkType: core.SinkOSCommand, Severity: schemas.RiskCritical, CWE: []string{"CWE-78"}},

	// Code execution.
	{Meta: Meta{ID: "sink.eval", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "eval"}, ArgIndex: 0,
		SinkType: core.SinkCodeExecution, Severity: schemas.RiskCritical, CWE: []string{"CWE-95"}},
	{Meta: Meta{ID: "sink.function.ctor", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "Function"}, ArgIndex: -1,
		SinkType: core.SinkCodeExecution, Severity: schemas.RiskCritical, CWE: []string{"CWE-95"}},
	{Meta: Meta{ID: "sink.setTimeout", Language: "javascript", Description: "string argument is evaluated"},
		Pattern: Pattern{Kind: PatternCall, CallName: "setTimeout"}, ArgIndex: 0,
		SinkType: core.SinkCodeExecution, Severity: schemas.RiskHigh, CWE: []string{"CWE-95"}},

	// HTML output.
	{Meta: Meta{ID: "sink.innerHTML", Language: "javascript", Description: "innerHTML assignment"},
		Pattern: Pattern{Kind: PatternMemberAccess, Object: "", Property: "innerHTML"}, ArgIndex: 0,
		SinkType: core.SinkHTMLOutput, Severity: schemas.RiskHigh, CWE: []string{"CWE-79"}, OWASP: []string{"A03:2021"}},
	{Meta: Meta{ID: "sink.document.write", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "write", Receiver: "document"}, ArgIndex: 0,
		SinkType: core.SinkHTMLOutput, Severity: schemas.RiskHigh, CWE: []string{"CWE-79"}},
	{Meta: Meta{ID: "sink.res.send", Framework: "express"},
		Pattern: Pattern{Kind: PatternCall, CallName: "send", Receiver: "res"}, ArgIndex: 0,
		SinkType: core.SinkHTMLOutput, Severity: schemas.RiskHigh, CWE: []string{"CWE-79"}},

	// Redirects and outbound requests.
	{Meta: Meta{ID: "sink.res.redirect", Framework: "express"},
		Pattern: Pattern{Kind: PatternCall, CallName: "redirect", Receiver: "res"}, ArgIndex: 0,
		SinkType: core.SinkRedirect, Severity: schemas.RiskMedium, CWE: []string{"CWE-601"}},
	{Meta: Meta{ID: "sink.fetch.url", Language: "javascript", Description: "attacker-controlled request target"},
		Pattern: Pattern{Kind: PatternCall, CallName: "fetch"}, ArgIndex: 0,
		SinkType: core.SinkHTTPRequest, Severity: schemas.RiskHigh, CWE: []string{"CWE-918"}},

	// Filesystem paths.
	{Meta: Meta{ID: "sink.fs.writeFile.path", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "writeFileSync", Receiver: "fs"}, ArgIndex: 0,
		SinkType: core.SinkPathAccess, Severity: schemas.RiskHigh, CWE: []string{"CWE-22"}},
	{Meta: Meta{ID: "sink.fs.readFile.path", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "readFileSync", Receiver: "fs"}, ArgIndex: 0,
		SinkType: core.SinkPathAccess, Severity: schemas.RiskHigh, CWE: []string{"CWE-22"}},

	// Miscellaneous.
	{Meta: Meta{ID: "sink.res.setHeader", Framework: "express"},
		Pattern: Pattern{Kind: PatternCall, CallName: "setHeader", Receiver: "res"}, ArgIndex: 1,
		SinkType: core.SinkHeader, Severity: schemas.RiskMedium, CWE: []string{"CWE-113"}},
	{Meta: Meta{ID: "sink.res.render", Framework: "express"},
		Pattern: Pattern{Kind: PatternCall, CallName: "render", Receiver: "res"}, ArgIndex: 0,
		SinkType: core.SinkTemplate, Severity: schemas.RiskHigh, CWE: []string{"CWE-94"}},
	{Meta: Meta{ID: "sink.regexp.ctor", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "RegExp"}, ArgIndex: 0,
		SinkType: core.SinkRegex, Severity: schemas.RiskMedium, CWE: []string{"CWE-1333"}},
	{Meta: Meta{ID: "sink.console.log", Language: "javascript", Description: "log forging"},
		Pattern: Pattern{Kind: PatternCall, CallName: "log", Receiver: "console"}, ArgIndex: -1,
		SinkType: core.SinkLogOutput, Severity: schemas.RiskLow, CWE: []string{"CWE-117"}},
	{Meta: Meta{ID: "sink.unserialize", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "unserialize"}, ArgIndex: 0,
		SinkType: core.SinkDeserialize, Severity: schemas.RiskCritical, CWE: []string{"CWE-502"}},
}

var builtinSanitizers = []SanitizerRule{
	{Meta: Meta{ID: "san.encodeURIComponent", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "encodeURIComponent"}, Kind: core.SanitizeURLEncode},
	{Meta: Meta{ID: "san.encodeURI", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "encodeURI"}, Kind: core.SanitizeURLEncode},
	{Meta: Meta{ID: "san.parseInt", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "parseInt"}, Kind: core.SanitizeTypeCast},
	{Meta: Meta{ID: "san.parseFloat", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "parseFloat"}, Kind: core.SanitizeTypeCast},
	{Meta: Meta{ID: "san.number", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "Number"}, Kind: core.SanitizeTypeCast},
	{Meta: Meta{ID: "san.toInt", Description: "generic integer cast helper"},
		Pattern: Pattern{Kind: PatternCall, CallName: "toInt"}, Kind: core.SanitizeTypeCast},
	{Meta: Meta{ID: "san.dompurify", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "sanitize", Receiver: "DOMPurify"}, Kind: core.SanitizeDOM},
	{Meta: Meta{ID: "san.escapeHtml"},
		Pattern: Pattern{Kind: PatternCall, CallName: "escapeHtml"}, Kind: core.SanitizeHTMLEscape},
	{Meta: Meta{ID: "san.validator.escape", Framework: "express"},
		Pattern: Pattern{Kind: PatternCall, CallName: "escape", Receiver: "validator"}, Kind: core.SanitizeHTMLEscape},
	{Meta: Meta{ID: "san.db.escape"},
		Pattern: Pattern{Kind: PatternCall, CallName: "escape", Receiver: "db"}, Kind: core.SanitizeSQLParam},
	{Meta: Meta{ID: "san.shellQuote"},
		Pattern: Pattern{Kind: PatternCall, CallName: "quote", Receiver: "shellQuote"}, Kind: core.SanitizeShellEscape},
	{Meta: Meta{ID: "san.path.normalize", Language: "javascript"},
		Pattern: Pattern{Kind: PatternCall, CallName: "normalize", Receiver: "path"}, Kind: core.SanitizePathCanon},
	{Meta: Meta{ID: "san.createHash"},
		Pattern: Pattern{Kind: PatternCall, CallName: "createHash", Receiver: "crypto"}, Kind: core.SanitizeHash},
}
