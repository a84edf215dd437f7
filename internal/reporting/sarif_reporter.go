package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "Lancet"
	ToolInfoURI  = "https://github.com/xkilldash9x/lancet"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer replaces characters not allowed in SARIF rule IDs.
// Alphanumerics, underscore and dot survive; everything else collapses to a
// single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0
// format. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule registry.
	mu sync.Mutex
	// seenRules maps a detection rule ID to its SARIF rule ID.
	seenRules map[string]string
}

// NewSARIFReporter creates a reporter that writes SARIF output. It takes
// ownership of the writer.
func NewSARIFReporter(writer io.WriteCloser, logger *zap.Logger) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:    writer,
		logger:    logger.Named("sarif_reporter"),
		log:       log,
		seenRules: make(map[string]string),
	}
}

// Write converts flows into SARIF results and adds them to the log.
func (r *SARIFReporter) Write(flows []schemas.TaintFlow) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	for _, flow := range flows {
		ruleID := r.ensureRule(flow)

		message := fmt.Sprintf("Tainted data from %s reaches %s sink %s",
			flow.Source.Expression, flow.Sink.SinkType, flow.Sink.Expression)
		if flow.Sanitized {
			message += " (sanitized; reported for visibility)"
		}

		result := &sarif.Result{
			RuleID:    ruleID,
			Message:   &sarif.Message{Text: pString(message)},
			Level:     sarif.Level(mapRiskToSARIFLevel(flow.Risk)),
			Locations: createLocations(flow),
			CodeFlows: createCodeFlows(flow),
			Properties: &sarif.PropertyBag{
				"confidence":      flow.Confidence,
				"sanitized":       flow.Sanitized,
				"interprocedural": flow.Interprocedural,
				"labels":          flow.Source.Labels,
				"flowId":          flow.ID,
			},
		}
		run.Results = append(run.Results, result)
	}

	if len(flows) > 0 {
		r.logger.Debug("Wrote flows to SARIF buffer",
			zap.Int("flow_count", len(flows)),
			zap.Duration("duration_ms", time.Since(startTime)),
		)
	}
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var resultsCount, rulesCount int
	if len(r.log.Runs) > 0 && r.log.Runs[0] != nil {
		resultsCount = len(r.log.Runs[0].Results)
		if r.log.Runs[0].Tool != nil && r.log.Runs[0].Tool.Driver != nil {
			rulesCount = len(r.log.Runs[0].Tool.Driver.Rules)
		}
	}
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", resultsCount),
		zap.Int("total_rules", rulesCount),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// ensureRule registers a SARIF rule for the flow's sink rule and returns
// its ID. Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(flow schemas.TaintFlow) string {
	if id, exists := r.seenRules[flow.Sink.RuleID]; exists {
		return id
	}

	base := strings.ToUpper(flow.Sink.RuleID)
	base = strings.Trim(ruleIDSanitizer.ReplaceAllString(base, "-"), "-")
	if base == "" {
		base = "UNNAMED-SINK"
	}
	ruleID := "LANCET-" + base

	description := fmt.Sprintf("Untrusted data flows into a %s sink.", flow.Sink.SinkType)
	rule := &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(flow.Sink.RuleID),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(description)},
		Properties: &sarif.PropertyBag{
			"tags":     []string{"security", "taint"},
			"CWE":      flow.Sink.CWE,
			"OWASP":    flow.Sink.OWASP,
			"sinkType": flow.Sink.SinkType,
		},
	}
	r.log.Runs[0].Tool.Driver.Rules = append(r.log.Runs[0].Tool.Driver.Rules, rule)
	r.seenRules[flow.Sink.RuleID] = ruleID
	return ruleID
}

// createLocations emits the sink location first, then the source, so SARIF
// viewers land on the dangerous call.
func createLocations(flow schemas.TaintFlow) []*sarif.Location {
	return []*sarif.Location{
		sarifLocation(flow.Sink.Location, fmt.Sprintf("Sink: %s", flow.Sink.Expression)),
		sarifLocation(flow.Source.Location, fmt.Sprintf("Source: %s", flow.Source.Expression)),
	}
}

// createCodeFlows replays the derivation path as a single-threaded code
// flow so viewers can step from source to sink.
func createCodeFlows(flow schemas.TaintFlow) []*sarif.CodeFlow {
	if len(flow.Path) == 0 {
		return nil
	}
	locs := make([]*sarif.ThreadFlowLocation, 0, len(flow.Path))
	for _, step := range flow.Path {
		msg := string(step.Kind)
		if step.To != "" {
			msg = fmt.Sprintf("%s: %s", step.Kind, step.To)
		}
		locs = append(locs, &sarif.ThreadFlowLocation{
			Location: sarifLocation(step.Location, msg),
		})
	}
	return []*sarif.CodeFlow{{
		ThreadFlows: []*sarif.ThreadFlow{{Locations: locs}},
	}}
}

func sarifLocation(loc schemas.Location, msg string) *sarif.Location {
	return &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(loc.File)},
			Region: &sarif.Region{
				StartLine:   loc.Line,
				StartColumn: loc.Column + 1,
			},
		},
		Message: &sarif.Message{Text: pString(msg)},
	}
}

// mapRiskToSARIFLevel converts the engine's risk ranking to the SARIF
// standard.
func mapRiskToSARIFLevel(risk schemas.RiskLevel) string {
	switch risk {
	case schemas.RiskCritical, schemas.RiskHigh:
		return string(sarif.LevelError)
	case schemas.RiskMedium:
		return string(sarif.LevelWarning)
	case schemas.RiskLow, schemas.RiskInfo:
		return string(sarif.LevelNote)
	default:
		return string(sarif.LevelNote)
	}
}

// pString returns a pointer to the given string value. Helper for optional
// SARIF fields.
func pString(s string) *string {
	return &s
}
