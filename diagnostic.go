// diagnostic.go: One-shot diagnostic run of a collector plugin
//
// A collector started without a framework config runs its diagnostic: it
// prints its runtime details and config policy, builds its metric catalog,
// merges the policy defaults into each metric's configuration and collects
// once. Every phase is timed and traced. No network service is started.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DiagnosticTracerName is the OpenTelemetry tracer used for diagnostic spans.
const DiagnosticTracerName = "snapplugin/diagnostic"

// Diagnostic phase names.
const (
	PhaseRuntimeDetails = "runtime details"
	PhaseConfigPolicy   = "config policy"
	PhaseMetricCatalog  = "metric catalog"
	PhaseDefaultMerge   = "default merge"
	PhaseCollect        = "collected metrics"
)

const missingConfigHint = `You can provide config in form of "--config '{"key": "value", "answer": 42}'"`

const diagnosticFooter = "Thank you for using this Snap plugin. If you have questions or are running\n" +
	"into errors, please open an issue in the plugin's repository and include\n" +
	"this diagnostic print out so that we have a starting point for addressing\n" +
	"your question.\n" +
	"Thank you.\n\n"

// PolicyDefault is a default value declared by the config policy, scoped
// to a namespace path.
type PolicyDefault struct {
	Namespace []string
	Key       string
	Value     any
}

// PhaseTiming is the measured duration of one diagnostic phase.
type PhaseTiming struct {
	Phase   string
	Elapsed time.Duration
}

// DiagnosticReport is the programmatic outcome of a diagnostic run.
type DiagnosticReport struct {
	PolicyRows  []PolicyRow
	MissingKeys []string
	Defaults    []PolicyDefault
	Catalog     []Metric
	Collected   []Metric
	Timings     []PhaseTiming
	Total       time.Duration

	// Aborted is set when required config was missing and the catalog and
	// collect phases were skipped.
	Aborted bool
}

// Timing returns the duration recorded for phase.
func (r *DiagnosticReport) Timing(phase string) (time.Duration, bool) {
	for _, t := range r.Timings {
		if t.Phase == phase {
			return t.Elapsed, true
		}
	}
	return 0, false
}

// DiagnosticRunner runs the diagnostic pipeline once.
type DiagnosticRunner struct {
	plugin Plugin
	meta   Meta
	config Config
	out    io.Writer
	logger Logger
	tracer trace.Tracer
}

// NewDiagnosticRunner creates a runner printing to out (stdout when nil).
func NewDiagnosticRunner(plugin Plugin, meta Meta, config Config, out io.Writer, logger Logger) *DiagnosticRunner {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &DiagnosticRunner{
		plugin: plugin,
		meta:   meta,
		config: config.Clone(),
		out:    out,
		logger: logger,
		tracer: otel.Tracer(DiagnosticTracerName),
	}
}

// reportWriter keeps the first write error so printing code stays linear.
type reportWriter struct {
	w   io.Writer
	err error
}

func (w *reportWriter) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *reportWriter) print(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

// Run executes the diagnostic. Missing required config aborts the run after
// the config policy phase with a POLICY_2101 error and a report marked
// Aborted. Plugin kinds other than collectors get a notice and DIAG_2202.
func (r *DiagnosticRunner) Run(ctx context.Context) (*DiagnosticReport, error) {
	w := &reportWriter{w: r.out}
	report := &DiagnosticReport{}

	collector, ok := r.plugin.(Collector)
	if r.meta.Type != CollectorPluginType || !ok {
		w.print("At the time being, plugin diagnostic is supported only by Collector plugins.\n")
		return report, NewDiagnosticUnsupportedError(r.meta.Type)
	}

	ctx, span := r.tracer.Start(ctx, "diagnostic",
		trace.WithAttributes(
			attribute.String("plugin.name", r.meta.Name),
			attribute.Int("plugin.version", r.meta.Version)))
	defer span.End()

	total := StartPhaseTimer()
	err := r.run(ctx, w, collector, report)
	report.Total = total.Stop()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return report, err
	}

	w.printf("Printing diagnostic took %s\n\n", FormatElapsed(report.Total))
	if w.err != nil {
		return report, NewDiagnosticPhaseError("output", w.err)
	}
	return report, nil
}

func (r *DiagnosticRunner) run(ctx context.Context, w *reportWriter, collector Collector, report *DiagnosticReport) error {
	// runtime details
	if err := r.phase(ctx, report, PhaseRuntimeDetails, func(context.Context) error {
		w.print("Runtime Details:\n")
		w.printf("\tPlugin Name: %s, Plugin Version: %d\n", r.meta.Name, r.meta.Version)
		w.printf("\tRPC Type: %s, RPC Version: %d\n", r.meta.RPCType, r.meta.RPCVersion)
		w.printf("\tPlatform: %s\n\tArchitecture: %s\n\tGo Version: %s\n",
			runtime.GOOS, runtime.GOARCH, runtime.Version())
		return nil
	}); err != nil {
		return err
	}
	r.printTiming(w, report, PhaseRuntimeDetails)

	// config policy
	err := r.phase(ctx, report, PhaseConfigPolicy, func(context.Context) error {
		w.print("Config Policy:\n")
		var policy *ConfigPolicy
		err := callSafely(func() (err error) {
			policy, err = collector.GetConfigPolicy()
			return err
		})
		if err != nil {
			return NewDiagnosticPhaseError(PhaseConfigPolicy, err)
		}

		rows, missing, defaults := inspectPolicy(policy, r.config)
		report.PolicyRows, report.MissingKeys, report.Defaults = rows, missing, defaults

		w.print(tabulate(policyTable(rows), []string{
			"NAMESPACE", "KEY", "TYPE", "REQUIRED", "DEFAULT", "MINIMUM", "MAXIMUM",
		}, tableSpacing))

		if len(missing) > 0 {
			for _, key := range missing {
				msg := fmt.Sprintf("%s required by plugin and not provided in config", key)
				r.logger.Error(msg, "key", key)
				w.printf("%s\n", msg)
			}
			r.logger.Error(missingConfigHint)
			w.printf("%s\n", missingConfigHint)
			report.Aborted = true
			return NewRequiredConfigMissingError(missing)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.printTiming(w, report, PhaseConfigPolicy)

	// metric catalog
	var catalog []Metric
	if err := r.phase(ctx, report, PhaseMetricCatalog, func(ctx context.Context) error {
		w.print("Metric catalog will be updated to include following namespaces:\n")
		var metrics []Metric
		err := callSafely(func() (err error) {
			metrics, err = collector.UpdateCatalog(ctx, r.config.Clone())
			return err
		})
		if err != nil {
			return NewDiagnosticPhaseError(PhaseMetricCatalog, err)
		}
		for _, m := range metrics {
			w.printf("\t%s\n", m.Namespace)
		}
		catalog = metrics
		return nil
	}); err != nil {
		return err
	}
	report.Catalog = catalog
	r.printTiming(w, report, PhaseMetricCatalog)

	// apply policy defaults per metric
	if err := r.phase(ctx, report, PhaseDefaultMerge, func(context.Context) error {
		MergeDefaults(catalog, r.config, report.Defaults)
		return nil
	}); err != nil {
		return err
	}

	// collect
	if err := r.phase(ctx, report, PhaseCollect, func(ctx context.Context) error {
		w.print("Metrics that can be collected right now are:\n")
		var collected []Metric
		err := callSafely(func() (err error) {
			collected, err = collector.Collect(ctx, catalog)
			return err
		})
		if err != nil {
			return NewDiagnosticPhaseError(PhaseCollect, err)
		}
		report.Collected = collected

		rows := make([][]any, 0, len(collected))
		for _, m := range collected {
			rows = append(rows, []any{m.Namespace.String(), m.DataType(), m.Data})
		}
		w.print(tabulate(rows, []string{"NAMESPACE", "TYPE", "VALUE"}, tableSpacing))
		return nil
	}); err != nil {
		return err
	}
	r.printTiming(w, report, PhaseCollect)

	w.print(diagnosticFooter)
	return nil
}

// phase runs fn inside a span and records its duration.
func (r *DiagnosticRunner) phase(ctx context.Context, report *DiagnosticReport, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "diagnostic "+name)
	defer span.End()

	timer := StartPhaseTimer()
	err := fn(ctx)
	elapsed := timer.Stop()

	report.Timings = append(report.Timings, PhaseTiming{Phase: name, Elapsed: elapsed})
	span.SetAttributes(attribute.Int64("elapsed_us", elapsed.Microseconds()))
	r.logger.Debug("Diagnostic phase finished", "phase", name, "elapsed", elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return err
}

func (r *DiagnosticRunner) printTiming(w *reportWriter, report *DiagnosticReport, phase string) {
	elapsed, _ := report.Timing(phase)
	w.printf("Printing %s took %s\n\n", phase, FormatElapsed(elapsed))
}

// inspectPolicy flattens policy and collects the required keys absent from
// config and the declared defaults.
func inspectPolicy(policy *ConfigPolicy, config Config) ([]PolicyRow, []string, []PolicyDefault) {
	rows := policy.Rows()
	var missing []string
	var defaults []PolicyDefault
	for _, row := range rows {
		if row.Rule.HasDefault {
			defaults = append(defaults, PolicyDefault{
				Namespace: row.Namespace,
				Key:       row.Key,
				Value:     row.Rule.Default,
			})
		}
		if row.Rule.Required && !config.Has(row.Key) {
			missing = append(missing, row.Key)
		}
	}
	return rows, missing, defaults
}

func policyTable(rows []PolicyRow) [][]any {
	table := make([][]any, 0, len(rows))
	for _, row := range rows {
		var def, minimum, maximum any = "", "", ""
		if row.Rule.HasDefault {
			def = row.Rule.Default
		}
		if row.Rule.HasMin {
			minimum = row.Rule.Min
		}
		if row.Rule.HasMax {
			maximum = row.Rule.Max
		}
		table = append(table, []any{
			row.NamespaceString(), row.Key, string(row.Type), row.Rule.Required, def, minimum, maximum,
		})
	}
	return table
}

// MergeDefaults sets each metric's configuration to a copy of config
// overlaid with the metric's own entries, then fills in every policy default
// whose namespace equals the metric's literal namespace, segment by segment
// and with the same length, when the key is still absent.
func MergeDefaults(metrics []Metric, config Config, defaults []PolicyDefault) {
	for i := range metrics {
		merged := config.Clone()
		for k, v := range metrics[i].Config {
			merged[k] = v
		}
		for _, d := range defaults {
			if !metrics[i].Namespace.MatchesValues(d.Namespace) {
				continue
			}
			if !merged.Has(d.Key) {
				merged[d.Key] = d.Value
			}
		}
		metrics[i].Config = merged
	}
}
