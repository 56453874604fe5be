package metrics

import (
	"time"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	obserrors "github.com/lci/lci-lookup/internal/observability/errors"
	"github.com/lci/lci-lookup/internal/observability/statsd"
)

// LoginMetric captures one authentication attempt.
type LoginMetric struct {
	Mode     string // bind mode: service or direct
	Source   string // form or header
	Duration time.Duration
	Err      error
}

// EmitLogin emits auth.login (counter) and auth.login.duration (timer), tagged with the
// caller-visible outcome and, on failure, the internal error class.
func EmitLogin(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"outcome": string(domainauth.OutcomeOf(in.Err)),
		"mode":    in.Mode,
		"source":  in.Source,
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count("auth.login", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.login.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSessionRestore counts identity restorations by result (restored, absent, malformed).
func EmitSessionRestore(sink statsd.Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count("auth.session.restore", 1, map[string]string{"result": result})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
