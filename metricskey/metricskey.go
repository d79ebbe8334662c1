package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfToken is perf metric
	PerfToken = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_token",
		Help:         "perf_token provides the sample metrics of token encode and decode operations",
		RequiredTags: []string{"action"},
	}

	// PerfTokenVerify is perf metric
	PerfTokenVerify = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_token_verify",
		Help:         "perf_token_verify provides the sample metrics of verification attempts per key",
		RequiredTags: []string{"alg", "result"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfToken,
	&PerfTokenVerify,
}
