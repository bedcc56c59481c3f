package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Simulation semantic convention attributes.
var (
	AttrRunID    = attribute.Key("contagion.run.id")
	AttrWorkers  = attribute.Key("contagion.run.workers")
	AttrStatus   = attribute.Key("contagion.person.status")
	AttrStrain   = attribute.Key("contagion.strain")
	AttrContext  = attribute.Key("contagion.context")
	AttrLocation = attribute.Key("contagion.location")
	AttrRegime   = attribute.Key("contagion.policy.regime")
)

// RunAttributes identifies a run on every recorded measurement.
func RunAttributes(runID string, workers int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRunID.String(runID),
		AttrWorkers.Int(workers),
	}
}

// RegimeAttributes identifies one adaptive regime.
func RegimeAttributes(location, context string) []attribute.KeyValue {
	if location == "" {
		location = "total"
	}
	return []attribute.KeyValue{
		AttrLocation.String(location),
		AttrContext.String(context),
	}
}
