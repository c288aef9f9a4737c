package telemetry

import "go.opentelemetry.io/otel/attribute"

// Semantic convention attribute keys for basketcore-specific telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrTrigger annotates metrics with the lifecycle trigger event.
	AttrTrigger = attribute.Key("lifecycle.trigger")
	// AttrFromState labels the source state of a transition.
	AttrFromState = attribute.Key("lifecycle.from_state")
	// AttrToState labels the target state of a transition.
	AttrToState = attribute.Key("lifecycle.to_state")
	// AttrCategory carries the event category used by the router.
	AttrCategory = attribute.Key("event.category")
	// AttrChannel records the delivery channel chosen by the router.
	AttrChannel = attribute.Key("routing.channel")
	// AttrAdapter identifies the protocol adapter that handled a dispatch.
	AttrAdapter = attribute.Key("routing.adapter")
	// AttrResult records the outcome of an operation (success, error class).
	AttrResult = attribute.Key("result")
	// AttrErrorCode categorizes failures by structured error code.
	AttrErrorCode = attribute.Key("error.code")
	// AttrEnvironment specifies the deployment environment for every metric.
	AttrEnvironment = attribute.Key("environment")
)

// ResultAttributes returns the common environment+result attribute pair.
func ResultAttributes(result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrResult.String(result),
	}
}

// TransitionAttributes labels a metric with a committed transition's shape.
func TransitionAttributes(trigger, from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrTrigger.String(trigger),
		AttrFromState.String(from),
		AttrToState.String(to),
	}
}
