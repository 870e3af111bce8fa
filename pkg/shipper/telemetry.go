package shipper

import (
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PakistanTime is the carriers' local time zone. Pakistan observes no DST,
// so a fixed offset avoids depending on the host's tzdata.
var PakistanTime = time.FixedZone("PKT", 5*60*60)

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
