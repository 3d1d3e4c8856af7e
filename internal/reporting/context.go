package reporting

import (
	"context"
	"maps"
	"time"
)

type reportingMetaContextKey struct{}

// ReportingMeta is attached to every event reported from a context
type ReportingMeta struct {
	tags       map[string]string
	extras     map[string]string
	instanceID string
	startedAt  time.Time
}

func MetaFromContext(ctx context.Context) ReportingMeta {
	meta, ok := ctx.Value(reportingMetaContextKey{}).(ReportingMeta)
	if !ok {
		return ReportingMeta{
			tags:   make(map[string]string),
			extras: make(map[string]string),
		}
	}
	return ReportingMeta{
		tags:       maps.Clone(meta.tags),
		extras:     maps.Clone(meta.extras),
		instanceID: meta.instanceID,
		startedAt:  meta.startedAt,
	}
}

func addMetaToContext(ctx context.Context, meta ReportingMeta) context.Context {
	return context.WithValue(ctx, reportingMetaContextKey{}, meta)
}

func AddExtrasToContext(ctx context.Context, extras map[string]string) context.Context {
	meta := MetaFromContext(ctx)
	maps.Copy(meta.extras, extras)
	return addMetaToContext(ctx, meta)
}

func AddTagsToContext(ctx context.Context, tags map[string]string) context.Context {
	meta := MetaFromContext(ctx)
	maps.Copy(meta.tags, tags)
	return addMetaToContext(ctx, meta)
}

// AddOperationToContext tags reports with the GraphQL operation being executed
// and starts the clock used for secondsSinceStart
func AddOperationToContext(ctx context.Context, kind, name string) context.Context {
	meta := MetaFromContext(ctx)
	meta.tags["operationKind"] = kind
	if name != "" {
		meta.tags["operationName"] = name
	}
	if meta.startedAt.IsZero() {
		meta.startedAt = time.Now()
	}
	return addMetaToContext(ctx, meta)
}

// SetInstanceIDInContext identifies the client process the report came from
func SetInstanceIDInContext(ctx context.Context, instanceID string) context.Context {
	meta := MetaFromContext(ctx)
	meta.instanceID = instanceID
	return addMetaToContext(ctx, meta)
}
