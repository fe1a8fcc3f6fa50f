package common

import (
	"encoding/json"
	"regexp"
	"runtime"
)

// IsUUID validates whether a string is a UUID, used to classify an inbound
// change's object_id against an entity's primary-key kind.
func IsUUID(s string) bool {
	r := regexp.MustCompile("^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[1-5][a-fA-F0-9]{3}-[89abAB][a-fA-F0-9]{3}-[a-fA-F0-9]{12}$")
	return r.MatchString(s)
}

// StructToJSONString converts a struct to a json string, used by
// mopentelemetry.SetSpanAttributesFromStruct to record a struct as a span
// attribute.
func StructToJSONString(s any) (string, error) {
	jsonByte, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	return string(jsonByte), nil
}

var uuidPathSegment = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ReplaceUUIDWithPlaceholder rewrites UUID path segments to ":id" so that trace
// span names and metric labels group requests by route instead of by entity id.
func ReplaceUUIDWithPlaceholder(path string) string {
	return uuidPathSegment.ReplaceAllString(path, ":id")
}

// GetCPUUsage reports the number of live goroutines (runtime.NumGoroutine) as
// a coarse load figure; it does not measure CPU time and is not a
// percentage. Kept on the standard library rather than a
// platform-sampling dependency since it feeds a single OpenTelemetry gauge
// and nothing else in this module reads process-level CPU/mem stats.
func GetCPUUsage() int64 {
	return int64(runtime.NumGoroutine())
}

// GetMemUsage reports heap usage in MiB from runtime.MemStats.
func GetMemUsage() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return int64(m.HeapAlloc / (1024 * 1024))
}
