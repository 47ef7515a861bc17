// Package token classifies option tree nodes into generator variants and
// parses their payloads into typed specs.
//
// A generator is an object node carrying one of the reserved keys. The key's
// value is the payload; everything else on the node is ignored. Precedence
// when a node carries several reserved keys: $entity, then $data, then
// $history, then $statistics.
package token

import (
	"strings"

	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/transform"
)

// Reserved keys marking a node as a generator.
const (
	KeyEntity     = "$entity"
	KeyData       = "$data"
	KeyHistory    = "$history"
	KeyStatistics = "$statistics"
)

// reservedOrder is the classification precedence.
var reservedOrder = []string{KeyEntity, KeyData, KeyHistory, KeyStatistics}

// Kind tags the generator variant a node matched.
type Kind int

const (
	KindEntity Kind = iota + 1
	KindData
	KindHistory
	KindStatistics
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindData:
		return "data"
	case KindHistory:
		return "history"
	case KindStatistics:
		return "statistics"
	default:
		return "none"
	}
}

// Token is a classified generator node. Exactly one of the variant fields is
// set, matching Kind.
type Token struct {
	Kind       Kind
	Entity     *Entity
	Data       *Data
	History    *History
	Statistics *Statistics
}

// EntitySpec names one entity a generator touches, with an optional display
// name override.
type EntitySpec struct {
	ID   string
	Name string
}

// DisplayName returns the override name when present, else the name derived
// from the id.
func (e EntitySpec) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return DeriveName(e.ID)
}

// DeriveName turns an entity id into a display name: the object part after
// the first dot, underscores spaced. "sensor.living_temp" becomes
// "living temp".
func DeriveName(id string) string {
	s := id
	if i := strings.IndexByte(id, '.'); i >= 0 {
		s = id[i+1:]
	}
	return strings.ReplaceAll(s, "_", " ")
}

// Entity resolves to a single scalar read from the store.
type Entity struct {
	ID        string
	Attr      string
	Coerce    transform.CoerceMode
	Default   any
	Transform *transform.Spec
}

// SortOrder for bulk extraction results.
type SortOrder string

const (
	SortNone SortOrder = "none"
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DataMode shapes a bulk extraction result.
type DataMode string

const (
	DataPairs  DataMode = "pairs"
	DataNames  DataMode = "names"
	DataValues DataMode = "values"
)

// Data is the bulk extraction generator: current state of many entities,
// filtered, transformed, sorted, and projected.
type Data struct {
	Entities           []EntitySpec
	Mode               DataMode
	Sort               SortOrder
	Limit              int
	Attr               string
	Coerce             transform.CoerceMode
	Default            any
	ExcludeUnavailable bool
	ExcludeZero        bool
	Transform          *transform.Spec
}

// SeriesMode shapes a time-series result.
type SeriesMode string

const (
	ModeValues SeriesMode = "values"
	ModeSeries SeriesMode = "series"
	ModePairs  SeriesMode = "pairs"
)

// SampleMethod selects the downsampling reducer.
type SampleMethod string

const (
	SampleMean SampleMethod = "mean"
	SampleLast SampleMethod = "last"
)

// History fetches raw state history over a time range.
type History struct {
	Entities        []EntitySpec
	Hours           float64
	Start           any
	End             any
	Attr            string
	Coerce          transform.CoerceMode
	Mode            SeriesMode
	Points          int
	Sample          SampleMethod
	CacheSeconds    float64
	SeriesType      string
	Overrides       map[string]document.ObjectNode
	MinimalResponse bool
	Transform       *transform.Spec
}

// StatsPeriod is the server-side aggregation bucket size.
type StatsPeriod string

const (
	PeriodFiveMinute StatsPeriod = "5minute"
	PeriodHour       StatsPeriod = "hour"
	PeriodDay        StatsPeriod = "day"
	PeriodWeek       StatsPeriod = "week"
	PeriodMonth      StatsPeriod = "month"
)

// StatType selects which precomputed figure to read per bucket.
type StatType string

const (
	StatMean   StatType = "mean"
	StatMin    StatType = "min"
	StatMax    StatType = "max"
	StatSum    StatType = "sum"
	StatChange StatType = "change"
	StatState  StatType = "state"
)

// Statistics fetches pre-aggregated buckets.
type Statistics struct {
	Entities     []EntitySpec
	Period       StatsPeriod
	StatType     StatType
	Days         float64
	Start        any
	End          any
	Mode         SeriesMode
	CacheSeconds float64
	SeriesType   string
	Overrides    map[string]document.ObjectNode
}

// EntityIDs lists the ids a token touches, in declaration order.
func (t *Token) EntityIDs() []string {
	var specs []EntitySpec
	switch t.Kind {
	case KindEntity:
		return []string{t.Entity.ID}
	case KindData:
		specs = t.Data.Entities
	case KindHistory:
		specs = t.History.Entities
	case KindStatistics:
		specs = t.Statistics.Entities
	}
	ids := make([]string, 0, len(specs))
	for _, s := range specs {
		ids = append(ids, s.ID)
	}
	return ids
}
