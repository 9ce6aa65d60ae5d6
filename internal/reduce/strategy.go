package reduce

import (
	"fmt"
	"sort"
	"strings"

	"platereduce/internal/tile"
)

// Strategy combines all tile versions gathered at one coordinate into a
// single output tile. Implementations may assume every input tile shares one
// shape and must not retain the input past the call.
type Strategy[T tile.Sample] interface {
	Name() string
	Reduce(in Input[T]) (*tile.Tile[T], error)
}

// strategyNames registers the strategies selectable by --function. Keys are
// lower-case; adding a strategy means registering its name here and
// extending newStrategy.
var strategyNames = map[string]string{
	"weightedavg": "WeightedAvg",
}

// ResolveStrategy canonicalizes a user-supplied strategy name, matching
// case-insensitively. Unknown names list what is available.
func ResolveStrategy(name string) (string, error) {
	key := strings.ToLower(name)
	if _, ok := strategyNames[key]; !ok {
		avail := make([]string, 0, len(strategyNames))
		for _, display := range strategyNames {
			avail = append(avail, display)
		}
		sort.Strings(avail)
		return "", fmt.Errorf("unknown function %q, available: %s", name, strings.Join(avail, ", "))
	}
	return key, nil
}

// newStrategy instantiates the named strategy for one channel type. The name
// must already be canonical (see ResolveStrategy).
func newStrategy[T tile.Sample](name string) (Strategy[T], error) {
	switch name {
	case "weightedavg":
		return WeightedAverage[T]{}, nil
	}
	return nil, fmt.Errorf("unknown function %q", name)
}
