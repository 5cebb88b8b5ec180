package artifact

import (
	"sort"
	"strconv"
)

// Sort returns a sorted copy of versions. When every identifier is a base-10
// integer the order is numeric, otherwise it is lexicographic.
func Sort(versions []string) []string {
	ret := make([]string, len(versions))
	copy(ret, versions)
	numbers, ok := parseAll(ret)
	if !ok {
		sort.Strings(ret)
		return ret
	}
	sort.SliceStable(ret, func(i, j int) bool {
		a, b := numbers[ret[i]], numbers[ret[j]]
		if a != b {
			return a < b
		}
		return ret[i] < ret[j]
	})
	return ret
}

// Latest returns the maximum version under the Sort order, or an empty string.
func Latest(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sorted := Sort(versions)
	return sorted[len(sorted)-1]
}

func parseAll(versions []string) (map[string]int64, bool) {
	ret := make(map[string]int64, len(versions))
	for _, version := range versions {
		n, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return nil, false
		}
		ret[version] = n
	}
	return ret, true
}
