package localstore

import "encoding/json"

// encodeStatusDistribution stores the distribution as a JSON array of
// [code, count] pairs, matching the wire format's array-of-pairs rule
// so no conversion is needed when the sender builds the outbound
// AggregatedMetric (spec.md §6, §9).
func encodeStatusDistribution(dist map[int]int) (string, error) {
	pairs := make([][2]int, 0, len(dist))
	for code, count := range dist {
		pairs = append(pairs, [2]int{code, count})
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStatusDistribution(s string) (map[int]int, error) {
	if s == "" {
		return map[int]int{}, nil
	}
	var pairs [][2]int
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil, err
	}
	m := make(map[int]int, len(pairs))
	for _, p := range pairs {
		m[p[0]] = p[1]
	}
	return m, nil
}

func encodeStringSlice(ss []string) (string, error) {
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStringSlice(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(s), &ss); err != nil {
		return nil, err
	}
	return ss, nil
}
