package hostlist

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidHostlistFormat is returned when a hostlist string cannot be parsed
var ErrInvalidHostlistFormat = errors.New("invalid hostlist format")

// NodeSet is an ordered list of unique node names
type NodeSet []string

// String returns the compressed form of the set
func (s NodeSet) String() string {
	return Compress(s)
}

// Contains reports whether name is a member of the set
func (s NodeSet) Contains(name string) bool {
	for _, n := range s {
		if n == name {
			return true
		}
	}
	return false
}

// Expand parses a compressed hostlist such as "rank[1-3,7],io5" into its
// member names. Leading zeros in a range bound set the pad width for that
// range. Duplicate names are dropped, keeping the first occurrence.
func Expand(text string) (NodeSet, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return NodeSet{}, nil
	}

	groups, err := splitGroups(text)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, group := range groups {
		expanded, err := expandGroup(group)
		if err != nil {
			return nil, err
		}
		names = append(names, expanded...)
	}
	return Unique(names), nil
}

// ExpandAll expands each text and returns the union in order
func ExpandAll(texts ...string) (NodeSet, error) {
	var all NodeSet
	for _, text := range texts {
		set, err := Expand(text)
		if err != nil {
			return nil, err
		}
		all = Union(all, set)
	}
	return all, nil
}

// splitGroups splits on commas that are outside of brackets
func splitGroups(text string) ([]string, error) {
	var groups []string
	depth := 0
	start := 0
	for i, c := range text {
		switch c {
		case '[':
			if depth > 0 {
				return nil, fmt.Errorf("%w: nested bracket at offset %d in %q", ErrInvalidHostlistFormat, i, text)
			}
			depth++
		case ']':
			if depth == 0 {
				return nil, fmt.Errorf("%w: unmatched ']' at offset %d in %q", ErrInvalidHostlistFormat, i, text)
			}
			depth--
		case ',':
			if depth == 0 {
				groups = append(groups, text[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unterminated '[' in %q", ErrInvalidHostlistFormat, text)
	}
	groups = append(groups, text[start:])

	out := groups[:0]
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g != "" {
			out = append(out, g)
		}
	}
	return out, nil
}

func expandGroup(group string) ([]string, error) {
	open := strings.IndexByte(group, '[')
	if open < 0 {
		return []string{group}, nil
	}
	end := strings.IndexByte(group, ']')
	prefix := group[:open]
	body := group[open+1 : end]
	suffix := group[end+1:]
	if strings.ContainsAny(suffix, "[]") {
		return nil, fmt.Errorf("%w: more than one bracket in %q", ErrInvalidHostlistFormat, group)
	}
	if body == "" {
		return nil, fmt.Errorf("%w: empty brackets in %q", ErrInvalidHostlistFormat, group)
	}

	var names []string
	for _, item := range strings.Split(body, ",") {
		lo, hi, width, err := parseRange(strings.TrimSpace(item))
		if err != nil {
			return nil, fmt.Errorf("%w: %v in %q", ErrInvalidHostlistFormat, err, group)
		}
		for n := lo; n <= hi; n++ {
			names = append(names, prefix+pad(n, width)+suffix)
		}
	}
	return names, nil
}

func parseRange(item string) (lo, hi, width int, err error) {
	loText, hiText, isRange := strings.Cut(item, "-")
	if !isDigits(loText) {
		return 0, 0, 0, fmt.Errorf("bad range bound %q", loText)
	}
	if !isRange {
		hiText = loText
	} else if !isDigits(hiText) {
		return 0, 0, 0, fmt.Errorf("bad range bound %q", hiText)
	}

	if lo, err = strconv.Atoi(loText); err != nil {
		return 0, 0, 0, err
	}
	if hi, err = strconv.Atoi(hiText); err != nil {
		return 0, 0, 0, err
	}
	if hi < lo {
		return 0, 0, 0, fmt.Errorf("descending range %q", item)
	}
	if len(loText) > 1 && loText[0] == '0' {
		width = len(loText)
	}
	return lo, hi, width, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func pad(n, width int) string {
	if width == 0 {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%0*d", width, n)
}

// nameParts holds a node name split around its last run of digits
type nameParts struct {
	prefix string
	digits string
	suffix string
}

func splitName(name string) (nameParts, bool) {
	end := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] >= '0' && name[i] <= '9' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return nameParts{}, false
	}
	start := end - 1
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	return nameParts{prefix: name[:start], digits: name[start:end], suffix: name[end:]}, true
}

type groupKey struct {
	prefix string
	suffix string
	width  int
}

// Compress renders names as a compressed hostlist. Names sharing the same
// prefix, suffix and pad width are folded into one bracket group with
// ascending ranges. An unpadded number joins a padded group of its own
// length wherever that group appears in names. Groups keep the order of
// their first member.
func Compress(names []string) string {
	type parsed struct {
		parts nameParts
		n     int
		ok    bool
	}

	var list []parsed
	padded := make(map[groupKey]bool)
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		p := parsed{parts: nameParts{prefix: name}}
		if parts, ok := splitName(name); ok {
			if n, err := strconv.Atoi(parts.digits); err == nil {
				p = parsed{parts: parts, n: n, ok: true}
				if len(parts.digits) > 1 && parts.digits[0] == '0' {
					padded[groupKey{prefix: parts.prefix, suffix: parts.suffix, width: len(parts.digits)}] = true
				}
			}
		}
		list = append(list, p)
	}

	var order []groupKey
	members := make(map[groupKey][]int)
	for _, p := range list {
		key := groupKey{prefix: p.parts.prefix, width: -1}
		if p.ok {
			key = groupKey{prefix: p.parts.prefix, suffix: p.parts.suffix, width: len(p.parts.digits)}
			if !padded[key] {
				key.width = 0
			}
		}
		if _, exists := members[key]; !exists {
			order = append(order, key)
			members[key] = nil
		}
		if p.ok {
			members[key] = append(members[key], p.n)
		}
	}

	out := make([]string, 0, len(order))
	for _, key := range order {
		if key.width < 0 {
			out = append(out, key.prefix)
			continue
		}
		out = append(out, formatGroup(key, members[key]))
	}
	return strings.Join(out, ",")
}

func formatGroup(key groupKey, nums []int) string {
	sort.Ints(nums)
	if len(nums) == 1 {
		return key.prefix + pad(nums[0], key.width) + key.suffix
	}

	var ranges []string
	lo := nums[0]
	prev := nums[0]
	flush := func() {
		if lo == prev {
			ranges = append(ranges, pad(lo, key.width))
		} else {
			ranges = append(ranges, pad(lo, key.width)+"-"+pad(prev, key.width))
		}
	}
	for _, n := range nums[1:] {
		if n == prev {
			continue
		}
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		lo, prev = n, n
	}
	flush()

	return key.prefix + "[" + strings.Join(ranges, ",") + "]" + key.suffix
}

// Unique drops empty and repeated names, keeping first occurrences
func Unique(names []string) NodeSet {
	seen := make(map[string]bool, len(names))
	out := make(NodeSet, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Diff returns the members of a that are not in b, in a's order
func Diff(a, b []string) NodeSet {
	drop := toSet(b)
	out := make(NodeSet, 0, len(a))
	for _, n := range Unique(a) {
		if !drop[n] {
			out = append(out, n)
		}
	}
	return out
}

// Intersect returns the members of a that are also in b, in a's order
func Intersect(a, b []string) NodeSet {
	keep := toSet(b)
	out := make(NodeSet, 0)
	for _, n := range Unique(a) {
		if keep[n] {
			out = append(out, n)
		}
	}
	return out
}

// Union returns a followed by the members of b not already in a
func Union(a, b []string) NodeSet {
	return Unique(append(append([]string{}, a...), b...))
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
