// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package attrs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var lengthRe = regexp.MustCompile(`-?\d+`)

// Attr represents each of the report columns to be included in the output.
type Attr struct {
	// The row key to read the value from.
	Key string
	// Should this Attr be included in output or is it just
	// intended for filtering and sorting?
	Include bool
	// The key to use in the output. This is also the column title when
	// output=text.
	OutputKey string
	// Transformation spec to apply to the output value.
	TransformSpec string
}

// Transform applies the attr's spec to a string value. Other values pass
// through untouched.
//
// The spec may hold a case transformation (l or u; the last one wins) and a
// length. A positive length truncates; a negative one keeps both ends and
// elides the middle.
func (a *Attr) Transform(value interface{}) interface{} {
	result, ok := value.(string)
	if !ok || a.TransformSpec == "" {
		return value
	}

	// We need to know which case transformation appears last. This covers the
	// case where there has been a global case transformation prepended to the
	// attrs transformation and, thus, allows the attr's to carry more weight.
	// IOW...  --attrs '*::U,cache::l' will be lower case.
	lastL := strings.LastIndexAny(a.TransformSpec, "lL")
	lastU := strings.LastIndexAny(a.TransformSpec, "uU")

	if lastL > lastU {
		result = strings.ToLower(result)
	} else if lastU > lastL {
		result = strings.ToUpper(result)
	}

	// Same logic as above re: case. A more specific length transformation
	// overrides a global one.
	match := lengthRe.FindAllString(a.TransformSpec, -1)
	if len(match) == 0 {
		return result
	}

	l, _ := strconv.Atoi(match[len(match)-1])
	abs := l
	if abs < 0 {
		abs = -abs
	}
	if len(result) <= abs || abs == 0 {
		return result
	}
	if l > 0 {
		return result[:l]
	}
	if abs < 4 {
		return result[:abs]
	}
	lr := abs/2 - 1
	return result[:lr] + ".." + result[len(result)-lr:]
}

type AttrList []Attr

// New returns an AttrList that includes every key unchanged.
func New(keys ...string) AttrList {
	al := make(AttrList, 0, len(keys))
	for _, k := range keys {
		al = append(al, Attr{Key: k, Include: true, OutputKey: k})
	}
	return al
}

// Return a string representation of the AttrList. This should match the format
// of the original --attrs flag.
func (a *AttrList) String() string {
	result := make([]string, 0, len(*a))
	for _, attr := range *a {
		result = append(result, fmt.Sprintf("%s:%s:%s", attr.Key, attr.OutputKey, attr.TransformSpec))
	}
	return strings.Join(result, ",")
}

// Set parses each spec from the --attrs flag and adds it to the AttrList.
//
// A spec is key[:output[:transform]]. A leading ! on the key hides the column
// while keeping it available for filtering and sorting. The key * carries a
// transform applied to every column.
func (a *AttrList) Set(value string) error {
	if value == "" || value == "*" {
		return nil
	}

	const (
		keyIdx = iota
		outputIdx
		transformIdx
	)

	specs := strings.Split(value, ",")
specloop:
	for _, spec := range specs {
		attr := Attr{
			Include: true,
		}

		fields := strings.Split(spec, ":")
		if len(fields) > 3 {
			return fmt.Errorf("invalid attr spec: %q", spec)
		}

		attr.Key = strings.TrimSpace(fields[keyIdx])
		if strings.HasPrefix(attr.Key, "!") {
			attr.Include = false
			attr.Key = attr.Key[1:]
		}
		if attr.Key == "" {
			return fmt.Errorf("invalid attr spec: %q", spec)
		}
		if attr.Key == "*" {
			attr.Include = false
		}

		attr.OutputKey = attr.Key
		if len(fields) > outputIdx && strings.TrimSpace(fields[outputIdx]) != "" {
			attr.OutputKey = strings.TrimSpace(fields[outputIdx])
		}

		if len(fields) > transformIdx {
			attr.TransformSpec = strings.TrimSpace(fields[transformIdx])
		}

		// If the attr already exists in the list (because it's one of the
		// report's columns or the user double-entered it) just apply the
		// OutputKey, Include and TransformSpec to the existing Attr.
		for i := range *a {
			if (*a)[i].Key == attr.Key || (*a)[i].OutputKey == attr.Key {
				(*a)[i].Include = attr.Include
				(*a)[i].OutputKey = attr.OutputKey
				(*a)[i].TransformSpec = attr.TransformSpec
				continue specloop
			}
		}

		*a = append(*a, attr)
	}

	return nil
}

// SetGlobalTransformSpec inserts a global transform spec into the front of all
// attrs in the list.
func (alist *AttrList) SetGlobalTransformSpec() {
	spec := ""

	// Find the global transform spec. If there is more than one, we're not
	// dealing with it and just taking the first.
	for a := range *alist {
		if (*alist)[a].Key == "*" {
			spec = (*alist)[a].TransformSpec
			break
		}
	}

	if spec == "" {
		return
	}

	for a := range *alist {
		(*alist)[a].TransformSpec = spec + "," + (*alist)[a].TransformSpec
	}
}

// Keys returns every row key the list reads, hidden ones included.
func (alist AttrList) Keys() []string {
	keys := make([]string, 0, len(alist))
	for _, a := range alist {
		if a.Key != "*" {
			keys = append(keys, a.Key)
		}
	}
	return keys
}

// Project builds output rows holding only the included attrs, renamed and
// transformed. It returns the output column order alongside.
func (alist AttrList) Project(rows []map[string]interface{}) ([]string, []map[string]interface{}) {
	var columns []string
	for _, a := range alist {
		if a.Include {
			columns = append(columns, a.OutputKey)
		}
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		projected := make(map[string]interface{}, len(columns))
		for i := range alist {
			a := &alist[i]
			if !a.Include {
				continue
			}
			if v, ok := row[a.Key]; ok {
				projected[a.OutputKey] = a.Transform(v)
			}
		}
		out = append(out, projected)
	}
	return columns, out
}

func (a *AttrList) Type() string {
	return "list"
}
