package model

import (
	"strconv"
	"strings"
)

// SampleField is one column of a flat sample
type SampleField struct {
	Name  string
	Value interface{}
}

// FlatSample returns the current value of every latent variable in
// creation order. Array values are expanded to one field per element named
// "name.i". Floats are float64, ints and partition items int, bools bool.
func (m *Model) FlatSample() []SampleField {
	fields := make([]SampleField, 0, len(m.variables))
	for _, v := range m.variables {
		if v.observed {
			continue
		}
		switch v.value.Kind {
		case KindFloat:
			fields = append(fields, SampleField{v.name, v.value.Float})
		case KindInt:
			fields = append(fields, SampleField{v.name, v.value.Int})
		case KindBool:
			fields = append(fields, SampleField{v.name, v.value.Bool})
		case KindIntArray:
			for i, x := range v.value.Ints {
				fields = append(fields, SampleField{v.name + "." + strconv.Itoa(i), x})
			}
		case KindFloatArray:
			for i, x := range v.value.Floats {
				fields = append(fields, SampleField{v.name + "." + strconv.Itoa(i), x})
			}
		}
	}
	return fields
}

// HierarchicalSample nests latent variable values by the dotted segments of
// their names: "theta.mu" becomes {"theta": {"mu": x}}. Arrays stay slices.
// A name that is both a leaf and a prefix of another name is an error.
func (m *Model) HierarchicalSample() (map[string]interface{}, error) {
	root := make(map[string]interface{})
	for _, v := range m.variables {
		if v.observed {
			continue
		}

		var leaf interface{}
		switch v.value.Kind {
		case KindFloat:
			leaf = v.value.Float
		case KindInt:
			leaf = v.value.Int
		case KindBool:
			leaf = v.value.Bool
		case KindIntArray:
			leaf = append([]int{}, v.value.Ints...)
		case KindFloatArray:
			leaf = append([]float64{}, v.value.Floats...)
		}

		parts := strings.Split(v.name, ".")
		cur := root
		for _, seg := range parts[:len(parts)-1] {
			next, ok := cur[seg]
			if !ok {
				child := make(map[string]interface{})
				cur[seg] = child
				cur = child
				continue
			}
			child, isMap := next.(map[string]interface{})
			if !isMap {
				return nil, modelErrorf("HierarchicalSample", "variable %s conflicts with value at %s", v.name, seg)
			}
			cur = child
		}

		last := parts[len(parts)-1]
		if _, exists := cur[last]; exists {
			return nil, modelErrorf("HierarchicalSample", "variable %s conflicts with an existing entry", v.name)
		}
		cur[last] = leaf
	}
	return root, nil
}
