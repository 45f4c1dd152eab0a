package http

import "strings"

// Header is a single name/value pair as received or sent.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header map. Names are compared case-insensitively and
// a repeated name replaces the earlier value in place.
type Headers struct {
	fields []Header
	index  map[string]int
}

// Set stores value under name, replacing any previous value for that name.
func (h *Headers) Set(name, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	key := strings.ToLower(name)
	if i, ok := h.index[key]; ok {
		h.fields[i] = Header{Name: name, Value: value}
		return
	}
	h.index[key] = len(h.fields)
	h.fields = append(h.fields, Header{Name: name, Value: value})
}

// Get returns the value stored for name and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	i, ok := h.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return h.fields[i].Value, true
}

// Len returns the number of distinct header names.
func (h *Headers) Len() int {
	return len(h.fields)
}

