package runner

import (
	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// writeSet accumulates pending environment writes across the scripts of one
// run in first-write order with the last value winning.
type writeSet struct {
	keys   []string
	values map[string]string
}

func (w *writeSet) merge(kvs []model.KeyValue) {
	for _, kv := range kvs {
		if w.values == nil {
			w.values = make(map[string]string)
		}
		if _, ok := w.values[kv.Key]; !ok {
			w.keys = append(w.keys, kv.Key)
		}
		w.values[kv.Key] = kv.Value
	}
}

func (w *writeSet) list() []model.KeyValue {
	if len(w.keys) == 0 {
		return nil
	}
	out := make([]model.KeyValue, 0, len(w.keys))
	for _, k := range w.keys {
		out = append(out, model.KeyValue{Key: k, Value: w.values[k], Enabled: true})
	}
	return out
}

func (w *writeSet) scope() env.MapScope {
	return env.MapScope(w.values)
}

// overlay returns base with pending writes shadowing its variables. base is
// never modified.
func (w *writeSet) overlay(base *model.Environment) *model.Environment {
	if len(w.keys) == 0 {
		return base
	}
	out := &model.Environment{Name: "pending"}
	if base != nil {
		out.ID = base.ID
		out.Name = base.Name
	}
	out.Variables = append(out.Variables, w.list()...)
	if base != nil {
		out.Variables = append(out.Variables, base.Variables...)
	}
	return out
}
