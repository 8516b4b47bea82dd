package types

// Metadata carries an instance's timestamps in epoch milliseconds.
// Modified is never less than Created.
type Metadata struct {
	Created  int64 `json:"created"`
	Modified int64 `json:"modified"`
}

// Properties maps property names to values.
type Properties map[string]Value

// Clone returns a shallow copy of p. The copy of a nil map is empty.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every entry of update into p, overwriting existing keys.
// A zero Value removes the key.
func (p Properties) Merge(update Properties) {
	for k, v := range update {
		if v.IsZero() {
			delete(p, k)
			continue
		}
		p[k] = v
	}
}

// EntityInstance is a record conforming to one entity type.
type EntityInstance struct {
	ID         string     `json:"id"`
	TypeID     string     `json:"typeId"` // Immutable after creation.
	Properties Properties `json:"properties"`
	Metadata   Metadata   `json:"metadata"`
}

// StorageUsage summarizes how much the store holds.
type StorageUsage struct {
	TypeCount     int `json:"typeCount"`
	InstanceCount int `json:"instanceCount"`
}
