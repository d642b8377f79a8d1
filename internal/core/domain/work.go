package domain

// WorkUnit identifies one row (or one claimable group) by its numeric key.
type WorkUnit int64

// Batch is an ordered, non-empty group of work units processed in one round trip.
type Batch []WorkUnit

// Last returns the highest key of an ascending batch, or 0 for an empty one.
func (b Batch) Last() WorkUnit {
	if len(b) == 0 {
		return 0
	}
	return b[len(b)-1]
}

// Int64s returns the keys in a form the SQL drivers can bind as bigint[].
func (b Batch) Int64s() []int64 {
	out := make([]int64, len(b))
	for i, k := range b {
		out[i] = int64(k)
	}
	return out
}

// MutationResult reports how many rows a mutation actually changed.
// Count may be lower than the batch size when rows were already mutated
// or claimed by another worker.
type MutationResult struct {
	Count int64
	Keys  []WorkUnit // populated by claim statements that return ids
}

// Chunks splits an ordered list of units into batches of at most size elements.
func Chunks(units []WorkUnit, size int) []Batch {
	if size <= 0 || len(units) == 0 {
		return nil
	}
	chunks := make([]Batch, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := min(start+size, len(units))
		chunks = append(chunks, Batch(units[start:end]))
	}
	return chunks
}
