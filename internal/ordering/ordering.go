// Package ordering implements the stable array move and dense position
// stamping shared by every reorderable collection.
package ordering

// Move returns a copy of s with the element at from moved to index to. The
// remaining elements keep their relative order. Out of range indexes are
// clamped.
func Move[T any](s []T, from, to int) []T {
	out := append([]T(nil), s...)
	if len(out) == 0 {
		return out
	}
	from = clamp(from, len(out)-1)
	to = clamp(to, len(out)-1)
	if from == to {
		return out
	}

	elem := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out, elem)
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = elem
	return out
}

// Insert returns a copy of s with elem inserted at index at.
func Insert[T any](s []T, at int, elem T) []T {
	if at < 0 {
		at = 0
	}
	if at > len(s) {
		at = len(s)
	}
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:at]...)
	out = append(out, elem)
	return append(out, s[at:]...)
}

// Remove returns a copy of ids without id.
func Remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// IndexOf returns the index of id in ids, or -1.
func IndexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// Restamp calls set with each element's new dense position.
func Restamp[T any](s []T, set func(elem *T, position int)) {
	for i := range s {
		set(&s[i], i)
	}
}

// IsDense reports whether positions form the sequence 0..N-1 in order.
func IsDense(positions []int) bool {
	for i, p := range positions {
		if p != i {
			return false
		}
	}
	return true
}

func clamp(i, hi int) int {
	if i < 0 {
		return 0
	}
	if i > hi {
		return hi
	}
	return i
}
