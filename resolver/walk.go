package resolver

// Walk returns a copy of n with fn applied to every string scalar. Mapping
// keys go through fn too when resolveKeys is set. Non-string scalars, mapping
// order and sequence order are preserved. String keys that come out equal are
// merged: the first one keeps its position and the last value wins.
func Walk(
	n Node,
	fn func(string) string,
	resolveKeys bool,
) Node {
	switch n.Kind {
	case MappingKind:
		pairs := make([]Pair, 0, len(n.Pairs))
		index := make(map[string]int, len(n.Pairs))

		for _, p := range n.Pairs {
			key := p.Key
			if resolveKeys {
				key = Walk(p.Key, fn, resolveKeys)
			}

			value := Walk(p.Value, fn, resolveKeys)

			if s, ok := key.Scalar.(string); ok && key.Kind == ScalarKind {
				if at, dup := index[s]; dup {
					pairs[at].Value = value

					continue
				}

				index[s] = len(pairs)
			}

			pairs = append(pairs, Pair{Key: key, Value: value})
		}

		return Mapping(pairs...)
	case SequenceKind:
		items := make([]Node, 0, len(n.Items))
		for _, item := range n.Items {
			items = append(items, Walk(item, fn, resolveKeys))
		}

		return Sequence(items...)
	default:
		if s, ok := n.Scalar.(string); ok {
			return Scalar(fn(s))
		}

		return n
	}
}
