package sexy

import "fmt"

// Match checks actual against pattern and describes the first mismatch.
//
// Inside a pattern list or array, ... matches any run of items, including
// an empty one. The symbol _ matches any single datum. Metadata in the
// pattern must be present in actual with matching values; metadata the
// pattern does not mention is ignored.
func Match(pattern, actual *Node) error {
	return match(pattern, actual, "root")
}

func match(pattern, actual *Node, path string) error {
	if pattern.Type == NodeSymbol && pattern.Text == "_" {
		return nil
	}
	if pattern.Type != actual.Type {
		return fmt.Errorf("at %s: expected %s %s, got %s %s", path, pattern.Type, pattern, actual.Type, actual)
	}

	switch pattern.Type {
	case NodeSymbol, NodeString, NodeInteger:
		if pattern.Text != actual.Text {
			return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
		}
		return nil

	case NodeList, NodeArray:
		for i, key := range pattern.MetaKeys {
			value := actual.Meta(key)
			if value == nil {
				return fmt.Errorf("at %s: missing metadata %s in %s", path, key, actual)
			}
			if err := match(pattern.MetaItems[i], value, path+"^"+key); err != nil {
				return err
			}
		}
		return matchItems(pattern.Items, actual.Items, path, 0)

	case NodeMap:
		for i, key := range pattern.Keys {
			j := indexOf(actual.Keys, key)
			if j < 0 {
				return fmt.Errorf("at %s: missing key %s", path, key)
			}
			if err := match(pattern.Items[i], actual.Items[j], path+"."+key); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

// matchItems matches patterns against actuals, where actuals starts at
// index offset of the enclosing list.
func matchItems(patterns, actuals []*Node, path string, offset int) error {
	if len(patterns) == 0 {
		if len(actuals) > 0 {
			return fmt.Errorf("at %s[%d]: unexpected %s", path, offset, actuals[0])
		}
		return nil
	}

	if patterns[0].Type == NodeEllipsis {
		var firstErr error
		for skip := 0; skip <= len(actuals); skip++ {
			err := matchItems(patterns[1:], actuals[skip:], path, offset+skip)
			if err == nil {
				return nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if len(actuals) == 0 {
		return fmt.Errorf("at %s[%d]: missing %s", path, offset, patterns[0])
	}
	if err := match(patterns[0], actuals[0], fmt.Sprintf("%s[%d]", path, offset)); err != nil {
		return err
	}
	return matchItems(patterns[1:], actuals[1:], path, offset+1)
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
