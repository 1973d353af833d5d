package tagtree

import "fmt"

// ReadInt reads an integer scalar of any width.
func ReadInt(f Facade, p Path) (int64, error) {
	v, err := f.ReadScalar(p)
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	return n, nil
}

func ReadString(f Facade, p Path) (string, error) {
	v, err := f.ReadScalar(p)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, err)
	}
	return s, nil
}
