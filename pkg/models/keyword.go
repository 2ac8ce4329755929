package models

import (
	"strings"

	"github.com/goccy/go-json"
)

// Keyword is a single gallery tag, e.g. "female:big breasts".
// An empty Namespace marks a plain tag with no catalog meaning.
type Keyword struct {
	Namespace string
	Value     string
}

func ParseKeyword(s string) Keyword {
	s = strings.TrimSpace(s)
	ns, v, ok := strings.Cut(s, ":")
	if !ok {
		return Keyword{Value: s}
	}
	return Keyword{Namespace: strings.ToLower(strings.TrimSpace(ns)), Value: strings.TrimSpace(v)}
}

func (k Keyword) String() string {
	if k.Namespace == "" {
		return k.Value
	}
	return k.Namespace + ":" + k.Value
}

func (k Keyword) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Keyword) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*k = ParseKeyword(s)
	return nil
}
