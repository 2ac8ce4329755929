package models

// Namespace is one of the fixed tag categories of the translation dataset.
type Namespace string

const (
	NSArtist    Namespace = "artist"
	NSCharacter Namespace = "character"
	NSCosplayer Namespace = "cosplayer"
	NSFemale    Namespace = "female"
	NSGroup     Namespace = "group"
	NSLanguage  Namespace = "language"
	NSMale      Namespace = "male"
	NSMixed     Namespace = "mixed"
	NSOther     Namespace = "other"
	NSParody    Namespace = "parody"
	NSReclass   Namespace = "reclass"
	NSRows      Namespace = "rows"
)

// Namespaces lists every namespace in dataset order.
var Namespaces = []Namespace{
	NSArtist, NSCharacter, NSCosplayer, NSFemale, NSGroup, NSLanguage,
	NSMale, NSMixed, NSOther, NSParody, NSReclass, NSRows,
}

func ParseNamespace(s string) (Namespace, bool) {
	for _, ns := range Namespaces {
		if string(ns) == s {
			return ns, true
		}
	}
	return "", false
}

// Table is the sqlite table backing the namespace. "group" is a reserved word.
func (n Namespace) Table() string {
	if n == NSGroup {
		return "groups"
	}
	return string(n)
}

// TagRecord is one translated tag.
type TagRecord struct {
	Raw   string `json:"raw"`
	Name  string `json:"name"`
	Intro string `json:"intro"`
	Links string `json:"links"`
}

// SamePayload reports whether the translation fields are identical.
func (t TagRecord) SamePayload(o TagRecord) bool {
	return t.Name == o.Name && t.Intro == o.Intro && t.Links == o.Links
}
