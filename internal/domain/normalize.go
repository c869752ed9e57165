package domain

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var foldCaser = cases.Fold(cases.HandleFinalSigma(true))

var displayCaser = cases.Title(language.Und)

// FoldName case-folds a Component/Tag/Group name for uniqueness checks
// and lookups, so "Foo" and "foo" collide the way infra inventory
// tools commonly enforce. The stored Name field keeps whatever casing
// the caller supplied; only keys and comparisons fold.
func FoldName(s string) string {
	return foldCaser.String(s)
}

// TitleName renders a name in title case for display purposes (e.g. a
// humanized listing), independent of the folded key used for lookups.
func TitleName(s string) string {
	return displayCaser.String(s)
}
