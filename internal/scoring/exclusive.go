package scoring

import (
	"fmt"
	"strings"
)

// ExclusiveGroup is a set of options of which at most one may be selected.
type ExclusiveGroup struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// ValidateExclusive returns one violation per group holding more than one
// true flag. It never decides which flag to keep.
func ValidateExclusive(flags map[string]bool, groups []ExclusiveGroup) []Violation {
	var vs []Violation
	for _, g := range groups {
		var selected []string
		for _, m := range g.Members {
			if flags[m] {
				selected = append(selected, m)
			}
		}
		if len(selected) > 1 {
			vs = append(vs, Violation{
				Reason:  ReasonExclusiveGroup,
				Group:   g.ID,
				Message: fmt.Sprintf("at most one of %s may be selected, got %s", strings.Join(g.Members, ", "), strings.Join(selected, ", ")),
			})
		}
	}
	return vs
}
