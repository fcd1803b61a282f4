package comparer

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"discoveryservice/src/domain/entities"
)

// EntityContent compara apenas tipo, chave e propriedades: o ID e os
// timestamps dependem do backend.
func EntityContent() cmp.Option {
	return cmpopts.IgnoreFields(entities.Entity{}, "ID", "CreatedAt", "UpdatedAt")
}

// UnorderedStrings ignora a ordem dos slices de string.
func UnorderedStrings() cmp.Option {
	return cmpopts.SortSlices(func(a, b string) bool { return a < b })
}
