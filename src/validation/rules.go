package validation

import (
	"regexp"

	"discoveryservice/src/domain/entities"
)

// Rule descreve as restrições de um único campo.
type Rule struct {
	Name      string
	Required  bool
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	// Message é anexada ao erro para orientar quem chamou.
	Message string
}

type AccountField int

const (
	AccountUsername AccountField = iota
	AccountDisplayName
	AccountEmail

	accountFieldCount
)

type ItemField int

const (
	ItemGS1Code ItemField = iota
	ItemName
	ItemBrand

	itemFieldCount
)

var accountRules = [accountFieldCount]Rule{
	AccountUsername: {
		Name:      "username",
		Required:  true,
		MinLength: 2,
		MaxLength: 25,
		Pattern:   regexp.MustCompile(`^[A-Za-z0-9_@.]+$`),
		Message:   "2-25 characters; letters, numbers, underscores, '.', and '@' only.",
	},
	AccountDisplayName: {
		Name:      "display_name",
		MinLength: 1,
		MaxLength: 50,
		Pattern:   regexp.MustCompile(`^[\p{L}\p{M}\p{N} '._-]+$`),
		Message:   "1-50 characters; letters, numbers, spaces, apostrophes, '.', '_' and '-' only.",
	},
	AccountEmail: {
		Name:      "email",
		MinLength: 3,
		MaxLength: 254,
		Pattern:   regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
		Message:   "a valid e-mail address.",
	},
}

var itemRules = [itemFieldCount]Rule{
	ItemGS1Code: {
		Name:      "gs1code",
		Required:  true,
		MinLength: 2,
		MaxLength: 25,
		Pattern:   regexp.MustCompile(`^[a-z0-9.]+$`),
		Message:   "2-25 characters; lowercase letters, numbers, and '.' only.",
	},
	ItemName: {
		Name:      "name",
		MinLength: 1,
		MaxLength: 80,
		Pattern:   regexp.MustCompile(`^[\p{L}\p{M}\p{N}\p{P}\p{S}\p{Zs}]+$`),
		Message:   "1-80 printable characters.",
	},
	ItemBrand: {
		Name:      "brand",
		MinLength: 1,
		MaxLength: 50,
		Pattern:   regexp.MustCompile(`^[\p{L}\p{M}\p{N}\p{P}\p{S}\p{Zs}]+$`),
		Message:   "1-50 printable characters.",
	},
}

// RulesFor devolve a tabela de regras do tipo; nil para tipos desconhecidos.
func RulesFor(kind entities.Kind) []Rule {
	switch kind {
	case entities.KindAccount:
		return accountRules[:]
	case entities.KindItem:
		return itemRules[:]
	}
	return nil
}

// KeyRule devolve a regra do campo chave do tipo.
func KeyRule(kind entities.Kind) (Rule, bool) {
	switch kind {
	case entities.KindAccount:
		return accountRules[AccountUsername], true
	case entities.KindItem:
		return itemRules[ItemGS1Code], true
	}
	return Rule{}, false
}
