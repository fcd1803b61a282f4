package stubs

import (
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"discoveryservice/src/domain/entities"
)

type AccountStub struct {
	props map[string]any
}

// NewAccountStub gera propriedades válidas de uma conta.
func NewAccountStub() AccountStub {
	return AccountStub{props: map[string]any{
		"username":     strings.ToLower(gofakeit.LetterN(12)),
		"display_name": gofakeit.FirstName(),
		"email":        gofakeit.Email(),
	}}
}

func (as AccountStub) WithUsername(username string) AccountStub {
	as.props["username"] = username
	return as
}

func (as AccountStub) WithProperty(key string, value any) AccountStub {
	as.props[key] = value
	return as
}

func (as AccountStub) Without(key string) AccountStub {
	delete(as.props, key)
	return as
}

func (as AccountStub) Props() map[string]any {
	out := make(map[string]any, len(as.props))
	for k, v := range as.props {
		out[k] = v
	}
	return out
}

// Properties devolve as propriedades já no formato armazenado.
func (as AccountStub) Properties() map[string]string {
	return stringify(as.props)
}

func (as AccountStub) Username() string {
	return as.props["username"].(string)
}

func (as AccountStub) Ref() entities.NodeRef {
	return entities.NodeRef{Kind: entities.KindAccount, Key: as.Username()}
}

func stringify(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
