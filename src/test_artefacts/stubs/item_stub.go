package stubs

import (
	"github.com/brianvoe/gofakeit/v6"

	"discoveryservice/src/domain/entities"
)

type ItemStub struct {
	props map[string]any
}

// NewItemStub gera propriedades válidas de um item.
func NewItemStub() ItemStub {
	return ItemStub{props: map[string]any{
		"gs1code": gofakeit.DigitN(13),
		"name":    gofakeit.BeerName(),
		"brand":   gofakeit.Company(),
	}}
}

func (is ItemStub) WithGS1Code(gs1code string) ItemStub {
	is.props["gs1code"] = gs1code
	return is
}

func (is ItemStub) WithProperty(key string, value any) ItemStub {
	is.props[key] = value
	return is
}

func (is ItemStub) Props() map[string]any {
	out := make(map[string]any, len(is.props))
	for k, v := range is.props {
		out[k] = v
	}
	return out
}

func (is ItemStub) Properties() map[string]string {
	return stringify(is.props)
}

func (is ItemStub) GS1Code() string {
	return is.props["gs1code"].(string)
}

func (is ItemStub) Ref() entities.NodeRef {
	return entities.NodeRef{Kind: entities.KindItem, Key: is.GS1Code()}
}
