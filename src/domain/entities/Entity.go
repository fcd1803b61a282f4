package entities

import (
	"time"
)

// Kind identifica o tipo de nó do grafo.
type Kind string

const (
	KindAccount Kind = "account"
	KindItem    Kind = "item"
)

// Kinds lista todos os tipos conhecidos, na ordem em que as constraints são registradas.
var Kinds = []Kind{KindAccount, KindItem}

// KeyField retorna o nome da propriedade que identifica unicamente o nó.
func (k Kind) KeyField() string {
	switch k {
	case KindAccount:
		return "username"
	case KindItem:
		return "gs1code"
	}
	return ""
}

// Label é o rótulo usado em backends que trabalham com labels (ex: Neo4j).
func (k Kind) Label() string {
	switch k {
	case KindAccount:
		return "Account"
	case KindItem:
		return "Item"
	}
	return ""
}

func (k Kind) Valid() bool {
	return k == KindAccount || k == KindItem
}

func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}

// É o "nó" do nosso grafo: uma conta ou um item identificado pelo gs1code.
type Entity struct {
	ID   int64  `json:"id"`
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`
	// Apenas os campos validados são persistidos; o próprio campo chave
	// também fica aqui (username ou gs1code).
	Properties map[string]string `json:"properties,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Ref devolve o identificador lógico (kind, key) do nó.
func (e Entity) Ref() NodeRef {
	return NodeRef{Kind: e.Kind, Key: e.Key}
}

// NodeRef aponta para um nó sem carregar suas propriedades.
type NodeRef struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`
}

func (r NodeRef) String() string {
	return string(r.Kind) + ":" + r.Key
}
