package entities

// EdgeKind é o tipo da aresta dirigida entre dois nós.
type EdgeKind string

const (
	EdgeFriendship EdgeKind = "friendship"
	EdgeFamilyship EdgeKind = "familyship"
	EdgeOwnership  EdgeKind = "ownership"
)

var EdgeKinds = []EdgeKind{EdgeFriendship, EdgeFamilyship, EdgeOwnership}

func (k EdgeKind) Valid() bool {
	return k == EdgeFriendship || k == EdgeFamilyship || k == EdgeOwnership
}

// Allows informa se a aresta aceita os tipos de origem e destino informados.
// friendship/familyship: account|item -> account; ownership: account -> item.
func (k EdgeKind) Allows(from, to Kind) bool {
	switch k {
	case EdgeFriendship, EdgeFamilyship:
		return (from == KindAccount || from == KindItem) && to == KindAccount
	case EdgeOwnership:
		return from == KindAccount && to == KindItem
	}
	return false
}

// É a "aresta" ou o relacionamento entre dois nós. Não tem identidade
// própria: é um fato identificado por (From, To, Kind).
type Edge struct {
	From NodeRef  `json:"from"`
	To   NodeRef  `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// EdgeChange descreve uma transição atômica sobre o par (From, To):
// primeiro remove Remove (se houver), depois garante Merge (se houver).
type EdgeChange struct {
	From   NodeRef
	To     NodeRef
	Remove EdgeKind
	Merge  EdgeKind
}
