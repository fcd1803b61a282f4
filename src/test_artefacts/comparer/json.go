package comparer

import (
	"encoding/json"
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// JSONBytes compara payloads JSON ignorando a ordem das chaves
func JSONBytes() cmp.Option {
	return cmp.Comparer(func(x, y []byte) bool {
		if len(x) == 0 && len(y) == 0 {
			return true
		}
		if len(x) == 0 || len(y) == 0 {
			return false
		}

		// Parse ambos para interface{} para comparação semântica
		var xObj, yObj interface{}
		if err := json.Unmarshal(x, &xObj); err != nil {
			return false
		}
		if err := json.Unmarshal(y, &yObj); err != nil {
			return false
		}

		return reflect.DeepEqual(xObj, yObj)
	})
}
