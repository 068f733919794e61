package resource

import (
	"fmt"
	"strings"
)

const (
	RefJob        = "job"
	RefInspection = "inspection"
	RefEquipment  = "equipment"
)

// Ref строит ссылку на результат вида "kind:id".
func Ref(kind, id string) string {
	return kind + ":" + id
}

// ParseRef разбирает ссылку на результат.
func ParseRef(ref string) (kind, id string, err error) {
	kind, id, ok := strings.Cut(ref, ":")
	if !ok || kind == "" || id == "" {
		return "", "", fmt.Errorf("malformed result ref %q", ref)
	}
	return kind, id, nil
}
