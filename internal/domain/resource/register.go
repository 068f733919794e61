package resource

import (
	"fieldsync/internal/domain/dispatch"
	"fieldsync/internal/domain/mutation"
)

// Register добавляет обработчики всех ресурсов. backup может быть nil.
func Register(reg *dispatch.Registry, reader Reader, backup Backup) {
	reg.Register(dispatch.Key{Resource: mutation.ResourceJob, Operation: mutation.OpCreate}, JobCreate{})
	reg.Register(dispatch.Key{Resource: mutation.ResourceInspection, Operation: mutation.OpCreate}, InspectionCreate{})
	reg.Register(dispatch.Key{Resource: mutation.ResourceInspection, Operation: mutation.OpUpdate}, NewInspectionUpdate(reader, backup))
	reg.Register(dispatch.Key{Resource: mutation.ResourceEquipment, Operation: mutation.OpCreate}, EquipmentCreate{})
	reg.Register(dispatch.Key{Resource: mutation.ResourceEquipment, Operation: mutation.OpUpdate}, EquipmentUpdate{})
}
