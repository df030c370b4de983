package heap

import "nativert/pkg/value"

// ModuleNamespaceClassID marks objects standing in for `import * as ns`.
const ModuleNamespaceClassID uint32 = 0xFFFFFFFE

const moduleNameKey = "__module__"

// CreateModuleNamespace allocates a namespace object whose only field holds
// the module name under "__module__". Exports are added with SetFieldByName.
func (h *Heap) CreateModuleNamespace(name string) value.Value {
	ns := h.AllocObject(ModuleNamespaceClassID, 1)
	h.SetField(ns, 0, h.NewString(name))
	h.SetKeys(ns, h.ArrayFrom(h.NewString(moduleNameKey)))
	return ns
}

func (h *Heap) IsModuleNamespace(v value.Value) bool {
	o, ok := h.obj(v)
	return ok && o.classID == ModuleNamespaceClassID
}

// ModuleName returns the name stored in a namespace object.
func (h *Heap) ModuleName(v value.Value) (string, bool) {
	if !h.IsModuleNamespace(v) {
		return "", false
	}
	return h.GoString(h.GetField(v, 0))
}
