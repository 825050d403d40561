package facade

import "github.com/brunopacheco1/gnucobol-debug/internal/mi"

// VarObj mirrors a GDB varobj: a server-side handle to a live expression
// whose value and children can be queried and updated independently of
// the stack frame that created it.
type VarObj struct {
	Name        string
	Exp         string
	NumChild    int
	Type        string
	Value       string
	ThreadID    string
	Frozen      bool
	Dynamic     bool
	DisplayHint string
	HasMore     bool
	ID          string
}

// IsCompound reports whether the varobj has children worth expanding:
// a nonzero child count, a value of the literal placeholder "{...}", or a
// dynamic varobj whose display hint names a container shape.
func (v VarObj) IsCompound() bool {
	if v.NumChild > 0 || v.Value == "{...}" {
		return true
	}
	return v.Dynamic && (v.DisplayHint == "array" || v.DisplayHint == "map")
}

func varObjFromValue(v mi.Value) VarObj {
	name, _ := v.PathString("name")
	numchild, _ := v.PathString("numchild")
	typ, _ := v.PathString("type")
	value, _ := v.PathString("value")
	threadID, _ := v.PathString("thread-id")
	frozen, _ := v.PathString("frozen")
	dynamic, _ := v.PathString("dynamic")
	hint, _ := v.PathString("displayhint")
	hasMore, _ := v.PathString("has_more")
	return VarObj{
		Name:        name,
		NumChild:    parseLine(numchild),
		Type:        typ,
		Value:       value,
		ThreadID:    threadID,
		Frozen:      frozen == "1",
		Dynamic:     dynamic == "1",
		DisplayHint: hint,
		HasMore:     hasMore == "1",
	}
}

// VarCreate creates a new varobj for expr, auto-naming it on the GDB side
// ("@" lets GDB pick a unique name).
func (f *Facade) VarCreate(expr string) (VarObj, error) {
	res, err := f.session().Send("var-create", false, "@", quote(expr))
	if err != nil {
		return VarObj{}, err
	}
	vo := varObjFromValue(res.Values)
	vo.Exp = expr
	id, _ := res.Values.PathString("name")
	vo.ID = id
	return vo, nil
}

// VarEvalExpression returns the current string value of an existing varobj.
func (f *Facade) VarEvalExpression(name string) (string, error) {
	res, err := f.session().Send("var-evaluate-expression", false, name)
	if err != nil {
		return "", err
	}
	value, _ := res.Values.PathString("value")
	return value, nil
}

// VarListChildren lists the immediate children of a compound varobj.
func (f *Facade) VarListChildren(name string) ([]VarObj, error) {
	res, err := f.session().Send("var-list-children", false, "--all-values", name)
	if err != nil {
		return nil, err
	}
	list, ok := res.Values.Path("children")
	if !ok || list.Kind != mi.KindList {
		return nil, nil
	}
	out := make([]VarObj, 0, len(list.Items))
	for _, item := range list.Items {
		child := item
		if sub, ok := item.Path("child"); ok {
			child = sub
		}
		out = append(out, varObjFromValue(child))
	}
	return out, nil
}

// VarUpdate re-syncs a varobj (or every varobj, when name is "*") and
// reports which ones changed.
func (f *Facade) VarUpdate(name string) ([]VarObj, error) {
	if name == "" {
		name = "*"
	}
	res, err := f.session().Send("var-update", false, "--all-values", name)
	if err != nil {
		return nil, err
	}
	list, ok := res.Values.Path("changelist")
	if !ok || list.Kind != mi.KindList {
		return nil, nil
	}
	out := make([]VarObj, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, varObjFromValue(item))
	}
	return out, nil
}

// VarAssign sets the value of an existing varobj, returning its new
// string representation.
func (f *Facade) VarAssign(name, value string) (string, error) {
	res, err := f.session().Send("var-assign", false, name, quote(value))
	if err != nil {
		return "", err
	}
	newValue, _ := res.Values.PathString("value")
	return newValue, nil
}
