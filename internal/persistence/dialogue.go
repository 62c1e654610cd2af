package persistence

import "context"

// Vars returns every dialogue variable in the view's generation.
func (r *reader) Vars(ctx context.Context) ([]DialogueVar, error) {
	return Select[DialogueVar](ctx, r, "")
}

// Var returns the named dialogue variable, or nil.
func (r *reader) Var(ctx context.Context, name string) (*DialogueVar, error) {
	return First[DialogueVar](ctx, r, "var_name = ?", name)
}

func (r *reader) insertVar(ctx context.Context, v *DialogueVar) error {
	id, err := r.insert(ctx, "insert var",
		"INSERT INTO dialogue_vars (var_name, var_value, related_system, generation) VALUES (?, ?, ?, ?)",
		v.VarName, v.VarValue, v.RelatedSystem, r.gen)
	if err != nil {
		return err
	}
	v.ID = id
	v.Generation = r.gen
	return nil
}

// SetVar creates or overwrites a live dialogue variable.
func (l *Live) SetVar(ctx context.Context, name, value, system string) error {
	cur, err := l.Var(ctx, name)
	if err != nil {
		return err
	}
	if cur == nil {
		return l.insertVar(ctx, &DialogueVar{VarName: name, VarValue: value, RelatedSystem: system})
	}
	_, err = l.exec(ctx, "set var",
		"UPDATE dialogue_vars SET var_value = ?, related_system = ? WHERE id = ?", value, system, cur.ID)
	return err
}
