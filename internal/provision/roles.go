package provision

// RolePolicy is the fixed allow-list policy deciding what a set of launch
// roles grants: staff can provision and get admin, members can join.
type RolePolicy struct {
	Staff   []string
	Members []string
}

// IsStaff reports whether any launch role is in the staff allow-list.
func (p RolePolicy) IsStaff(roles []string) bool {
	return intersects(roles, p.Staff)
}

// IsInClass reports whether any launch role grants access to the tool at all.
func (p RolePolicy) IsInClass(roles []string) bool {
	return intersects(roles, p.Staff) || intersects(roles, p.Members)
}

func intersects(have, allowed []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	for _, r := range have {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
